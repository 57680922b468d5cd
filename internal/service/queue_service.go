package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

const maxHistoryExportRows = 5000

type queueStore interface {
	ListPending(ctx context.Context, filter models.QueueFilter) ([]models.Request, error)
	ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.Request, int, error)
}

type queueCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// QueueService builds signatory queues and decision history.
type QueueService struct {
	repo     queueStore
	machine  *approval.Machine
	cache    queueCache
	metrics  *MetricsService
	logger   *zap.Logger
	pageSize int
	cacheTTL time.Duration
}

// NewQueueService constructs a QueueService. History pages hold pageSize rows.
func NewQueueService(repo queueStore, machine *approval.Machine, cache queueCache, metrics *MetricsService, logger *zap.Logger, pageSize int, cacheTTL time.Duration) *QueueService {
	if machine == nil {
		machine = approval.NewMachine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &QueueService{repo: repo, machine: machine, cache: cache, metrics: metrics, logger: logger, pageSize: pageSize, cacheTTL: cacheTTL}
}

// Pending returns the requests the caller can decide right now. An empty item list is a normal
// answer; registry or account linkage problems come back as CONFIGURATION_ERROR instead.
func (s *QueueService) Pending(ctx context.Context, actor models.Actor) (*dto.QueueResponse, error) {
	targets, err := queueTargets(s.machine.Registry(), actor.Role)
	if err != nil {
		return nil, err
	}
	scope, err := reviewScope(actor)
	if err != nil {
		return nil, err
	}

	key := QueueKey(actor.Role, scope)
	if s.cache != nil {
		var cached dto.QueueResponse
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	rows, err := s.repo.ListPending(ctx, models.QueueFilter{Targets: targets, OrganizationID: scope})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending queue")
	}

	stages := stageByKind(targets)
	items := make([]dto.QueueItem, 0, len(rows))
	for _, row := range rows {
		ready, err := s.machine.IsReady(row.Approval, actor.Role)
		if err != nil {
			return nil, configurationError(err)
		}
		if !ready {
			continue
		}
		items = append(items, dto.QueueItem{
			ID:                 row.ID,
			Kind:               row.Kind,
			Title:              row.Title,
			OwnerID:            row.OwnerID,
			OrganizationID:     row.OrganizationID,
			Stage:              stages[row.Kind].Label(),
			NotificationStatus: row.Approval.NotificationStatus,
			SubmittedAt:        row.SubmittedAt,
		})
	}

	resp := &dto.QueueResponse{Role: actor.Role, Scope: scope, Items: items}
	s.metrics.SetQueueSize(string(actor.Role), len(items))
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, resp, s.cacheTTL)
	}
	return resp, nil
}

// History returns one page of requests the caller's stage has decided.
func (s *QueueService) History(ctx context.Context, actor models.Actor, query dto.HistoryQuery) (*dto.HistoryPage, error) {
	filter, stages, err := s.historyFilter(actor, query)
	if err != nil {
		return nil, err
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	filter.Limit = s.pageSize
	filter.Offset = (page - 1) * s.pageSize

	rows, total, err := s.repo.ListHistory(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return &dto.HistoryPage{
		Items:    historyItems(rows, stages),
		Page:     page,
		PageSize: s.pageSize,
		Total:    total,
	}, nil
}

// HistoryAll walks every history page for export, up to a fixed row cap.
func (s *QueueService) HistoryAll(ctx context.Context, actor models.Actor, query dto.HistoryQuery) ([]dto.HistoryItem, error) {
	filter, stages, err := s.historyFilter(actor, query)
	if err != nil {
		return nil, err
	}
	const batch = 200
	items := make([]dto.HistoryItem, 0)
	for offset := 0; offset < maxHistoryExportRows; offset += batch {
		filter.Limit = batch
		filter.Offset = offset
		rows, total, err := s.repo.ListHistory(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
		}
		items = append(items, historyItems(rows, stages)...)
		if len(rows) < batch || offset+len(rows) >= total {
			break
		}
	}
	return items, nil
}

func (s *QueueService) historyFilter(actor models.Actor, query dto.HistoryQuery) (models.HistoryFilter, map[approval.Kind]approval.Stage, error) {
	targets, err := queueTargets(s.machine.Registry(), actor.Role)
	if err != nil {
		return models.HistoryFilter{}, nil, err
	}
	scope, err := reviewScope(actor)
	if err != nil {
		return models.HistoryFilter{}, nil, err
	}
	filter := models.HistoryFilter{
		Targets:        targets,
		OrganizationID: scope,
		Search:         strings.TrimSpace(query.Search),
	}
	if raw := strings.TrimSpace(query.Outcome); raw != "" {
		outcome, err := approval.ParseOutcome(raw)
		if err != nil {
			return models.HistoryFilter{}, nil, appErrors.Clone(appErrors.ErrValidation, "outcome must be APPROVED or REJECTED")
		}
		filter.Outcome = approval.Status(outcome)
	}
	return filter, stageByKind(targets), nil
}

func historyItems(rows []models.Request, stages map[approval.Kind]approval.Stage) []dto.HistoryItem {
	items := make([]dto.HistoryItem, 0, len(rows))
	for _, row := range rows {
		stage := stages[row.Kind]
		rec := row.Approval.Stages.Record(stage)
		if rec == nil {
			continue
		}
		items = append(items, dto.HistoryItem{
			ID:          row.ID,
			Kind:        row.Kind,
			Title:       row.Title,
			Stage:       stage.Label(),
			Decision:    rec.Status,
			DecidedAt:   rec.DecidedAt,
			Remark:      rec.Remark,
			FinalStatus: row.Approval.FinalStatus,
		})
	}
	return items
}

func stageByKind(targets []models.QueueTarget) map[approval.Kind]approval.Stage {
	stages := make(map[approval.Kind]approval.Stage, len(targets))
	for _, target := range targets {
		stages[target.Kind] = target.Stage
	}
	return stages
}
