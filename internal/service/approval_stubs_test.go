package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/repository"
)

// memRequestStore mimics the request repository, including the conditional stage update.
type memRequestStore struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]models.Request
	createErr error
	recordErr error
	listErr   error

	lastPending models.QueueFilter
	lastHistory models.HistoryFilter
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{rows: map[int64]models.Request{}}
}

func (m *memRequestStore) Create(_ context.Context, req *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	req.ID = m.nextID
	m.rows[req.ID] = *req
	return nil
}

func (m *memRequestStore) GetByID(_ context.Context, id int64) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memRequestStore) ListByOwner(_ context.Context, filter models.OwnerFilter) ([]models.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]models.Request, 0)
	for _, row := range m.sorted() {
		if row.OwnerID == filter.OwnerID && (filter.Kind == "" || row.Kind == filter.Kind) {
			matched = append(matched, row)
		}
	}
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (m *memRequestStore) ListPending(_ context.Context, filter models.QueueFilter) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPending = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Request, 0)
	for _, row := range m.sorted() {
		if row.Approval.FinalStatus != approval.StatusPending || !inScope(row, filter.OrganizationID) {
			continue
		}
		for _, target := range filter.Targets {
			if row.Kind == target.Kind && actionable(row, target) {
				out = append(out, row)
				break
			}
		}
	}
	return out, nil
}

func actionable(row models.Request, target models.QueueTarget) bool {
	if row.Approval.Stages.StatusOf(target.Stage) != approval.StatusPending {
		return false
	}
	for _, req := range target.Requires {
		if row.Approval.Stages.StatusOf(req) != approval.StatusApproved {
			return false
		}
	}
	return true
}

func (m *memRequestStore) ListHistory(_ context.Context, filter models.HistoryFilter) ([]models.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHistory = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	matched := make([]models.Request, 0)
	for _, row := range m.sorted() {
		if !inScope(row, filter.OrganizationID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(row.Title), strings.ToLower(filter.Search)) {
			continue
		}
		for _, target := range filter.Targets {
			status := row.Approval.Stages.StatusOf(target.Stage)
			if row.Kind != target.Kind || !status.Decided() {
				continue
			}
			if filter.Outcome != "" && status != filter.Outcome {
				continue
			}
			matched = append(matched, row)
			break
		}
	}
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (m *memRequestStore) RecordDecision(_ context.Context, id int64, stage approval.Stage, apply func(*models.Request) error) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := row
	if err := apply(&working); err != nil {
		return nil, err
	}
	if row.Approval.Stages.StatusOf(stage) != approval.StatusPending {
		return nil, repository.ErrStageConflict
	}
	working.UpdatedAt = time.Now().UTC()
	working.Version++
	m.rows[id] = working
	return &working, nil
}

func (m *memRequestStore) sorted() []models.Request {
	out := make([]models.Request, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func inScope(row models.Request, org *int64) bool {
	return org == nil || (row.OrganizationID != nil && *row.OrganizationID == *org)
}

func page(rows []models.Request, limit, offset int) []models.Request {
	if offset >= len(rows) {
		return []models.Request{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

type memAuditWriter struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (m *memAuditWriter) Create(_ context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *memAuditWriter) ListByEntity(_ context.Context, entity string, entityID int64) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditLog, 0)
	for _, log := range m.logs {
		if log.Entity == entity && log.EntityID == entityID {
			out = append(out, *log)
		}
	}
	return out, nil
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateQueues(context.Context) error {
	c.calls++
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func orgID(id int64) *int64 {
	return &id
}

var (
	testOrg      = orgID(10)
	otherOrg     = orgID(20)
	officerActor = models.Actor{UserID: 100, Role: approval.RoleOfficer, OrganizationID: testOrg}
)

func signatory(role approval.Role, userID int64, org *int64) models.Actor {
	return models.Actor{UserID: userID, Role: role, OrganizationID: org}
}

// approvalFixture wires request, queue and decision services over one in-memory store.
type approvalFixture struct {
	store     *memRequestStore
	audit     *memAuditWriter
	cache     *countingInvalidator
	notifier  *recordingNotifier
	requests  *RequestService
	queues    *QueueService
	decisions *DecisionService
}

func newApprovalFixture() *approvalFixture {
	store := newMemRequestStore()
	audit := &memAuditWriter{}
	cache := &countingInvalidator{}
	notifier := &recordingNotifier{}
	machine := approval.NewMachine(nil)
	return &approvalFixture{
		store:     store,
		audit:     audit,
		cache:     cache,
		notifier:  notifier,
		requests:  NewRequestService(store, machine, audit, cache, notifier, nil, nil, 10),
		queues:    NewQueueService(store, machine, nil, nil, nil, 10, 0),
		decisions: NewDecisionService(store, machine, audit, cache, notifier, nil, nil, nil),
	}
}
