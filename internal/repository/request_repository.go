package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/models"
)

// ErrStageConflict is returned when the conditional stage update matched no row, meaning a
// concurrent reviewer decided the stage first.
var ErrStageConflict = errors.New("repository: stage no longer pending")

const maxListPerPage = 200

// stageColumns maps a stage to its column prefix. Column names never come from user input.
func stageColumns(stage approval.Stage) (string, bool) {
	switch stage {
	case approval.StageAdviser:
		return "adviser", true
	case approval.StageDean:
		return "dean", true
	case approval.StageAdminServices:
		return "admin_services", true
	case approval.StageOSAFA:
		return "osafa", true
	case approval.StageCFDO:
		return "cfdo", true
	case approval.StageAFO:
		return "afo", true
	case approval.StageVPAcademic:
		return "vp_academic", true
	case approval.StageVPAdministration:
		return "vp_administration", true
	default:
		return "", false
	}
}

var requestColumns = buildRequestColumns()

func buildRequestColumns() string {
	cols := []string{
		"id", "kind", "owner_id", "organization_id", "title", "description",
		"funding_type", "amount", "cost_breakdown", "venue_name", "event_starts_at", "event_ends_at", "equipment",
	}
	for _, stage := range approval.AllStages {
		prefix, _ := stageColumns(stage)
		cols = append(cols, prefix+"_status", prefix+"_decided_at", prefix+"_decided_by", prefix+"_remark")
	}
	cols = append(cols, "final_status", "budget_status", "notification_status", "submitted_at", "updated_at", "version")
	return strings.Join(cols, ", ")
}

// requestRow is the flat persisted shape of a request.
type requestRow struct {
	ID             int64               `db:"id"`
	Kind           string              `db:"kind"`
	OwnerID        int64               `db:"owner_id"`
	OrganizationID *int64              `db:"organization_id"`
	Title          string              `db:"title"`
	Description    string              `db:"description"`
	FundingType    *string             `db:"funding_type"`
	Amount         decimal.NullDecimal `db:"amount"`
	CostBreakdown  *string             `db:"cost_breakdown"`
	VenueName      *string             `db:"venue_name"`
	EventStartsAt  *time.Time          `db:"event_starts_at"`
	EventEndsAt    *time.Time          `db:"event_ends_at"`
	Equipment      *string             `db:"equipment"`

	AdviserStatus    *string    `db:"adviser_status"`
	AdviserDecidedAt *time.Time `db:"adviser_decided_at"`
	AdviserDecidedBy *int64     `db:"adviser_decided_by"`
	AdviserRemark    *string    `db:"adviser_remark"`

	DeanStatus    *string    `db:"dean_status"`
	DeanDecidedAt *time.Time `db:"dean_decided_at"`
	DeanDecidedBy *int64     `db:"dean_decided_by"`
	DeanRemark    *string    `db:"dean_remark"`

	AdminServicesStatus    *string    `db:"admin_services_status"`
	AdminServicesDecidedAt *time.Time `db:"admin_services_decided_at"`
	AdminServicesDecidedBy *int64     `db:"admin_services_decided_by"`
	AdminServicesRemark    *string    `db:"admin_services_remark"`

	OSAFAStatus    *string    `db:"osafa_status"`
	OSAFADecidedAt *time.Time `db:"osafa_decided_at"`
	OSAFADecidedBy *int64     `db:"osafa_decided_by"`
	OSAFARemark    *string    `db:"osafa_remark"`

	CFDOStatus    *string    `db:"cfdo_status"`
	CFDODecidedAt *time.Time `db:"cfdo_decided_at"`
	CFDODecidedBy *int64     `db:"cfdo_decided_by"`
	CFDORemark    *string    `db:"cfdo_remark"`

	AFOStatus    *string    `db:"afo_status"`
	AFODecidedAt *time.Time `db:"afo_decided_at"`
	AFODecidedBy *int64     `db:"afo_decided_by"`
	AFORemark    *string    `db:"afo_remark"`

	VPAcademicStatus    *string    `db:"vp_academic_status"`
	VPAcademicDecidedAt *time.Time `db:"vp_academic_decided_at"`
	VPAcademicDecidedBy *int64     `db:"vp_academic_decided_by"`
	VPAcademicRemark    *string    `db:"vp_academic_remark"`

	VPAdministrationStatus    *string    `db:"vp_administration_status"`
	VPAdministrationDecidedAt *time.Time `db:"vp_administration_decided_at"`
	VPAdministrationDecidedBy *int64     `db:"vp_administration_decided_by"`
	VPAdministrationRemark    *string    `db:"vp_administration_remark"`

	FinalStatus        string    `db:"final_status"`
	BudgetStatus       string    `db:"budget_status"`
	NotificationStatus string    `db:"notification_status"`
	SubmittedAt        time.Time `db:"submitted_at"`
	UpdatedAt          time.Time `db:"updated_at"`
	Version            int       `db:"version"`
}

type stageFields struct {
	status    **string
	decidedAt **time.Time
	decidedBy **int64
	remark    **string
}

func (r *requestRow) stage(stage approval.Stage) (stageFields, bool) {
	switch stage {
	case approval.StageAdviser:
		return stageFields{&r.AdviserStatus, &r.AdviserDecidedAt, &r.AdviserDecidedBy, &r.AdviserRemark}, true
	case approval.StageDean:
		return stageFields{&r.DeanStatus, &r.DeanDecidedAt, &r.DeanDecidedBy, &r.DeanRemark}, true
	case approval.StageAdminServices:
		return stageFields{&r.AdminServicesStatus, &r.AdminServicesDecidedAt, &r.AdminServicesDecidedBy, &r.AdminServicesRemark}, true
	case approval.StageOSAFA:
		return stageFields{&r.OSAFAStatus, &r.OSAFADecidedAt, &r.OSAFADecidedBy, &r.OSAFARemark}, true
	case approval.StageCFDO:
		return stageFields{&r.CFDOStatus, &r.CFDODecidedAt, &r.CFDODecidedBy, &r.CFDORemark}, true
	case approval.StageAFO:
		return stageFields{&r.AFOStatus, &r.AFODecidedAt, &r.AFODecidedBy, &r.AFORemark}, true
	case approval.StageVPAcademic:
		return stageFields{&r.VPAcademicStatus, &r.VPAcademicDecidedAt, &r.VPAcademicDecidedBy, &r.VPAcademicRemark}, true
	case approval.StageVPAdministration:
		return stageFields{&r.VPAdministrationStatus, &r.VPAdministrationDecidedAt, &r.VPAdministrationDecidedBy, &r.VPAdministrationRemark}, true
	default:
		return stageFields{}, false
	}
}

func rowFromModel(req *models.Request) (*requestRow, error) {
	row := &requestRow{
		ID:                 req.ID,
		Kind:               string(req.Kind),
		OwnerID:            req.OwnerID,
		OrganizationID:     req.OrganizationID,
		Title:              req.Title,
		Description:        req.Description,
		FinalStatus:        string(req.Approval.FinalStatus),
		BudgetStatus:       string(req.Approval.BudgetStatus),
		NotificationStatus: req.Approval.NotificationStatus,
		SubmittedAt:        req.SubmittedAt,
		UpdatedAt:          req.UpdatedAt,
		Version:            req.Version,
	}
	if f := req.Funding; f != nil {
		fundingType := string(f.Type)
		row.FundingType = &fundingType
		row.Amount = decimal.NullDecimal{Decimal: f.Amount, Valid: true}
		payload, err := json.Marshal(f.CostBreakdown)
		if err != nil {
			return nil, fmt.Errorf("encode cost breakdown: %w", err)
		}
		encoded := string(payload)
		row.CostBreakdown = &encoded
	}
	if v := req.Venue; v != nil {
		name := v.VenueName
		starts, ends := v.StartsAt, v.EndsAt
		row.VenueName = &name
		row.EventStartsAt = &starts
		row.EventEndsAt = &ends
		payload, err := json.Marshal(v.Equipment)
		if err != nil {
			return nil, fmt.Errorf("encode equipment: %w", err)
		}
		encoded := string(payload)
		row.Equipment = &encoded
	}
	for _, stage := range approval.AllStages {
		fields, _ := row.stage(stage)
		rec := req.Approval.Stages.Record(stage)
		if rec.Status == "" {
			continue
		}
		status := string(rec.Status)
		*fields.status = &status
		*fields.decidedAt = rec.DecidedAt
		*fields.decidedBy = rec.DecidedBy
		*fields.remark = rec.Remark
	}
	return row, nil
}

func (r *requestRow) toModel() (*models.Request, error) {
	req := &models.Request{
		ID:             r.ID,
		Kind:           approval.Kind(r.Kind),
		OwnerID:        r.OwnerID,
		OrganizationID: r.OrganizationID,
		Title:          r.Title,
		Description:    r.Description,
		SubmittedAt:    r.SubmittedAt,
		UpdatedAt:      r.UpdatedAt,
		Version:        r.Version,
		Approval: approval.Snapshot{
			Kind:               approval.Kind(r.Kind),
			FinalStatus:        approval.Status(r.FinalStatus),
			BudgetStatus:       approval.BudgetStatus(r.BudgetStatus),
			NotificationStatus: r.NotificationStatus,
		},
	}
	if r.FundingType != nil {
		funding := &models.FundingDetails{Type: models.FundingType(*r.FundingType), Amount: r.Amount.Decimal}
		if r.CostBreakdown != nil {
			if err := json.Unmarshal([]byte(*r.CostBreakdown), &funding.CostBreakdown); err != nil {
				return nil, fmt.Errorf("decode cost breakdown for request %d: %w", r.ID, err)
			}
		}
		req.Funding = funding
	}
	if r.VenueName != nil {
		venue := &models.VenueDetails{VenueName: *r.VenueName}
		if r.EventStartsAt != nil {
			venue.StartsAt = *r.EventStartsAt
		}
		if r.EventEndsAt != nil {
			venue.EndsAt = *r.EventEndsAt
		}
		if r.Equipment != nil {
			if err := json.Unmarshal([]byte(*r.Equipment), &venue.Equipment); err != nil {
				return nil, fmt.Errorf("decode equipment for request %d: %w", r.ID, err)
			}
		}
		req.Venue = venue
	}
	for _, stage := range approval.AllStages {
		fields, _ := r.stage(stage)
		rec := req.Approval.Stages.Record(stage)
		if *fields.status != nil {
			rec.Status = approval.Status(**fields.status)
		}
		rec.DecidedAt = *fields.decidedAt
		rec.DecidedBy = *fields.decidedBy
		rec.Remark = *fields.remark
	}
	return req, nil
}

func rowsToModels(rows []requestRow) ([]models.Request, error) {
	result := make([]models.Request, 0, len(rows))
	for i := range rows {
		req, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, nil
}

// RequestRepository persists funding and venue requests with their stage columns.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request and fills in its generated id.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	now := time.Now().UTC()
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}
	req.UpdatedAt = req.SubmittedAt
	if req.Version == 0 {
		req.Version = 1
	}
	row, err := rowFromModel(req)
	if err != nil {
		return err
	}

	cols := strings.Split(requestColumns, ", ")[1:]
	named := make([]string, len(cols))
	for i, col := range cols {
		named[i] = ":" + col
	}
	query := fmt.Sprintf("INSERT INTO requests (%s) VALUES (%s) RETURNING id", strings.Join(cols, ", "), strings.Join(named, ", "))
	bound, args, err := sqlx.Named(query, row)
	if err != nil {
		return fmt.Errorf("bind request insert: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, sqlx.Rebind(sqlx.DOLLAR, bound), args...).Scan(&req.ID); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier. Missing rows return sql.ErrNoRows.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	var row requestRow
	query := fmt.Sprintf("SELECT %s FROM requests WHERE id = $1", requestColumns)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// ListByOwner returns an officer's requests, newest first, with the total count.
func (r *RequestRepository) ListByOwner(ctx context.Context, filter models.OwnerFilter) ([]models.Request, int, error) {
	conditions := []string{"owner_id = $1"}
	args := []interface{}{filter.OwnerID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count owner requests: %w", err)
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM requests%s ORDER BY submitted_at DESC, id DESC LIMIT %d OFFSET %d", requestColumns, where, limit, offset)
	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list owner requests: %w", err)
	}
	items, err := rowsToModels(rows)
	return items, total, err
}

// ListPending returns unfinished requests whose target stage is pending and whose required stages
// are approved, oldest first. Every ready request is returned.
func (r *RequestRepository) ListPending(ctx context.Context, filter models.QueueFilter) ([]models.Request, error) {
	if len(filter.Targets) == 0 {
		return []models.Request{}, nil
	}
	args := make([]interface{}, 0, len(filter.Targets)+1)
	targetClauses := make([]string, 0, len(filter.Targets))
	for _, target := range filter.Targets {
		prefix, ok := stageColumns(target.Stage)
		if !ok {
			return nil, fmt.Errorf("list pending: unknown stage %d", target.Stage)
		}
		args = append(args, string(target.Kind))
		clause := fmt.Sprintf("kind = $%d AND %s_status = 'PENDING'", len(args), prefix)
		for _, req := range target.Requires {
			reqPrefix, ok := stageColumns(req)
			if !ok {
				return nil, fmt.Errorf("list pending: unknown stage %d", req)
			}
			clause += fmt.Sprintf(" AND %s_status = 'APPROVED'", reqPrefix)
		}
		targetClauses = append(targetClauses, "("+clause+")")
	}
	conditions := []string{
		"final_status = 'PENDING'",
		"(" + strings.Join(targetClauses, " OR ") + ")",
	}
	if filter.OrganizationID != nil {
		args = append(args, *filter.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM requests WHERE %s ORDER BY submitted_at ASC, id ASC",
		requestColumns, strings.Join(conditions, " AND "))
	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return rowsToModels(rows)
}

// ListHistory returns requests already decided at the target stages, latest decision first.
func (r *RequestRepository) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.Request, int, error) {
	if len(filter.Targets) == 0 {
		return []models.Request{}, 0, nil
	}
	args := make([]interface{}, 0, len(filter.Targets)+3)
	targetClauses := make([]string, 0, len(filter.Targets))
	orderCases := make([]string, 0, len(filter.Targets))
	for _, target := range filter.Targets {
		prefix, ok := stageColumns(target.Stage)
		if !ok {
			return nil, 0, fmt.Errorf("list history: unknown stage %d", target.Stage)
		}
		args = append(args, string(target.Kind))
		kindArg := len(args)
		clause := fmt.Sprintf("kind = $%d AND %s_status IN ('APPROVED', 'REJECTED')", kindArg, prefix)
		if filter.Outcome != "" {
			args = append(args, string(filter.Outcome))
			clause += fmt.Sprintf(" AND %s_status = $%d", prefix, len(args))
		}
		targetClauses = append(targetClauses, "("+clause+")")
		orderCases = append(orderCases, fmt.Sprintf("WHEN $%d THEN %s_decided_at", kindArg, prefix))
	}
	conditions := []string{"(" + strings.Join(targetClauses, " OR ") + ")"}
	if filter.OrganizationID != nil {
		args = append(args, *filter.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM requests%s ORDER BY CASE kind %s END DESC NULLS LAST, id DESC LIMIT %d OFFSET %d",
		requestColumns, where, strings.Join(orderCases, " "), limit, offset)
	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	items, err := rowsToModels(rows)
	return items, total, err
}

// RecordDecision locks the request row, lets apply mutate the loaded request and writes the
// stage columns back with a conditional update. Errors returned by apply abort the transaction
// and are passed through unchanged.
func (r *RequestRepository) RecordDecision(ctx context.Context, id int64, stage approval.Stage, apply func(*models.Request) error) (_ *models.Request, err error) {
	prefix, ok := stageColumns(stage)
	if !ok {
		return nil, fmt.Errorf("record decision: unknown stage %d", stage)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decision transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row requestRow
	selectQuery := fmt.Sprintf("SELECT %s FROM requests WHERE id = $1 FOR UPDATE", requestColumns)
	if err = tx.GetContext(ctx, &row, selectQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock request: %w", err)
	}
	req, err := row.toModel()
	if err != nil {
		return nil, err
	}
	if err = apply(req); err != nil {
		return nil, err
	}

	rec := req.Approval.Stages.Record(stage)
	req.UpdatedAt = time.Now().UTC()
	updateQuery := fmt.Sprintf(`UPDATE requests SET %[1]s_status = $1, %[1]s_decided_at = $2, %[1]s_decided_by = $3, %[1]s_remark = $4,
	final_status = $5, budget_status = $6, notification_status = $7, updated_at = $8, version = version + 1
	WHERE id = $9 AND %[1]s_status = 'PENDING'`, prefix)
	result, err := tx.ExecContext(ctx, updateQuery,
		string(rec.Status), rec.DecidedAt, rec.DecidedBy, rec.Remark,
		string(req.Approval.FinalStatus), string(req.Approval.BudgetStatus), req.Approval.NotificationStatus,
		req.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update request stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check stage update rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrStageConflict
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decision: %w", err)
	}
	req.Version++
	return req, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxListPerPage {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
