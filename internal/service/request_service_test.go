package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/middleware/requestid"
)

func fundingPayload() dto.CreateFundingRequest {
	return dto.CreateFundingRequest{
		Title:       "Leadership summit",
		Description: "Annual officers summit",
		Type:        models.FundingTypeBudget,
		Amount:      decimal.RequireFromString("1500.00"),
		CostBreakdown: []dto.CostItemInput{
			{Description: "Venue rental", Quantity: 1, UnitCost: decimal.RequireFromString("1000")},
			{Description: "Snacks", Quantity: 50, UnitCost: decimal.RequireFromString("10")},
		},
	}
}

func venuePayload() dto.CreateVenueRequest {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return dto.CreateVenueRequest{
		Title:     "Org general assembly",
		VenueName: "Main Auditorium",
		StartsAt:  start,
		EndsAt:    start.Add(3 * time.Hour),
		Equipment: []dto.EquipmentInput{{Name: "Microphone", Quantity: 2}, {Name: "Projector", Quantity: 0}},
	}
}

func TestCreateFundingInitialState(t *testing.T) {
	fx := newApprovalFixture()

	detail, err := fx.requests.CreateFunding(context.Background(), officerActor, fundingPayload())
	require.NoError(t, err)

	assert.Equal(t, int64(1), detail.ID)
	assert.Equal(t, approval.KindFunding, detail.Kind)
	assert.Equal(t, officerActor.UserID, detail.OwnerID)
	assert.Equal(t, testOrg, detail.OrganizationID)
	assert.Equal(t, approval.StatusPending, detail.Approval.FinalStatus)
	assert.Equal(t, "Awaiting Adviser Approval", detail.Approval.NotificationStatus)
	require.NotNil(t, detail.NextRole)
	assert.Equal(t, approval.RoleAdviser, *detail.NextRole)
	require.Len(t, detail.Stages, 4)
	for _, view := range detail.Stages {
		assert.Equal(t, approval.StatusPending, view.Status)
		assert.Equal(t, "Pending", view.Display)
	}

	require.Len(t, fx.audit.logs, 1)
	assert.Equal(t, models.AuditActionRequestCreate, fx.audit.logs[0].Action)
	assert.Equal(t, 1, fx.cache.calls)

	event := fx.notifier.last()
	assert.Equal(t, detail.ID, event.RequestID)
	assert.Equal(t, officerActor.UserID, event.RecipientID)
	assert.Equal(t, []approval.Role{approval.RoleAdviser}, event.NextRoles)
	assert.Empty(t, event.Role)
	assert.Equal(t, testOrg, event.OrganizationID)
}

func TestCreateFundingValidation(t *testing.T) {
	cases := []struct {
		name   string
		actor  models.Actor
		mutate func(*dto.CreateFundingRequest)
		want   *appErrors.Error
	}{
		{
			name:   "breakdown does not match amount",
			actor:  officerActor,
			mutate: func(p *dto.CreateFundingRequest) { p.Amount = decimal.RequireFromString("1499.99") },
			want:   appErrors.ErrValidation,
		},
		{
			name:   "zero amount",
			actor:  officerActor,
			mutate: func(p *dto.CreateFundingRequest) { p.Amount = decimal.Zero; p.CostBreakdown[0].UnitCost = decimal.Zero },
			want:   appErrors.ErrValidation,
		},
		{
			name:   "unknown funding type",
			actor:  officerActor,
			mutate: func(p *dto.CreateFundingRequest) { p.Type = "GRANT" },
			want:   appErrors.ErrValidation,
		},
		{
			name:   "empty breakdown",
			actor:  officerActor,
			mutate: func(p *dto.CreateFundingRequest) { p.CostBreakdown = nil },
			want:   appErrors.ErrValidation,
		},
		{
			name:   "officer without organization",
			actor:  models.Actor{UserID: 5, Role: approval.RoleOfficer},
			mutate: func(*dto.CreateFundingRequest) {},
			want:   appErrors.ErrValidation,
		},
		{
			name:   "signatory cannot submit",
			actor:  signatory(approval.RoleDean, 6, testOrg),
			mutate: func(*dto.CreateFundingRequest) {},
			want:   appErrors.ErrForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newApprovalFixture()
			payload := fundingPayload()
			tc.mutate(&payload)
			_, err := fx.requests.CreateFunding(context.Background(), tc.actor, payload)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, fx.store.rows)
			assert.Empty(t, fx.notifier.events)
		})
	}
}

func TestCreateVenue(t *testing.T) {
	fx := newApprovalFixture()

	detail, err := fx.requests.CreateVenue(context.Background(), officerActor, venuePayload())
	require.NoError(t, err)
	assert.Equal(t, "Awaiting Dean Approval", detail.Approval.NotificationStatus)
	assert.Equal(t, approval.BudgetNone, detail.Approval.BudgetStatus)
	require.Len(t, detail.Stages, 7)
	assert.Empty(t, detail.Approval.Stages.Adviser.Status)

	bad := venuePayload()
	bad.EndsAt = bad.StartsAt
	_, err = fx.requests.CreateVenue(context.Background(), officerActor, bad)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	negative := venuePayload()
	negative.Equipment[0].Quantity = -1
	_, err = fx.requests.CreateVenue(context.Background(), officerActor, negative)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreateRequestPersistenceFailure(t *testing.T) {
	fx := newApprovalFixture()
	fx.store.createErr = errors.New("db down")

	_, err := fx.requests.CreateFunding(context.Background(), officerActor, fundingPayload())
	require.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, fx.notifier.events)
	assert.Zero(t, fx.cache.calls)
}

func TestGetRequestVisibility(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()
	funding, err := fx.requests.CreateFunding(ctx, officerActor, fundingPayload())
	require.NoError(t, err)

	cases := []struct {
		name  string
		actor models.Actor
		want  *appErrors.Error
	}{
		{name: "owner", actor: officerActor},
		{name: "adviser in organization", actor: signatory(approval.RoleAdviser, 2, testOrg)},
		{name: "unscoped dean", actor: signatory(approval.RoleDean, 3, nil)},
		{name: "osafa", actor: signatory(approval.RoleOSAFA, 4, nil)},
		{name: "other officer", actor: models.Actor{UserID: 101, Role: approval.RoleOfficer, OrganizationID: testOrg}, want: appErrors.ErrForbidden},
		{name: "adviser elsewhere", actor: signatory(approval.RoleAdviser, 5, otherOrg), want: appErrors.ErrForbidden},
		{name: "scoped dean elsewhere", actor: signatory(approval.RoleDean, 6, otherOrg), want: appErrors.ErrForbidden},
		{name: "venue-only role", actor: signatory(approval.RoleCFDO, 7, nil), want: appErrors.ErrForbidden},
		{name: "unconfigured role", actor: signatory("REGISTRAR", 8, nil), want: appErrors.ErrConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			detail, err := fx.requests.Get(ctx, tc.actor, funding.ID)
			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, funding.ID, detail.ID)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err = fx.requests.Get(ctx, officerActor, 999)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListMinePaginates(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()
	fx.requests.pageSize = 2

	for i := 0; i < 3; i++ {
		_, err := fx.requests.CreateVenue(ctx, officerActor, venuePayload())
		require.NoError(t, err)
	}
	_, err := fx.requests.CreateFunding(ctx, officerActor, fundingPayload())
	require.NoError(t, err)

	items, pagination, err := fx.requests.ListMine(ctx, officerActor, dto.MyRequestsQuery{Kind: approval.KindVenue, Page: 2})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 2, pagination.TotalPages)

	_, _, err = fx.requests.ListMine(ctx, officerActor, dto.MyRequestsQuery{Kind: "CATERING"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTrailListsRequestAudit(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()
	id := submitFunding(t, fx)
	approveAs(t, fx, adviser, id)

	trail, err := fx.requests.Trail(ctx, officerActor, id)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.AuditActionRequestCreate, trail[0].Action)
	assert.Equal(t, models.AuditActionStageDecision, trail[1].Action)
	assert.Equal(t, approval.RoleAdviser, trail[1].ActorRole)

	_, err = fx.requests.Trail(ctx, signatory(approval.RoleAdviser, 5, otherOrg), id)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAuditCarriesHTTPRequestID(t *testing.T) {
	fx := newApprovalFixture()
	ctx := requestid.WithValue(context.Background(), "req-7")

	_, err := fx.requests.CreateFunding(ctx, officerActor, fundingPayload())
	require.NoError(t, err)

	require.Len(t, fx.audit.logs, 1)
	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(fx.audit.logs[0].Details, &details))
	assert.Equal(t, "req-7", details["http_request_id"])
	assert.Equal(t, "FUNDING", details["kind"])
}
