package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

type mapQueueCache struct {
	entries map[string][]byte
	sets    int
}

func (m *mapQueueCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *mapQueueCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.sets++
	return nil
}

func TestAdviserWithoutOrganizationIsConfigurationError(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()

	_, err := fx.queues.Pending(ctx, signatory(approval.RoleAdviser, 1, nil))
	require.ErrorIs(t, err, appErrors.ErrConfiguration)

	queue, err := fx.queues.Pending(ctx, adviser)
	require.NoError(t, err)
	assert.Empty(t, queue.Items)
	assert.Equal(t, approval.RoleAdviser, queue.Role)
	require.NotNil(t, queue.Scope)
	assert.Equal(t, *testOrg, *queue.Scope)
}

func TestUnconfiguredRoleRefusesQueue(t *testing.T) {
	fx := newApprovalFixture()

	_, err := fx.queues.Pending(context.Background(), signatory("REGISTRAR", 1, nil))
	require.ErrorIs(t, err, appErrors.ErrConfiguration)
	require.ErrorIs(t, err, approval.ErrUnconfiguredRole)

	_, err = fx.queues.History(context.Background(), signatory("REGISTRAR", 1, nil), dto.HistoryQuery{})
	require.ErrorIs(t, err, appErrors.ErrConfiguration)
}

func TestPendingQueueScoping(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()
	mine := submitFunding(t, fx)

	elsewhere := officerActor
	elsewhere.UserID = 200
	elsewhere.OrganizationID = otherOrg
	_, err := fx.requests.CreateFunding(ctx, elsewhere, fundingPayload())
	require.NoError(t, err)
	venue := submitVenue(t, fx)

	queue, err := fx.queues.Pending(ctx, adviser)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, mine, queue.Items[0].ID)
	assert.Equal(t, "Adviser", queue.Items[0].Stage)

	// Deans see venue requests immediately, funding only after the adviser.
	queue, err = fx.queues.Pending(ctx, dean)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, venue, queue.Items[0].ID)

	approveAs(t, fx, adviser, mine)
	queue, err = fx.queues.Pending(ctx, signatory(approval.RoleDean, 2, otherOrg))
	require.NoError(t, err)
	assert.Empty(t, queue.Items)

	queue, err = fx.queues.Pending(ctx, signatory(approval.RoleDean, 2, testOrg))
	require.NoError(t, err)
	assert.Len(t, queue.Items, 2)
}

func TestPendingQueueAsksStoreForReadyRowsOnly(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()

	// Older requests still waiting on CFDO must not crowd out the one AFO can act on.
	for i := 0; i < 3; i++ {
		waiting := submitVenue(t, fx)
		approveAs(t, fx, dean, waiting)
		approveAs(t, fx, adminServices, waiting)
		approveAs(t, fx, osafa, waiting)
	}
	ready := submitVenue(t, fx)
	for _, actor := range []models.Actor{dean, adminServices, osafa, cfdo} {
		approveAs(t, fx, actor, ready)
	}

	queue, err := fx.queues.Pending(ctx, afo)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, ready, queue.Items[0].ID)

	var venueTarget models.QueueTarget
	for _, target := range fx.store.lastPending.Targets {
		if target.Kind == approval.KindVenue {
			venueTarget = target
		}
	}
	assert.Equal(t, approval.StageAFO, venueTarget.Stage)
	assert.ElementsMatch(t, []approval.Stage{approval.StageOSAFA, approval.StageCFDO}, venueTarget.Requires)
}

func TestPendingQueueUsesCache(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()
	cache := &mapQueueCache{entries: map[string][]byte{}}
	fx.queues.cache = cache
	submitFunding(t, fx)

	first, err := fx.queues.Pending(ctx, adviser)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)
	assert.Contains(t, cache.entries, QueueKey(approval.RoleAdviser, testOrg))

	fx.store.listErr = errors.New("store should not be hit")
	second, err := fx.queues.Pending(ctx, adviser)
	require.NoError(t, err)
	assert.Equal(t, first.Items[0].ID, second.Items[0].ID)
	assert.True(t, second.Cached)
}

func TestPendingQueueStoreFailure(t *testing.T) {
	fx := newApprovalFixture()
	fx.store.listErr = errors.New("timeout")

	_, err := fx.queues.Pending(context.Background(), osafa)
	require.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestHistoryFiltersAndPages(t *testing.T) {
	fx := newApprovalFixture()
	ctx := context.Background()
	fx.queues.pageSize = 2

	ids := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		ids = append(ids, submitFunding(t, fx))
	}
	approveAs(t, fx, adviser, ids[0])
	approveAs(t, fx, adviser, ids[1])
	_, err := fx.decisions.Record(ctx, adviser, ids[2], dto.DecisionRequest{Decision: "REJECTED", Remark: "missing receipts"})
	require.NoError(t, err)

	page1, err := fx.queues.History(ctx, adviser, dto.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page1.Total)
	assert.Len(t, page1.Items, 2)
	assert.Equal(t, 2, page1.PageSize)

	rejected, err := fx.queues.History(ctx, adviser, dto.HistoryQuery{Outcome: "rejected"})
	require.NoError(t, err)
	require.Len(t, rejected.Items, 1)
	item := rejected.Items[0]
	assert.Equal(t, ids[2], item.ID)
	assert.Equal(t, approval.StatusRejected, item.Decision)
	assert.Equal(t, approval.StatusRejected, item.FinalStatus)
	require.NotNil(t, item.Remark)
	assert.Equal(t, "missing receipts", *item.Remark)
	assert.Equal(t, approval.StatusRejected, fx.store.lastHistory.Outcome)

	_, err = fx.queues.History(ctx, adviser, dto.HistoryQuery{Outcome: "pending"})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	all, err := fx.queues.HistoryAll(ctx, adviser, dto.HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Deans have decided nothing yet.
	none, err := fx.queues.History(ctx, dean, dto.HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}
