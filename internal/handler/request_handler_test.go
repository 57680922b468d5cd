package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/service"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

type requestServiceMock struct {
	createResp *dto.RequestDetail
	createErr  error
	lastActor  models.Actor
	lastQuery  dto.MyRequestsQuery
	lastID     int64
	funding    *dto.CreateFundingRequest
	venue      *dto.CreateVenueRequest
	listResp   []models.Request
}

func (m *requestServiceMock) CreateFunding(_ context.Context, actor models.Actor, req dto.CreateFundingRequest) (*dto.RequestDetail, error) {
	m.lastActor = actor
	m.funding = &req
	return m.createResp, m.createErr
}

func (m *requestServiceMock) CreateVenue(_ context.Context, actor models.Actor, req dto.CreateVenueRequest) (*dto.RequestDetail, error) {
	m.lastActor = actor
	m.venue = &req
	return m.createResp, m.createErr
}

func (m *requestServiceMock) ListMine(_ context.Context, actor models.Actor, query dto.MyRequestsQuery) ([]models.Request, *models.Pagination, error) {
	m.lastActor = actor
	m.lastQuery = query
	return m.listResp, models.NewPagination(query.Page, 10, len(m.listResp)), nil
}

func (m *requestServiceMock) Get(_ context.Context, _ models.Actor, id int64) (*dto.RequestDetail, error) {
	m.lastID = id
	if id == 404 {
		return nil, appErrors.ErrNotFound
	}
	return &dto.RequestDetail{Request: models.Request{ID: id}}, nil
}

func (m *requestServiceMock) Trail(_ context.Context, _ models.Actor, id int64) ([]models.AuditLog, error) {
	m.lastID = id
	return []models.AuditLog{{ID: 1, Action: models.AuditActionRequestCreate, EntityID: id}}, nil
}

type pdfMock struct{ err error }

func (m pdfMock) RequestPDF(_ context.Context, _ models.Actor, id int64) (*service.Rendered, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.Rendered{FileName: "request-1.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}, nil
}

func TestRequestHandlerCreateFunding(t *testing.T) {
	svc := &requestServiceMock{createResp: &dto.RequestDetail{Request: models.Request{ID: 1, Kind: approval.KindFunding}}}
	h := NewRequestHandler(svc, pdfMock{})

	payload, _ := json.Marshal(dto.CreateFundingRequest{
		Title:  "Sports fest",
		Type:   models.FundingTypeBudget,
		Amount: decimal.RequireFromString("1500.00"),
		CostBreakdown: []dto.CostItemInput{
			{Description: "Venue", Quantity: 1, UnitCost: decimal.RequireFromString("1500.00")},
		},
	})
	c, w := testContext(http.MethodPost, "/requests/funding", bytes.NewReader(payload), officerClaims())

	h.CreateFunding(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.funding)
	assert.True(t, svc.funding.Amount.Equal(decimal.RequireFromString("1500")))
	assert.EqualValues(t, 100, svc.lastActor.UserID)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, pdfMock{})
	c, w := testContext(http.MethodPost, "/requests/venue", bytes.NewBufferString(`{"title":`), officerClaims())

	h.CreateVenue(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestRequestHandlerRequiresSession(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, pdfMock{})
	c, w := testContext(http.MethodGet, "/requests/mine", nil, nil)

	h.ListMine(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestHandlerCreateServiceError(t *testing.T) {
	svc := &requestServiceMock{createErr: appErrors.ErrForbidden}
	h := NewRequestHandler(svc, pdfMock{})
	payload, _ := json.Marshal(dto.CreateVenueRequest{Title: "Gym", VenueName: "Main Gym"})
	c, w := testContext(http.MethodPost, "/requests/venue", bytes.NewReader(payload), signatoryClaims(approval.RoleDean))

	h.CreateVenue(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, svc.venue)
}

func TestRequestHandlerListMine(t *testing.T) {
	svc := &requestServiceMock{listResp: []models.Request{{ID: 3}}}
	h := NewRequestHandler(svc, pdfMock{})
	c, w := testContext(http.MethodGet, "/requests/mine?kind=venue&page=2", nil, officerClaims())

	h.ListMine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, approval.KindVenue, svc.lastQuery.Kind)
	assert.Equal(t, 2, svc.lastQuery.Page)
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
}

func TestRequestHandlerListMineBadPage(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, pdfMock{})
	c, w := testContext(http.MethodGet, "/requests/mine?page=zero", nil, officerClaims())

	h.ListMine(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerGet(t *testing.T) {
	svc := &requestServiceMock{}
	h := NewRequestHandler(svc, pdfMock{})

	c, w := testContext(http.MethodGet, "/requests/42", nil, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 42, svc.lastID)

	c, w = testContext(http.MethodGet, "/requests/404", nil, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "404"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = testContext(http.MethodGet, "/requests/abc", nil, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerDocument(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, pdfMock{})
	c, w := testContext(http.MethodGet, "/requests/1/document", nil, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	h.Document(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "request-1.pdf")

	h = NewRequestHandler(&requestServiceMock{}, pdfMock{err: appErrors.ErrForbidden})
	c, w = testContext(http.MethodGet, "/requests/1/document", nil, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.Document(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestHandlerTrail(t *testing.T) {
	svc := &requestServiceMock{}
	h := NewRequestHandler(svc, pdfMock{})
	c, w := testContext(http.MethodGet, "/requests/8/audit", nil, officerClaims())
	c.Params = gin.Params{{Key: "id", Value: "8"}}

	h.Trail(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 8, svc.lastID)
	assert.Contains(t, w.Body.String(), models.AuditActionRequestCreate)
}
