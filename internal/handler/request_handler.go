package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/service"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/response"
)

type requestService interface {
	CreateFunding(ctx context.Context, actor models.Actor, req dto.CreateFundingRequest) (*dto.RequestDetail, error)
	CreateVenue(ctx context.Context, actor models.Actor, req dto.CreateVenueRequest) (*dto.RequestDetail, error)
	ListMine(ctx context.Context, actor models.Actor, query dto.MyRequestsQuery) ([]models.Request, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id int64) (*dto.RequestDetail, error)
	Trail(ctx context.Context, actor models.Actor, id int64) ([]models.AuditLog, error)
}

type requestDocuments interface {
	RequestPDF(ctx context.Context, actor models.Actor, id int64) (*service.Rendered, error)
}

// RequestHandler exposes officer submission endpoints.
type RequestHandler struct {
	service   requestService
	documents requestDocuments
}

// NewRequestHandler builds a new handler.
func NewRequestHandler(service requestService, documents requestDocuments) *RequestHandler {
	return &RequestHandler{service: service, documents: documents}
}

// CreateFunding godoc
// @Summary Submit a funding request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateFundingRequest true "Funding payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests/funding [post]
func (h *RequestHandler) CreateFunding(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateFundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid funding payload"))
		return
	}
	detail, err := h.service.CreateFunding(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// CreateVenue godoc
// @Summary Submit a venue booking
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateVenueRequest true "Venue payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests/venue [post]
func (h *RequestHandler) CreateVenue(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid venue payload"))
		return
	}
	detail, err := h.service.CreateVenue(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// ListMine godoc
// @Summary List the caller's submissions
// @Tags Requests
// @Produce json
// @Param kind query string false "FUNDING or VENUE"
// @Param page query int false "Page number"
// @Success 200 {object} response.Envelope
// @Router /requests/mine [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := queryPage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.MyRequestsQuery{
		Kind: approval.Kind(strings.ToUpper(strings.TrimSpace(c.Query("kind")))),
		Page: page,
	}
	items, pagination, err := h.service.ListMine(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a request with its approval chain
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Trail godoc
// @Summary List the audit trail of a request
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/audit [get]
func (h *RequestHandler) Trail(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.Trail(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Document godoc
// @Summary Download a request summary as PDF
// @Tags Requests
// @Produce application/pdf
// @Param id path int true "Request ID"
// @Success 200 {file} binary
// @Router /requests/{id}/document [get]
func (h *RequestHandler) Document(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.documents.RequestPDF(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, doc.FileName, doc.ContentType, doc.Body)
}
