package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/middleware"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/service"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/response"
)

type queueService interface {
	Pending(ctx context.Context, actor models.Actor) (*dto.QueueResponse, error)
	History(ctx context.Context, actor models.Actor, query dto.HistoryQuery) (*dto.HistoryPage, error)
}

type decisionService interface {
	Record(ctx context.Context, actor models.Actor, requestID int64, req dto.DecisionRequest) (*dto.DecisionResponse, error)
}

type historyDocuments interface {
	HistoryCSV(ctx context.Context, actor models.Actor, query dto.HistoryQuery) (*service.Rendered, error)
}

// ReviewHandler exposes signatory queue, history and decision endpoints.
type ReviewHandler struct {
	queues    queueService
	decisions decisionService
	documents historyDocuments
}

// NewReviewHandler builds a new handler.
func NewReviewHandler(queues queueService, decisions decisionService, documents historyDocuments) *ReviewHandler {
	return &ReviewHandler{queues: queues, decisions: decisions, documents: documents}
}

// Queue godoc
// @Summary List requests awaiting the caller's decision
// @Tags Reviews
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /reviews/queue [get]
func (h *ReviewHandler) Queue(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	queue, err := h.queues.Pending(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, queue.Cached)
	response.JSON(c, http.StatusOK, queue, nil, middleware.ExtractMeta(c))
}

// History godoc
// @Summary List requests the caller's stage has decided
// @Tags Reviews
// @Produce json
// @Param outcome query string false "APPROVED or REJECTED"
// @Param search query string false "Title, description or remark contains"
// @Param page query int false "Page number"
// @Success 200 {object} response.Envelope
// @Router /reviews/history [get]
func (h *ReviewHandler) History(c *gin.Context) {
	actor, query, err := h.historyQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := h.queues.History(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Items, models.NewPagination(page.Page, page.PageSize, page.Total))
}

// ExportHistory godoc
// @Summary Export the caller's decision history as CSV
// @Tags Reviews
// @Produce text/csv
// @Param outcome query string false "APPROVED or REJECTED"
// @Param search query string false "Title, description or remark contains"
// @Success 200 {file} binary
// @Router /reviews/history/export [get]
func (h *ReviewHandler) ExportHistory(c *gin.Context) {
	actor, query, err := h.historyQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.documents.HistoryCSV(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, doc.FileName, doc.ContentType, doc.Body)
}

// Decide godoc
// @Summary Record the caller's decision on a request
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reviews/requests/{id}/decision [post]
func (h *ReviewHandler) Decide(c *gin.Context) {
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
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	result, err := h.decisions.Record(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *ReviewHandler) historyQuery(c *gin.Context) (models.Actor, dto.HistoryQuery, error) {
	actor, err := actorFromContext(c)
	if err != nil {
		return models.Actor{}, dto.HistoryQuery{}, err
	}
	page, err := queryPage(c)
	if err != nil {
		return models.Actor{}, dto.HistoryQuery{}, err
	}
	return actor, dto.HistoryQuery{
		Outcome: strings.TrimSpace(c.Query("outcome")),
		Search:  strings.TrimSpace(c.Query("search")),
		Page:    page,
	}, nil
}
