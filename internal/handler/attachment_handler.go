package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, actor models.Actor, requestID int64, upload dto.UploadAttachment) (*dto.AttachmentResponse, error)
	List(ctx context.Context, actor models.Actor, requestID int64) ([]dto.AttachmentResponse, error)
	Open(ctx context.Context, token string) (*models.Attachment, *os.File, error)
}

// AttachmentHandler exposes supporting-file endpoints.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler builds a new handler.
func NewAttachmentHandler(service attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload godoc
// @Summary Attach a supporting file to a request
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Request ID"
// @Param file formData file true "Supporting file"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /requests/{id}/attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
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
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer file.Close()

	attachment, err := h.service.Upload(c.Request.Context(), actor, id, dto.UploadAttachment{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// List godoc
// @Summary List a request's attachments with signed download links
// @Tags Attachments
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/attachments [get]
func (h *AttachmentHandler) List(c *gin.Context) {
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
	items, err := h.service.List(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Download godoc
// @Summary Download an attachment through a signed link
// @Tags Attachments
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /attachments/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token is required"))
		return
	}
	attachment, file, err := h.service.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	response.Stream(c, attachment.OriginalName, attachment.ContentType, attachment.SizeBytes, file)
}
