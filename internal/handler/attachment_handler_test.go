package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

type attachmentMock struct {
	uploaded  *dto.UploadAttachment
	body      []byte
	uploadErr error
	path      string
}

func (m *attachmentMock) Upload(_ context.Context, _ models.Actor, requestID int64, upload dto.UploadAttachment) (*dto.AttachmentResponse, error) {
	m.uploaded = &upload
	buf := &bytes.Buffer{}
	_, _ = buf.ReadFrom(upload.Body)
	m.body = buf.Bytes()
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return &dto.AttachmentResponse{Attachment: models.Attachment{ID: 1, RequestID: requestID}}, nil
}

func (m *attachmentMock) List(_ context.Context, _ models.Actor, requestID int64) ([]dto.AttachmentResponse, error) {
	return []dto.AttachmentResponse{{Attachment: models.Attachment{ID: 1, RequestID: requestID}}}, nil
}

func (m *attachmentMock) Open(_ context.Context, token string) (*models.Attachment, *os.File, error) {
	if token != "good" {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	file, err := os.Open(m.path)
	if err != nil {
		return nil, nil, err
	}
	return &models.Attachment{ID: 1, OriginalName: "receipt.pdf", ContentType: "application/pdf", SizeBytes: 5}, file, nil
}

func multipartBody(t *testing.T, field, name, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestAttachmentHandlerUpload(t *testing.T) {
	mock := &attachmentMock{}
	h := NewAttachmentHandler(mock)
	body, contentType := multipartBody(t, "file", "receipt.pdf", "application/pdf", "%PDF-")

	c, w := testContext(http.MethodPost, "/requests/5/attachments", body, officerClaims())
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mock.uploaded)
	assert.Equal(t, "receipt.pdf", mock.uploaded.FileName)
	assert.Equal(t, "application/pdf", mock.uploaded.ContentType)
	assert.EqualValues(t, 5, mock.uploaded.Size)
	assert.Equal(t, "%PDF-", string(mock.body))
}

func TestAttachmentHandlerUploadErrors(t *testing.T) {
	h := NewAttachmentHandler(&attachmentMock{})
	body, contentType := multipartBody(t, "other", "receipt.pdf", "application/pdf", "%PDF-")
	c, w := testContext(http.MethodPost, "/requests/5/attachments", body, officerClaims())
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	h.Upload(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = NewAttachmentHandler(&attachmentMock{uploadErr: appErrors.ErrUnsupportedType})
	body, contentType = multipartBody(t, "file", "run.exe", "application/x-msdownload", "MZ")
	c, w = testContext(http.MethodPost, "/requests/5/attachments", body, officerClaims())
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	h.Upload(c)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestAttachmentHandlerList(t *testing.T) {
	h := NewAttachmentHandler(&attachmentMock{})
	c, w := testContext(http.MethodGet, "/requests/5/attachments", nil, signatoryClaims(approval.RoleDean))
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.List(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAttachmentHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-"), 0o600))
	h := NewAttachmentHandler(&attachmentMock{path: path})

	c, w := testContext(http.MethodGet, "/attachments/download?token=good", nil, nil)
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt.pdf")

	c, w = testContext(http.MethodGet, "/attachments/download?token=bad", nil, nil)
	h.Download(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = testContext(http.MethodGet, "/attachments/download", nil, nil)
	h.Download(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
