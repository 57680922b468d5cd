package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/middleware/requestid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorCarriesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(requestid.Middleware())
	var recorded int
	r.GET("/", func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrNotReady, "waiting on Dean"))
		recorded = len(c.Errors)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(w, req)

	require.Equal(t, appErrors.ErrNotReady.Status, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, 1, recorded)

	var body struct {
		Error     appErrors.Error `json:"error"`
		RequestID string          `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrNotReady.Code, body.Error.Code)
	assert.Equal(t, "waiting on Dean", body.Error.Message)
	assert.Equal(t, "req-42", body.RequestID)
}

func TestJSONOmitsRequestIDOnSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(c, http.StatusOK, gin.H{"id": 1}, nil, map[string]interface{}{"cache": "hit"})

	assert.JSONEq(t, `{"data":{"id":1},"meta":{"cache":"hit"}}`, w.Body.String())
}

func TestFileSetsDisposition(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	File(c, "request 7.pdf", "application/pdf", []byte("%PDF"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="request 7.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestDispositionEncodesNonASCII(t *testing.T) {
	assert.Equal(t, "attachment; filename=quote.pdf", Disposition("quote.pdf"))
	assert.Contains(t, Disposition("résumé.pdf"), "filename*=utf-8''")
}
