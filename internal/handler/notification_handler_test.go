package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/dto"
	"github.com/noah-isme/signatory-approval-api/internal/models"
)

type notificationMock struct {
	lastActor models.Actor
	lastQuery dto.NotificationQuery
}

func (m *notificationMock) List(_ context.Context, actor models.Actor, query dto.NotificationQuery) ([]models.Notification, *models.Pagination, error) {
	m.lastActor = actor
	m.lastQuery = query
	return []models.Notification{{ID: 1, Message: "hello"}}, models.NewPagination(query.Page, 20, 1), nil
}

func TestNotificationHandlerList(t *testing.T) {
	mock := &notificationMock{}
	h := NewNotificationHandler(mock)
	c, w := testContext(http.MethodGet, "/notifications?page=3", nil, signatoryClaims(approval.RoleAFO))

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, mock.lastQuery.Page)
	assert.Equal(t, approval.RoleAFO, mock.lastActor.Role)
}

type staticExporter struct{}

func (staticExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP up\n"))
	})
}

func TestMetricsHandlerEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := NewMetricsHandler(staticExporter{}, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	})
	degraded := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	r := gin.New()
	r.GET("/metrics", healthy.Prometheus)
	r.GET("/health", healthy.Health)
	r.GET("/ready", healthy.Ready)
	r.GET("/degraded", degraded.Ready)
	r.GET("/nometrics", degraded.Prometheus)

	cases := map[string]int{
		"/metrics":   http.StatusOK,
		"/health":    http.StatusOK,
		"/ready":     http.StatusOK,
		"/degraded":  http.StatusServiceUnavailable,
		"/nometrics": http.StatusServiceUnavailable,
	}
	for path, status := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, w.Code, path)
		if path == "/degraded" {
			assert.Contains(t, w.Body.String(), "connection refused")
		}
	}
}
