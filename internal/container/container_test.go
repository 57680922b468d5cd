package container

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:       "test",
		APIPrefix: "/api/v1",
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "signatory-approval-api", Expiration: time.Hour},
		Reviews:   config.ReviewsConfig{HistoryPageSize: 10, QueueCacheTTL: time.Second, DecisionRPS: 100, DecisionBurst: 10},
		Notifications: config.NotificationConfig{
			Workers:        1,
			DispatchPeriod: time.Minute,
		},
		Attachments: config.AttachmentsConfig{
			StorageDir:       t.TempDir(),
			MaxFileSizeBytes: 1024,
			AllowedMIMEs:     []string{"application/pdf"},
			SigningSecret:    "download-secret",
			LinkTTL:          time.Minute,
		},
	}
}

func newTestContainer(t *testing.T) (*Container, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	c, err := Assemble(testConfig(t), nil, sqlx.NewDb(mockDB, "sqlmock"), nil)
	require.NoError(t, err)
	return c, mock
}

func bearer(t *testing.T, c *Container, role approval.Role) string {
	t.Helper()
	org := int64(10)
	token, _, err := c.Auth.IssueToken(models.Actor{UserID: 1, Role: role, OrganizationID: &org}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAssembleWithoutRedis(t *testing.T) {
	c, _ := newTestContainer(t)
	assert.Nil(t, c.Dispatcher)
	assert.False(t, c.Cache.Enabled())
	assert.NotNil(t, c.Requests)
	assert.NotNil(t, c.Decisions)
}

func TestAssembleRequiresSigningSecret(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	cfg := testConfig(t)
	cfg.Attachments.SigningSecret = ""

	_, err = Assemble(cfg, nil, sqlx.NewDb(mockDB, "sqlmock"), nil)
	require.Error(t, err)
}

func TestRouterAccessRules(t *testing.T) {
	c, mock := newTestContainer(t)
	router := c.Router()

	mock.ExpectPing()

	cases := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"queue without token", http.MethodGet, "/api/v1/reviews/queue", "", http.StatusUnauthorized},
		{"queue as officer", http.MethodGet, "/api/v1/reviews/queue", bearer(t, c, approval.RoleOfficer), http.StatusForbidden},
		{"decision as officer", http.MethodPost, "/api/v1/reviews/requests/1/decision", bearer(t, c, approval.RoleOfficer), http.StatusForbidden},
		{"submit as dean", http.MethodPost, "/api/v1/requests/funding", bearer(t, c, approval.RoleDean), http.StatusForbidden},
		{"mine as adviser", http.MethodGet, "/api/v1/requests/mine", bearer(t, c, approval.RoleAdviser), http.StatusForbidden},
		{"download without token", http.MethodGet, "/api/v1/attachments/download", "", http.StatusUnauthorized},
		{"ws without token", http.MethodGet, "/api/v1/ws", "", http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/api/v1/nowhere", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartAndClose(t *testing.T) {
	c, mock := newTestContainer(t)
	mock.ExpectClose()

	c.Start(t.Context())
	c.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}
