package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/middleware"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	"github.com/noah-isme/signatory-approval-api/internal/realtime"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/response"
)

type clientAttacher interface {
	Attach(conn *websocket.Conn, actor models.Actor) *realtime.Client
}

// WebSocketHandler upgrades authenticated sessions to a realtime notification stream.
type WebSocketHandler struct {
	hub       clientAttacher
	validator middleware.TokenValidator
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewWebSocketHandler builds the handler. An empty origin list accepts any origin.
func NewWebSocketHandler(hub clientAttacher, validator middleware.TokenValidator, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Serve godoc
// @Summary Open the realtime notification stream
// @Tags Notifications
// @Param token query string false "Access token when the Authorization header cannot be set"
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *WebSocketHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			token = strings.TrimSpace(header[7:])
		}
	}
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "access token is required"))
		return
	}
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Attach(conn, claims.Actor())
}
