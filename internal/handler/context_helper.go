package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/signatory-approval-api/internal/middleware"
	"github.com/noah-isme/signatory-approval-api/internal/models"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

func actorFromContext(c *gin.Context) (models.Actor, error) {
	claims, ok := middleware.Claims(c)
	if !ok {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	return claims.Actor(), nil
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}

func queryPage(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("page"))
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
	}
	return page, nil
}
