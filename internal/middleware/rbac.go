package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/response"
)

// RequireRoles only lets sessions holding one of roles through.
func RequireRoles(roles ...approval.Role) gin.HandlerFunc {
	allowed := make(map[approval.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSignatory rejects officers and any role the registry does not know.
func RequireSignatory(registry *approval.Registry) gin.HandlerFunc {
	if registry == nil {
		registry = approval.DefaultRegistry()
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role == approval.RoleOfficer {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		if _, err := registry.Lookup(claims.Role); err != nil {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
