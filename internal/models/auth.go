package models

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID         int64         `json:"user_id"`
	Role           approval.Role `json:"role"`
	OrganizationID *int64        `json:"organization_id,omitempty"`
	FullName       string        `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the session identity threaded through services.
func (c *JWTClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role, OrganizationID: c.OrganizationID, Name: c.FullName}
}

// Actor is the authenticated user acting on a request.
type Actor struct {
	UserID         int64
	Role           approval.Role
	OrganizationID *int64
	Name           string
}

// ReviewScope is the organization a signatory's views are limited to. Advisers are bound to their
// organization and deans to theirs when the session carries one; other roles are unscoped. ok is
// false for an adviser without an organization, who may see nothing organization-bound.
func (a Actor) ReviewScope() (scope *int64, ok bool) {
	switch a.Role {
	case approval.RoleAdviser:
		if a.OrganizationID == nil {
			return nil, false
		}
		return a.OrganizationID, true
	case approval.RoleDean:
		return a.OrganizationID, true
	default:
		return nil, true
	}
}

// SeesOrganization reports whether a row owned by organizationID falls inside the review scope.
// Rows without an organization are only visible to unscoped sessions.
func (a Actor) SeesOrganization(organizationID *int64) bool {
	scope, ok := a.ReviewScope()
	if !ok {
		return false
	}
	return scope == nil || (organizationID != nil && *organizationID == *scope)
}
