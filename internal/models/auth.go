package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the authentication service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	StudioID string   `json:"studio_id"`
	Email    string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// IsOperator is true for roles allowed to manage the schedule.
func (c *JWTClaims) IsOperator() bool {
	return c != nil && (c.Role == RoleOwner || c.Role == RoleStaff)
}
