package auth

import (
	"github.com/aria7-op/school-mis-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	SchoolID  uuid.UUID
	Role      enums.Role
	FirstName string
	LastName  string
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. The name
// fields ride along so the realtime channel can greet sessions without a
// user lookup.
type AccessTokenClaims struct {
	UserID    uuid.UUID  `json:"user_id"`
	SchoolID  uuid.UUID  `json:"school_id"`
	Role      enums.Role `json:"role"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	jwt.RegisteredClaims
}
