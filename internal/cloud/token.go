package cloud

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GuestClaims are the claims the host signs into the guest token returned
// by claimSessionSlot.
type GuestClaims struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	jwt.RegisteredClaims
}

// ParseGuestToken extracts claims from a guest token without verifying
// the signature. Verification is the host's job; the client only needs
// the participant id and expiry to know when a stored session is stale.
func ParseGuestToken(tokenString string) (*GuestClaims, error) {
	parser := jwt.NewParser()
	claims := &GuestClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("parse guest token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the token's expiry has passed. Tokens without
// an expiry never expire client-side.
func (c *GuestClaims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(c.ExpiresAt.Time)
}
