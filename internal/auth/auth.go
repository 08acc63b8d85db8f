// Package auth is the boundary to the identity collaborator: it turns a
// bearer credential into a Principal or one of the connection-refusal
// errors, and issues credentials for development and testing.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "consultgo-service"

// Principal is the authenticated identity bound to a connection or request.
type Principal struct {
	Participant models.Participant
	TenantID    string
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Class    models.ParticipantClass `json:"class"`
	TenantID string                  `json:"tenant_id,omitempty"`
}

// ResponderDirectory resolves responder principals to profile records.
// Requesters are unbounded and need no record.
type ResponderDirectory interface {
	GetResponder(ctx context.Context, id string) (*models.Responder, error)
}

// Identity verifies and issues bearer credentials.
type Identity struct {
	secret     []byte
	ttl        time.Duration
	responders ResponderDirectory
}

// NewIdentity constructs the JWT-backed identity collaborator.
func NewIdentity(secret string, ttl time.Duration, responders ResponderDirectory) *Identity {
	return &Identity{secret: []byte(secret), ttl: ttl, responders: responders}
}

// Issue mints a credential for a participant.
func (i *Identity) Issue(p models.Participant, tenantID string) (string, error) {
	if !p.Class.Valid() || p.ID == "" {
		return "", fmt.Errorf("participant %q/%q: %w", p.Class, p.ID, apperrors.ErrValidation)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Class:    p.Class,
		TenantID: tenantID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates a credential and resolves its principal. Responder
// principals must exist in the profile store; a token for a deleted
// responder is refused with ErrPrincipalNotFound.
func (i *Identity) Verify(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, apperrors.ErrMissingCredential
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, fmt.Errorf("%v: %w", err, apperrors.ErrExpiredCredential)
		}
		return Principal{}, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidCredential)
	}
	if !token.Valid || claims.Subject == "" || !claims.Class.Valid() {
		return Principal{}, apperrors.ErrInvalidCredential
	}

	principal := Principal{
		Participant: models.Participant{ID: claims.Subject, Class: claims.Class},
		TenantID:    claims.TenantID,
	}

	if claims.Class == models.ClassResponder && i.responders != nil {
		if _, err := i.responders.GetResponder(ctx, claims.Subject); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return Principal{}, fmt.Errorf("responder %s: %w", claims.Subject, apperrors.ErrPrincipalNotFound)
			}
			return Principal{}, err
		}
	}
	return principal, nil
}
