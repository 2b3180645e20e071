// Package auth verifies the bearer tokens issued by the login service.
// Issuing tokens is not this service's job.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// Claims is what a verified token tells us about its holder.
type Claims struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
	ID        string
}

// Verifier validates bearer tokens.
type Verifier interface {
	// Verify checks signature and time claims and returns the claims of a
	// valid token.
	Verify(ctx context.Context, token string) (*Claims, error)
}

// tokenClaims accepts the subject either as sub or as the legacy userId
// claim.
type tokenClaims struct {
	LegacyUserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

type hmacVerifier struct {
	signingKey []byte
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

var _ Verifier = (*hmacVerifier)(nil)

// NewVerifier creates an HS256 verifier.
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	return newVerifier(cfg.JWTSecret, time.Now)
}

func newVerifier(secret string, now func() time.Time) (*hmacVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	return &hmacVerifier{
		signingKey: []byte(secret),
		timeFunc:   now,
		clockSkew:  2 * time.Minute,
	}, nil
}

// Verify implements Verifier.
func (v *hmacVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)

	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.timeFunc),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: expired")
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: not yet valid")
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				slog.String("error", err.Error()),
				slog.String("error_type", fmt.Sprintf("%T", err)))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.LegacyUserID
	}
	userID, err := uuid.Parse(subject)
	if err != nil || userID == uuid.Nil {
		log.Debug("token validation failed: bad subject")
		return nil, ErrInvalidSubject
	}

	out := &Claims{UserID: userID, ID: claims.ID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
