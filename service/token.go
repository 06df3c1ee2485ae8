package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Parzival4o4/drawing-app/models"
)

var (
	// ErrHardExpired means the token passed its hard lifetime; the caller must
	// authenticate again, a soft refresh cannot help.
	ErrHardExpired = errors.New("token hard-expired")

	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload of a signed auth token. The registered exp is the hard
// expiry; SoftReissueAt is the point after which the gate refreshes the
// permission snapshot inline on next use.
type Claims struct {
	UserID        int64                              `json:"userId"`
	Email         string                             `json:"email"`
	DisplayName   string                             `json:"displayName"`
	Permissions   map[string]models.PermissionLevel  `json:"permissions"`
	SoftReissueAt int64                              `json:"softReissueAt"`
	jwt.RegisteredClaims
}

// Permission returns the user's level on a canvas, or PermissionNone.
func (c Claims) Permission(canvasID string) models.PermissionLevel {
	return c.Permissions[canvasID]
}

// HardExpired reports whether the token passed its hard lifetime. Checked
// again on each permission-sensitive frame of a long-lived connection, where
// the token itself is no longer in hand.
func (c Claims) HardExpired(now time.Time) bool {
	return c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time)
}

func (c Claims) issuedAt() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// IssueToken composes fresh claims for a user from the store and signs them.
func (s *Service) IssueToken(ctx context.Context, userID int64) (Claims, string, error) {
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return Claims{}, "", fmt.Errorf("issue token: %w", err)
	}
	permissions, err := s.Store.GetPermissions(ctx, userID)
	if err != nil {
		return Claims{}, "", fmt.Errorf("issue token: %w", err)
	}

	now := time.Now()
	claims := Claims{
		UserID:        user.UserID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		Permissions:   permissions,
		SoftReissueAt: now.Add(s.SoftReissueInterval).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenHardLifetime)),
		},
	}

	token, err := s.signClaims(claims)
	if err != nil {
		return Claims{}, "", err
	}
	return claims, token, nil
}

// VerifyToken parses and validates a token string.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrHardExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ReissueToken refreshes the permission snapshot of existing claims. Identity
// and hard expiry carry over unchanged; issued-at and the soft reissue point
// move to now.
func (s *Service) ReissueToken(ctx context.Context, claims Claims) (Claims, string, error) {
	permissions, err := s.Store.GetPermissions(ctx, claims.UserID)
	if err != nil {
		return Claims{}, "", fmt.Errorf("reissue token: %w", err)
	}

	now := time.Now()
	fresh := Claims{
		UserID:        claims.UserID,
		Email:         claims.Email,
		DisplayName:   claims.DisplayName,
		Permissions:   permissions,
		SoftReissueAt: now.Add(s.SoftReissueInterval).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: claims.ExpiresAt,
		},
	}

	token, err := s.signClaims(fresh)
	if err != nil {
		return Claims{}, "", err
	}
	return fresh, token, nil
}

func (s *Service) signClaims(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
