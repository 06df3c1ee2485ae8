package service

import (
	"context"
	"errors"
	"time"

	"github.com/Parzival4o4/drawing-app/store"
)

const (
	// DefaultTokenHardLifetime is the maximum validity of a token before
	// re-issuance through login is mandatory. A reissue never extends it.
	DefaultTokenHardLifetime = 5 * time.Minute

	// DefaultSoftReissueInterval is how long a token's permission snapshot is
	// trusted before the gate refreshes it inline on next use.
	DefaultSoftReissueInterval = 30 * time.Second
)

var (
	ErrWrongCredentials = errors.New("wrong credentials")
	ErrForbidden        = errors.New("forbidden")
)

type Service struct {
	Store               store.CanvasStore
	RefreshList         *RefreshRegistry
	JWTSecret           []byte
	TokenHardLifetime   time.Duration
	SoftReissueInterval time.Duration
}

func NewService(canvasStore store.CanvasStore, refreshList *RefreshRegistry, jwtSecret []byte) (*Service, error) {
	if len(jwtSecret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &Service{
		Store:               canvasStore,
		RefreshList:         refreshList,
		JWTSecret:           jwtSecret,
		TokenHardLifetime:   DefaultTokenHardLifetime,
		SoftReissueInterval: DefaultSoftReissueInterval,
	}, nil
}

type claimsContextKey struct{}

// NewContextWithClaims injects authenticated claims for downstream handlers.
func NewContextWithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims the auth gate installed, if any.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}
