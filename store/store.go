package store

import (
	"context"
	"errors"

	"github.com/Parzival4o4/drawing-app/models"
)

// CanvasStore is the authoritative record of users, canvases and permission
// grants. Reads are point-in-time; writes to the same (user, canvas) pair are
// last-writer-wins under the backing store's serialization.
type CanvasStore interface {
	CreateUser(ctx context.Context, email string, passwordHash string, displayName string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
	UpdateUserProfile(ctx context.Context, userID int64, email string, displayName string) error

	CreateCanvas(ctx context.Context, name string, ownerUserID int64) (models.Canvas, error)
	GetCanvas(ctx context.Context, canvasID string) (models.Canvas, error)
	ListCanvasesVisibleTo(ctx context.Context, userID int64) ([]models.CanvasListItem, error)
	SetModerated(ctx context.Context, canvasID string, moderated bool) error

	GetPermissions(ctx context.Context, userID int64) (map[string]models.PermissionLevel, error)
	GetCanvasPermissions(ctx context.Context, canvasID string) ([]models.CanvasMember, error)
	// SetPermission upserts the grant; an empty level revokes it.
	SetPermission(ctx context.Context, canvasID string, userID int64, level models.PermissionLevel) error
}

// Custom error types for clarity
var (
	ErrItemNotFound = errors.New("item does not exist")
	ErrConflict     = errors.New("item already exists")
)
