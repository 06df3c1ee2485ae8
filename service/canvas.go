package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/store"
)

// CreateCanvas creates a canvas owned by the caller and re-issues the caller's
// claims so the new "O" grant is visible immediately, both in the cookie and on
// any live connections.
func (s *Service) CreateCanvas(ctx context.Context, claims Claims, name string) (models.Canvas, Claims, string, error) {
	canvas, err := s.Store.CreateCanvas(ctx, name, claims.UserID)
	if err != nil {
		return models.Canvas{}, Claims{}, "", err
	}
	fresh, token, err := s.ReissueToken(ctx, claims)
	if err != nil {
		return models.Canvas{}, Claims{}, "", err
	}
	log.Printf("User %d created canvas %s (%q)", claims.UserID, canvas.CanvasID, canvas.Name)
	return canvas, fresh, token, nil
}

// ListCanvases returns the canvases visible to the caller with their levels.
func (s *Service) ListCanvases(ctx context.Context, claims Claims) ([]models.CanvasListItem, error) {
	return s.Store.ListCanvasesVisibleTo(ctx, claims.UserID)
}

// CanvasPermissions returns the full grant listing of a canvas, grouped by
// level, for any member of the canvas.
func (s *Service) CanvasPermissions(ctx context.Context, claims Claims, canvasID string) (map[models.PermissionLevel][]models.CanvasMember, error) {
	if !claims.Permission(canvasID).CanRead() {
		return nil, ErrForbidden
	}
	if _, err := s.Store.GetCanvas(ctx, canvasID); err != nil {
		return nil, err
	}
	members, err := s.Store.GetCanvasPermissions(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	grouped := make(map[models.PermissionLevel][]models.CanvasMember)
	for _, m := range members {
		grouped[m.Level] = append(grouped[m.Level], m)
	}
	return grouped, nil
}

// SetPermission grants, changes, or (with an empty level) revokes a user's
// permission on a canvas, then marks the target user for a claims refresh so
// the change reaches their next request or frame.
//
// Owners and co-owners may set any level; moderators may only manage the
// {R,W,V} band. The canvas owner's own grant is immutable.
func (s *Service) SetPermission(ctx context.Context, claims Claims, canvasID string, targetUserID int64, level models.PermissionLevel) error {
	if level != models.PermissionNone && !level.Valid() {
		return fmt.Errorf("invalid permission level %q", level)
	}

	canvas, err := s.Store.GetCanvas(ctx, canvasID)
	if err != nil {
		return err
	}
	if targetUserID == canvas.OwnerUserID {
		return ErrForbidden
	}
	if _, err := s.Store.GetUserByID(ctx, targetUserID); err != nil {
		return err
	}

	granter := claims.Permission(canvasID)
	switch {
	case granter.CanAdminister():
		// any level
	case granter.CanModerate():
		if level.CanModerate() {
			return ErrForbidden
		}
		current, err := s.targetLevel(ctx, canvasID, targetUserID)
		if err != nil {
			return err
		}
		if current.CanModerate() {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}

	if err := s.Store.SetPermission(ctx, canvasID, targetUserID, level); err != nil {
		return err
	}
	s.RefreshList.Mark(targetUserID, time.Now())
	log.Printf("User %d set permission of user %d on canvas %s to %q", claims.UserID, targetUserID, canvasID, level)
	return nil
}

func (s *Service) targetLevel(ctx context.Context, canvasID string, userID int64) (models.PermissionLevel, error) {
	perms, err := s.Store.GetPermissions(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return models.PermissionNone, err
	}
	return perms[canvasID], nil
}
