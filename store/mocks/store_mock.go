package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Parzival4o4/drawing-app/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error) {
	args := m.Called(ctx, email, passwordHash, displayName)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) UpdateUserProfile(ctx context.Context, userID int64, email, displayName string) error {
	args := m.Called(ctx, userID, email, displayName)
	return args.Error(0)
}

func (m *MockStore) CreateCanvas(ctx context.Context, name string, ownerUserID int64) (models.Canvas, error) {
	args := m.Called(ctx, name, ownerUserID)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) GetCanvas(ctx context.Context, canvasID string) (models.Canvas, error) {
	args := m.Called(ctx, canvasID)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) ListCanvasesVisibleTo(ctx context.Context, userID int64) ([]models.CanvasListItem, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.CanvasListItem), args.Error(1)
}

func (m *MockStore) SetModerated(ctx context.Context, canvasID string, moderated bool) error {
	args := m.Called(ctx, canvasID, moderated)
	return args.Error(0)
}

func (m *MockStore) GetPermissions(ctx context.Context, userID int64) (map[string]models.PermissionLevel, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(map[string]models.PermissionLevel), args.Error(1)
}

func (m *MockStore) GetCanvasPermissions(ctx context.Context, canvasID string) ([]models.CanvasMember, error) {
	args := m.Called(ctx, canvasID)
	return args.Get(0).([]models.CanvasMember), args.Error(1)
}

func (m *MockStore) SetPermission(ctx context.Context, canvasID string, userID int64, level models.PermissionLevel) error {
	args := m.Called(ctx, canvasID, userID, level)
	return args.Error(0)
}
