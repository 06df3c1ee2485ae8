package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/service"
	"github.com/Parzival4o4/drawing-app/store"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := service.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	ok, err := service.VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = service.VerifyPassword("", hash)
	assert.False(t, ok)

	_, err = service.HashPassword("")
	assert.Error(t, err)
}

func TestRegister_Success(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	user := testUser()
	mockStore.On("CreateUser", ctx, "alice@example.com", mock.Anything, "Alice").Return(user, nil)
	mockStore.On("GetUserByID", ctx, int64(1)).Return(user, nil)
	mockStore.On("GetPermissions", ctx, int64(1)).Return(map[string]models.PermissionLevel{}, nil)

	got, token, err := svc.Register(ctx, "alice@example.com", "hunter2", "Alice")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, got.UserID)
	assert.NotEmpty(t, token)

	// The stored hash must verify against the password.
	hash := mockStore.Calls[0].Arguments.String(2)
	ok, err := service.VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("CreateUser", ctx, "alice@example.com", mock.Anything, "Alice").
		Return(models.User{}, store.ErrConflict)

	_, _, err := svc.Register(ctx, "alice@example.com", "hunter2", "Alice")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestLogin_Success(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	hash, err := service.HashPassword("hunter2")
	require.NoError(t, err)
	user := testUser()
	user.PasswordHash = hash

	mockStore.On("GetUserByEmail", ctx, "alice@example.com").Return(user, nil)
	mockStore.On("GetUserByID", ctx, int64(1)).Return(user, nil)
	mockStore.On("GetPermissions", ctx, int64(1)).Return(map[string]models.PermissionLevel{}, nil)

	got, token, err := svc.Login(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, got.UserID)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	hash, err := service.HashPassword("hunter2")
	require.NoError(t, err)
	user := testUser()
	user.PasswordHash = hash
	mockStore.On("GetUserByEmail", ctx, "alice@example.com").Return(user, nil)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, service.ErrWrongCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetUserByEmail", ctx, "ghost@example.com").Return(models.User{}, store.ErrItemNotFound)

	_, _, err := svc.Login(ctx, "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, service.ErrWrongCredentials)
}

func TestAuthenticate_NoRefreshInsideSoftWindow(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetUserByID", ctx, int64(1)).Return(testUser(), nil)
	mockStore.On("GetPermissions", ctx, int64(1)).
		Return(map[string]models.PermissionLevel{"c1": models.PermissionWrite}, nil).Once()

	_, token, err := svc.IssueToken(ctx, 1)
	require.NoError(t, err)

	claims, freshToken, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, freshToken)
	assert.Equal(t, models.PermissionWrite, claims.Permission("c1"))
}

func TestAuthenticate_RefreshesWhenMarked(t *testing.T) {
	svc, mockStore, refreshList := setupService(t)
	ctx := context.Background()

	mockStore.On("GetUserByID", ctx, int64(1)).Return(testUser(), nil)
	mockStore.On("GetPermissions", ctx, int64(1)).
		Return(map[string]models.PermissionLevel{"c1": models.PermissionWrite}, nil).Once()

	_, token, err := svc.IssueToken(ctx, 1)
	require.NoError(t, err)

	// A permission change lands after issuance.
	refreshList.Mark(1, time.Now())
	mockStore.On("GetPermissions", ctx, int64(1)).
		Return(map[string]models.PermissionLevel{}, nil).Once()

	claims, freshToken, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, freshToken)
	assert.Equal(t, models.PermissionNone, claims.Permission("c1"))
	// The mark is consumed by the refresh.
	assert.Equal(t, 0, refreshList.Len())
}

func TestAuthenticate_RefreshesAfterSoftInterval(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	svc.SoftReissueInterval = -time.Second // every use is past the soft point
	ctx := context.Background()

	mockStore.On("GetUserByID", ctx, int64(1)).Return(testUser(), nil)
	mockStore.On("GetPermissions", ctx, int64(1)).
		Return(map[string]models.PermissionLevel{}, nil)

	_, token, err := svc.IssueToken(ctx, 1)
	require.NoError(t, err)

	_, freshToken, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, freshToken)
}

func TestRefreshConnectionClaims_HardExpired(t *testing.T) {
	svc, _, _ := setupService(t)

	claims := service.Claims{UserID: 1}
	_, _, err := svc.RefreshConnectionClaims(context.Background(), claims)
	assert.ErrorIs(t, err, service.ErrHardExpired)
}

func TestUpdateProfile_ReissuesClaims(t *testing.T) {
	svc, mockStore, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetUserByID", ctx, int64(1)).Return(testUser(), nil)
	mockStore.On("GetPermissions", ctx, int64(1)).Return(map[string]models.PermissionLevel{}, nil)

	claims, _, err := svc.IssueToken(ctx, 1)
	require.NoError(t, err)

	mockStore.On("UpdateUserProfile", ctx, int64(1), "alice@example.com", "Alicia").Return(nil)

	fresh, token, err := svc.UpdateProfile(ctx, claims, "", "Alicia")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "Alicia", fresh.DisplayName)
	assert.Equal(t, "alice@example.com", fresh.Email)
}
