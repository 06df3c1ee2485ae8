package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Parzival4o4/drawing-app/service"
	storemocks "github.com/Parzival4o4/drawing-app/store/mocks"
)

// Helper to setup the service with mocks
func setupService(t *testing.T) (*service.Service, *storemocks.MockStore, *service.RefreshRegistry) {
	mockStore := new(storemocks.MockStore)
	refreshList := service.NewRefreshRegistry()

	svc, err := service.NewService(mockStore, refreshList, []byte("secret"))
	assert.NoError(t, err)

	return svc, mockStore, refreshList
}
