package api

import (
	"context"
	"net/http"

	"github.com/Parzival4o4/drawing-app/api/rest"
	"github.com/Parzival4o4/drawing-app/api/ws"
	"github.com/Parzival4o4/drawing-app/service"
	"github.com/Parzival4o4/drawing-app/store"
	"github.com/Parzival4o4/drawing-app/worker"
)

type DrawingAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
}

func NewDrawingAPI(
	canvasStore store.CanvasStore,
	jwtSecret []byte,
	shutdownCtx context.Context,
) (*DrawingAPI, error) {
	refreshList := service.NewRefreshRegistry()

	svc, err := service.NewService(canvasStore, refreshList, jwtSecret)
	if err != nil {
		return nil, err
	}

	sweeper := worker.NewRefreshSweeper(refreshList, svc.TokenHardLifetime)
	go sweeper.Run(shutdownCtx)

	registry := ws.NewRegistry(canvasStore)
	restHandler := rest.NewHandler(svc, registry)
	wsHandler := ws.NewHandler(svc, registry)

	return &DrawingAPI{
		restHandler: restHandler,
		wsHandler:   wsHandler,
		shutdownCtx: shutdownCtx,
	}, nil
}

func (drawingAPI *DrawingAPI) RegisterRoutes(mux *http.ServeMux) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	restHandler := drawingAPI.restHandler
	mux.HandleFunc("POST /api/register", restHandler.HandleRegister)
	mux.HandleFunc("POST /api/login", restHandler.HandleLogin)
	mux.HandleFunc("POST /api/logout", restHandler.HandleLogout)

	mux.HandleFunc("GET /api/me", restHandler.WithAuth(restHandler.HandleMe))
	mux.HandleFunc("POST /api/profile", restHandler.WithAuth(restHandler.HandleProfile))
	mux.HandleFunc("GET /api/canvases/list", restHandler.WithAuth(restHandler.HandleCanvasList))
	mux.HandleFunc("POST /api/canvases/create", restHandler.WithAuth(restHandler.HandleCanvasCreate))
	mux.HandleFunc("GET /api/canvas/{id}/permissions", restHandler.WithAuth(restHandler.HandleCanvasPermissionsGet))
	mux.HandleFunc("POST /api/canvas/{id}/permissions", restHandler.WithAuth(restHandler.HandleCanvasPermissionsSet))

	wsUpgrader := drawingAPI.wsHandler.NewWsUpgrader()
	mux.HandleFunc("GET /ws", restHandler.WithAuth(func(w http.ResponseWriter, r *http.Request) {
		drawingAPI.wsHandler.ServeWS(wsUpgrader, w, r, drawingAPI.shutdownCtx)
	}))
}
