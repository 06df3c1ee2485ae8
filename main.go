package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Parzival4o4/drawing-app/api"
	"github.com/Parzival4o4/drawing-app/eventlog"
	"github.com/Parzival4o4/drawing-app/store/sqlite"
)

func main() {
	ctx := context.Background()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatalf("JWT_SECRET must be set")
	}

	dataDir := "/data"
	if d := os.Getenv("DATA_DIR"); d != "" {
		dataDir = d
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Data directory %s is not writable: %v", dataDir, err)
	}

	eventsDir := filepath.Join(dataDir, "canvases")
	if _, err := eventlog.NewStore(eventsDir); err != nil {
		log.Fatalf("Failed to prepare event log directory: %v", err)
	}

	canvasStore, err := sqlite.Open(ctx, filepath.Join(dataDir, "app.db"), eventsDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer canvasStore.Close()

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	drawingAPI, err := api.NewDrawingAPI(canvasStore, []byte(jwtSecret), shutdownCtx)
	if err != nil {
		log.Fatalf("Failed to create drawing api: %v", err)
	}

	mux := http.NewServeMux()
	drawingAPI.RegisterRoutes(mux)

	hostPort := "8080"
	if p := os.Getenv("HOST_PORT"); p != "" {
		hostPort = p
	}
	log.Printf("Starting server on host port: %s\n", hostPort)
	log.Fatal(http.ListenAndServe(":"+hostPort, mux))
}
