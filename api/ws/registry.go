package ws

import (
	"context"
	"log"
	"sync"

	"github.com/Parzival4o4/drawing-app/eventlog"
	"github.com/Parzival4o4/drawing-app/service"
	"github.com/Parzival4o4/drawing-app/store"
)

// Registry tracks the open connections and the lazily created canvas hubs.
// Hubs stay resident until process shutdown; connections come and go.
type Registry struct {
	canvasStore store.CanvasStore

	mu      sync.RWMutex
	clients map[int64]*Client
	hubs    map[string]*CanvasHub
}

func NewRegistry(canvasStore store.CanvasStore) *Registry {
	return &Registry{
		canvasStore: canvasStore,
		clients:     make(map[int64]*Client),
		hubs:        make(map[string]*CanvasHub),
	}
}

func (r *Registry) Insert(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
	log.Printf("Connection %d opened for user %d. Open connections: %d", c.id, c.UserID(), len(r.clients))
}

func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c.id)
}

// UpdateUserClaims pushes refreshed claims onto every live connection of a
// user. Called from HTTP handlers whose operation changed the user's identity
// or permission set (canvas create, profile update).
func (r *Registry) UpdateUserClaims(userID int64, claims service.Claims) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.UserID() == userID {
			c.SetClaims(claims)
		}
	}
}

// Hub returns the hub for a canvas, creating it from the store on first
// reference. Unknown canvases surface store.ErrItemNotFound.
func (r *Registry) Hub(ctx context.Context, canvasID string) (*CanvasHub, error) {
	r.mu.RLock()
	hub, ok := r.hubs[canvasID]
	r.mu.RUnlock()
	if ok {
		return hub, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if hub, ok := r.hubs[canvasID]; ok {
		return hub, nil
	}

	canvas, err := r.canvasStore.GetCanvas(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	log.Printf("Canvas %s not in memory, loaded from store (moderated: %v)", canvasID, canvas.Moderated)
	hub = newCanvasHub(canvasID, canvas.Moderated, eventlog.OpenPath(canvas.EventFilePath), r.canvasStore)
	r.hubs[canvasID] = hub
	return hub, nil
}

// ExistingHub looks a hub up without creating one.
func (r *Registry) ExistingHub(canvasID string) (*CanvasHub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hub, ok := r.hubs[canvasID]
	return hub, ok
}
