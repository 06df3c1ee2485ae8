package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/Parzival4o4/drawing-app/eventlog"
	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/store"
)

// ErrNotPermitted is returned when a connection's permission level does not
// cover the attempted hub operation. A refused event or moderation toggle is
// dropped silently on the wire and only the server log records it; a refused
// subscribe is answered with a notify frame by the session handler.
var ErrNotPermitted = errors.New("permission denied")

// Server → client frame shapes.
type eventsFrame struct {
	CanvasID        string            `json:"canvasId"`
	EventsForCanvas []json.RawMessage `json:"eventsForCanvas"`
}

type moderatedFrame struct {
	CanvasID  string `json:"canvasId"`
	Moderated bool   `json:"moderated"`
}

type permissionFrame struct {
	CanvasID       string                 `json:"canvasId"`
	YourPermission models.PermissionLevel `json:"yourPermission"`
}

type notifyFrame struct {
	Notify string `json:"notify"`
}

// CanvasHub is the per-canvas broadcast domain: subscriber set, moderation
// flag, and the append-and-fan-out pipeline anchored on the canvas's event
// log. One mutex orders subscribe, append+broadcast, and moderation changes;
// sends are non-blocking channel writes, so holding it across fan-out is what
// guarantees every subscriber observes the same event order.
type CanvasHub struct {
	canvasID    string
	canvasStore store.CanvasStore

	mu          sync.Mutex
	moderated   bool
	eventFile   *eventlog.Log
	subscribers map[*Client]struct{}
}

func newCanvasHub(canvasID string, moderated bool, eventFile *eventlog.Log, canvasStore store.CanvasStore) *CanvasHub {
	return &CanvasHub{
		canvasID:    canvasID,
		canvasStore: canvasStore,
		moderated:   moderated,
		eventFile:   eventFile,
		subscribers: make(map[*Client]struct{}),
	}
}

// Moderated reports the current in-memory moderation flag.
func (h *CanvasHub) Moderated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moderated
}

// Subscribe admits a connection with read permission or better, delivers the
// subscription preamble (full history, moderation flag, the caller's level),
// and adds it to the subscriber set. The preamble is enqueued under the hub
// lock, so it precedes any live event on this connection.
func (h *CanvasHub) Subscribe(c *Client) error {
	perm := c.Claims().Permission(h.canvasID)
	if !perm.CanRead() {
		log.Printf("User %d tried to subscribe to canvas %s without permission", c.UserID(), h.canvasID)
		return ErrNotPermitted
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	history, err := h.eventFile.ReadAll()
	if err != nil {
		log.Printf("Failed to read history for canvas %s: %v", h.canvasID, err)
		return err
	}

	h.enqueue(c, eventsFrame{CanvasID: h.canvasID, EventsForCanvas: history})
	h.enqueue(c, moderatedFrame{CanvasID: h.canvasID, Moderated: h.moderated})
	h.enqueue(c, permissionFrame{CanvasID: h.canvasID, YourPermission: perm})

	h.subscribers[c] = struct{}{}
	log.Printf("User %d subscribed to canvas %s (conn %d). Subscribers: %d. Moderated: %v",
		c.UserID(), h.canvasID, c.ID(), len(h.subscribers), h.moderated)
	return nil
}

// Unsubscribe removes a connection from the subscriber set. Idempotent.
func (h *CanvasHub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[c]; ok {
		delete(h.subscribers, c)
		log.Printf("Connection %d unsubscribed from canvas %s. Subscribers: %d", c.ID(), h.canvasID, len(h.subscribers))
	}
}

// AppendAndBroadcast authorizes the event against the sender's current claims
// and the moderation flag, appends it to the canvas log, and fans it out to
// every subscriber including the originator. The append precedes the fan-out;
// a failed append means nothing is broadcast.
func (h *CanvasHub) AppendAndBroadcast(c *Client, event json.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	perm := c.Claims().Permission(h.canvasID)
	if !perm.CanWrite() {
		log.Printf("User %d denied drawing on canvas %s (permission %q)", c.UserID(), h.canvasID, perm)
		return ErrNotPermitted
	}
	if h.moderated && !perm.CanBypassModeration() {
		log.Printf("User %d denied drawing on moderated canvas %s (permission %q)", c.UserID(), h.canvasID, perm)
		return ErrNotPermitted
	}

	if err := h.eventFile.Append(event); err != nil {
		log.Printf("Failed to append event to canvas %s: %v", h.canvasID, err)
		return err
	}

	h.broadcast(eventsFrame{CanvasID: h.canvasID, EventsForCanvas: []json.RawMessage{event}})
	return nil
}

// ToggleModerated flips the moderation flag for a moderator-or-better caller:
// persist first, then update the in-memory mirror, then broadcast the new
// state to every subscriber.
func (h *CanvasHub) ToggleModerated(ctx context.Context, c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setModeratedLocked(ctx, c, !h.moderated)
}

// SetModerated moves the flag to an explicit value; already being in the
// target state is a no-op without a broadcast.
func (h *CanvasHub) SetModerated(ctx context.Context, c *Client, value bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setModeratedLocked(ctx, c, value)
}

func (h *CanvasHub) setModeratedLocked(ctx context.Context, c *Client, value bool) error {
	perm := c.Claims().Permission(h.canvasID)
	if !perm.CanModerate() {
		log.Printf("User %d denied moderation toggle on canvas %s (permission %q)", c.UserID(), h.canvasID, perm)
		return ErrNotPermitted
	}
	if h.moderated == value {
		return nil
	}

	if err := h.canvasStore.SetModerated(ctx, h.canvasID, value); err != nil {
		log.Printf("Failed to persist moderated=%v for canvas %s: %v", value, h.canvasID, err)
		return err
	}
	h.moderated = value
	log.Printf("User %d set moderation for canvas %s -> %v", c.UserID(), h.canvasID, value)

	h.broadcast(moderatedFrame{CanvasID: h.canvasID, Moderated: value})
	return nil
}

// broadcast fans a frame out to every subscriber; callers hold h.mu. A
// subscriber whose send buffer is gone or full is treated as disconnected:
// dropped from the set and closed.
func (h *CanvasHub) broadcast(frame any) {
	message, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Error marshaling broadcast frame for canvas %s: %v", h.canvasID, err)
		return
	}
	for sub := range h.subscribers {
		if !sub.trySend(message) {
			log.Printf("Dropping subscriber %d of canvas %s: send failed", sub.ID(), h.canvasID)
			delete(h.subscribers, sub)
			sub.Close()
		}
	}
}

// enqueue sends a single preamble frame to one connection; callers hold h.mu.
func (h *CanvasHub) enqueue(c *Client, frame any) {
	message, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Error marshaling frame for canvas %s: %v", h.canvasID, err)
		return
	}
	if !c.trySend(message) {
		log.Printf("Failed to deliver frame to connection %d on canvas %s", c.ID(), h.canvasID)
	}
}
