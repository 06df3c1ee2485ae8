package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Parzival4o4/drawing-app/service"
	"github.com/Parzival4o4/drawing-app/store"
)

type Handler struct {
	Service  *service.Service
	Registry *Registry
}

func NewHandler(svc *service.Service, registry *Registry) *Handler {
	return &Handler{
		Service:  svc,
		Registry: registry,
	}
}

func (h *Handler) NewWsUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

// ServeWS upgrades an authenticated request. The auth gate runs before this
// handler and installs (possibly refreshed) claims in the request context;
// those claims seed the connection's mutable claims slot.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade ws connection: %v", err)
		return
	}

	client := NewClient(h.Registry, conn, claims, h.HandleWsMessage)
	h.Registry.Insert(client)

	go client.WritePump(shutdownCtx)
	go client.ReadPump()
}

// Client → server frame shapes. Event frames are tried first, then commands;
// anything else is logged and dropped.
type eventsMessage struct {
	CanvasID        string            `json:"canvasId"`
	EventsForCanvas []json.RawMessage `json:"eventsForCanvas"`
}

type commandMessage struct {
	Command  string `json:"command"`
	CanvasID string `json:"canvasId"`
}

func (h *Handler) HandleWsMessage(client *Client, messageBytes []byte) {
	var events eventsMessage
	if err := json.Unmarshal(messageBytes, &events); err == nil && events.EventsForCanvas != nil {
		h.handleEvents(client, events)
		return
	}

	var cmd commandMessage
	if err := json.Unmarshal(messageBytes, &cmd); err != nil || cmd.Command == "" {
		log.Printf("Failed to parse frame from user %d, dropping", client.UserID())
		return
	}

	switch cmd.Command {
	case "registerForCanvas":
		h.handleRegister(client, cmd.CanvasID)

	case "unregisterForCanvas":
		h.handleUnregister(client, cmd.CanvasID)

	case "toggleModerated":
		h.handleToggleModerated(client, cmd.CanvasID)

	default:
		log.Printf("Unknown command %q from user %d", cmd.Command, client.UserID())
	}
}

// refreshClaims runs the lazy gate for a permission-sensitive frame. A
// hard-expired connection is closed; a failed refresh fails the action but
// keeps the connection open.
func (h *Handler) refreshClaims(client *Client) (service.Claims, bool) {
	claims, changed, err := h.Service.RefreshConnectionClaims(client.ctx, client.Claims())
	if err != nil {
		if errors.Is(err, service.ErrHardExpired) {
			log.Printf("Connection %d of user %d hard-expired, closing", client.ID(), client.UserID())
			h.notify(client, "Your session expired. Please log in again.")
			client.Close()
			return service.Claims{}, false
		}
		h.notify(client, "Failed to refresh your session. Try again.")
		return service.Claims{}, false
	}
	if changed {
		client.SetClaims(claims)
	}
	return claims, true
}

func (h *Handler) handleRegister(client *Client, canvasID string) {
	if _, ok := h.refreshClaims(client); !ok {
		return
	}

	hub, err := h.Registry.Hub(client.ctx, canvasID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			h.notify(client, fmt.Sprintf("Canvas ID '%s' is invalid or does not exist.", canvasID))
		} else {
			log.Printf("Failed to load canvas %s: %v", canvasID, err)
			h.notify(client, "A database error occurred. Cannot subscribe to canvas.")
		}
		return
	}

	switch err := hub.Subscribe(client); {
	case errors.Is(err, ErrNotPermitted):
		h.notify(client, "You do not have permission to access this canvas.")
	case err != nil:
		h.notify(client, "Failed to load canvas history. Try refreshing.")
	default:
		client.subscribed[canvasID] = struct{}{}
	}
}

func (h *Handler) handleUnregister(client *Client, canvasID string) {
	if hub, ok := h.Registry.ExistingHub(canvasID); ok {
		hub.Unsubscribe(client)
	}
	delete(client.subscribed, canvasID)
}

func (h *Handler) handleToggleModerated(client *Client, canvasID string) {
	if _, ok := client.subscribed[canvasID]; !ok {
		log.Printf("User %d sent toggleModerated for unsubscribed canvas %s, dropping", client.UserID(), canvasID)
		return
	}
	if _, ok := h.refreshClaims(client); !ok {
		return
	}

	hub, ok := h.Registry.ExistingHub(canvasID)
	if !ok {
		return
	}
	if err := hub.ToggleModerated(client.ctx, client); err != nil && !errors.Is(err, ErrNotPermitted) {
		h.notify(client, "Failed to change moderation state. Try again.")
	}
}

func (h *Handler) handleEvents(client *Client, events eventsMessage) {
	if _, ok := client.subscribed[events.CanvasID]; !ok {
		log.Printf("User %d sent events for unsubscribed canvas %s, dropping", client.UserID(), events.CanvasID)
		return
	}
	if _, ok := h.refreshClaims(client); !ok {
		return
	}

	hub, ok := h.Registry.ExistingHub(events.CanvasID)
	if !ok {
		return
	}
	for _, event := range events.EventsForCanvas {
		if err := hub.AppendAndBroadcast(client, event); err != nil {
			if !errors.Is(err, ErrNotPermitted) {
				h.notify(client, "Failed to save your changes. Try again.")
			}
			return
		}
	}
}

// notify sends a one-off informational frame to a single connection.
func (h *Handler) notify(client *Client, text string) {
	message, err := json.Marshal(notifyFrame{Notify: text})
	if err != nil {
		return
	}
	if !client.trySend(message) {
		log.Printf("Failed to send notification to connection %d", client.ID())
	}
}
