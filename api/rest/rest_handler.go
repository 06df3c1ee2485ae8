package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/service"
	"github.com/Parzival4o4/drawing-app/store"
)

// ClaimsUpdater pushes refreshed claims onto a user's live connections.
type ClaimsUpdater interface {
	UpdateUserClaims(userID int64, claims service.Claims)
}

type Handler struct {
	Service     *service.Service
	Connections ClaimsUpdater
}

func NewHandler(svc *service.Service, connections ClaimsUpdater) *Handler {
	return &Handler{Service: svc, Connections: connections}
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "already exists", http.StatusConflict)
	case errors.Is(err, store.ErrItemNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, service.ErrWrongCredentials):
		http.Error(w, "wrong credentials", http.StatusUnauthorized)
	default:
		log.Printf("Request failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// ===================== auth =====================

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		http.Error(w, "missing credentials", http.StatusBadRequest)
		return
	}

	user, token, err := h.Service.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.setAuthCookie(w, token)
	h.sendResponse(w, http.StatusCreated, map[string]any{
		"user_id":      user.UserID,
		"email":        user.Email,
		"display_name": user.DisplayName,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.setAuthCookie(w, token)
	h.sendResponse(w, http.StatusOK, map[string]any{
		"user_id":      user.UserID,
		"email":        user.Email,
		"display_name": user.DisplayName,
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookie(w)
	h.sendResponse(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	h.sendResponse(w, http.StatusOK, map[string]any{
		"user_id":      claims.UserID,
		"email":        claims.Email,
		"display_name": claims.DisplayName,
	})
}

type profileRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" && req.DisplayName == "" {
		h.sendResponse(w, http.StatusOK, map[string]string{"message": "No fields to update"})
		return
	}

	fresh, token, err := h.Service.UpdateProfile(r.Context(), claims, req.Email, req.DisplayName)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.Connections.UpdateUserClaims(claims.UserID, fresh)
	h.setAuthCookie(w, token)
	h.sendResponse(w, http.StatusOK, map[string]string{"message": "Profile updated"})
}

// ===================== canvases =====================

func (h *Handler) HandleCanvasList(w http.ResponseWriter, r *http.Request) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	items, err := h.Service.ListCanvases(r.Context(), claims)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendResponse(w, http.StatusOK, items)
}

type createCanvasRequest struct {
	Name string `json:"name"`
}

func (h *Handler) HandleCanvasCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	var req createCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "canvas name cannot be empty", http.StatusBadRequest)
		return
	}

	canvas, fresh, token, err := h.Service.CreateCanvas(r.Context(), claims, req.Name)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.Connections.UpdateUserClaims(claims.UserID, fresh)
	h.setAuthCookie(w, token)
	h.sendResponse(w, http.StatusCreated, map[string]string{"canvas_id": canvas.CanvasID})
}

func (h *Handler) HandleCanvasPermissionsGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	canvasID := r.PathValue("id")

	grouped, err := h.Service.CanvasPermissions(r.Context(), claims, canvasID)
	if err != nil {
		h.sendError(w, err)
		return
	}

	type memberEntry struct {
		UserID      int64  `json:"user_id"`
		DisplayName string `json:"display_name"`
	}
	resp := make(map[models.PermissionLevel][]memberEntry)
	for level, members := range grouped {
		for _, m := range members {
			resp[level] = append(resp[level], memberEntry{UserID: m.UserID, DisplayName: m.DisplayName})
		}
	}
	h.sendResponse(w, http.StatusOK, resp)
}

type setPermissionRequest struct {
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
}

func (h *Handler) HandleCanvasPermissionsSet(w http.ResponseWriter, r *http.Request) {
	claims, ok := service.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}
	canvasID := r.PathValue("id")

	var req setPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	level := models.PermissionLevel(req.Permission)
	if level != models.PermissionNone && !level.Valid() {
		http.Error(w, "invalid permission level", http.StatusBadRequest)
		return
	}

	if err := h.Service.SetPermission(r.Context(), claims, canvasID, req.UserID, level); err != nil {
		h.sendError(w, err)
		return
	}
	h.sendResponse(w, http.StatusOK, map[string]string{"message": "Permission updated"})
}
