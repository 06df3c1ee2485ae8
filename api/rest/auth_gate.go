package rest

import (
	"log"
	"net/http"

	"github.com/Parzival4o4/drawing-app/service"
)

const authCookieName = "auth_token"

// WithAuth is the auth gate for protected endpoints, including the websocket
// upgrade. It validates the auth cookie, transparently refreshes the claims
// when the soft timer elapsed or a refresh mark exists, re-sets the cookie on
// refresh, and injects the claims the protected handler observes — so a
// permission change is visible to the very request that triggered the refresh.
func (h *Handler) WithAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}

		claims, freshToken, err := h.Service.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			log.Printf("Rejected request to %s: %v", r.URL.Path, err)
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}
		if freshToken != "" {
			h.setAuthCookie(w, freshToken)
		}

		next(w, r.WithContext(service.NewContextWithClaims(r.Context(), claims)))
	}
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Service.TokenHardLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
