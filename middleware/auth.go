package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/render"

	"docshub/handlers/auth"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// AuthJWT authenticates API requests. The credential is taken from the
// Authorization header or the token query parameter, the same
// extraction the room channel upgrade uses.
func AuthJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := auth.CredentialFrom(r)
		if credential == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Bearer token or token query parameter is required"})
			return
		}

		claims, err := auth.ParseJWT(credential)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
