package resources

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"docshub/core"
	"docshub/handlers/auth"
	"docshub/middleware"
)

type (
	// GetResponse is the canonical snapshot returned to clients, used
	// for initial loads and post-reconnect resynchronization.
	GetResponse struct {
		ID           string          `json:"id"`
		Title        string          `json:"title"`
		Content      string          `json:"content,omitempty"`
		Data         json.RawMessage `json:"data,omitempty"`
		Role         core.Role       `json:"role"`
		CreatedAt    time.Time       `json:"createdAt"`
		UpdatedAt    time.Time       `json:"updatedAt"`
		LastEditedBy string          `json:"lastEditedBy,omitempty"`
	}

	// UpdateRequest is a partial update; absent fields are untouched.
	// This is the write side of the persistence gateway that debounced
	// saves land on.
	UpdateRequest struct {
		Title   *string         `json:"title,omitempty"`
		Content *string         `json:"content,omitempty"`
		Data    json.RawMessage `json:"data,omitempty"`
	}

	UpdateResponse struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
)

// HandleGet serves GET /api/{resourceType}/{id}. Any resolved role may
// read; the response carries the caller's role so clients can gate
// their UI without a second round trip.
func HandleGet(store core.ResourceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, key, ok := requestScope(w, r)
		if !ok {
			return
		}

		resource, err := store.Find(r.Context(), key)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Resource not found"})
				return
			}
			logrus.WithError(err).WithField("resource", key.String()).Error("Failed to retrieve resource")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to retrieve resource"})
			return
		}

		role, hasRole, err := store.RoleFor(r.Context(), key, claims.Subject)
		if err != nil && errors.Is(err, core.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Resource not found"})
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("resource", key.String()).Error("Failed to resolve role")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to resolve role"})
			return
		}
		if !hasRole {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "No access to this resource"})
			return
		}

		render.JSON(w, r, GetResponse{
			ID:           resource.ID,
			Title:        resource.Title,
			Content:      resource.Content,
			Data:         resource.Data,
			Role:         role,
			CreatedAt:    resource.CreatedAt,
			UpdatedAt:    resource.UpdatedAt,
			LastEditedBy: resource.LastEditedBy,
		})
	}
}

// HandleUpdate serves POST /api/{resourceType}/{id}. It is the server
// side write gate: only owner or editor roles may land a snapshot,
// regardless of what a client's UI allowed.
func HandleUpdate(store core.ResourceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, key, ok := requestScope(w, r)
		if !ok {
			return
		}

		role, hasRole, err := store.RoleFor(r.Context(), key, claims.Subject)
		if err != nil && errors.Is(err, core.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Resource not found"})
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("resource", key.String()).Error("Failed to resolve role")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to resolve role"})
			return
		}
		if !hasRole || !role.CanEdit() {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Editing requires owner or editor role"})
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		update := core.ResourceUpdate{
			Title:    req.Title,
			Content:  req.Content,
			Data:     req.Data,
			EditedBy: claims.Subject,
		}
		if err := store.Update(r.Context(), key, update); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"resource": key.String(),
				"userID":   claims.Subject,
			}).Error("Failed to update resource")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to update resource"})
			return
		}

		resource, err := store.Find(r.Context(), key)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to retrieve resource"})
			return
		}

		render.JSON(w, r, UpdateResponse{
			ID:        resource.ID,
			Title:     resource.Title,
			UpdatedAt: resource.UpdatedAt,
		})
	}
}

// requestScope extracts the authenticated claims and the resource key,
// writing the error response itself when either is missing.
func requestScope(w http.ResponseWriter, r *http.Request) (*auth.AppClaims, core.ResourceKey, bool) {
	claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "User claims not found"})
		return nil, core.ResourceKey{}, false
	}

	kind, err := core.ParseResourceKind(chi.URLParam(r, "resourceType"))
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Unknown resource type"})
		return nil, core.ResourceKey{}, false
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Resource id is required"})
		return nil, core.ResourceKey{}, false
	}

	return claims, core.ResourceKey{Kind: kind, ID: id}, true
}
