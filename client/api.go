package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docshub/core"
)

type (
	// API is the resource read/write collaborator: the client fetches
	// canonical snapshots and lands debounced saves through it.
	API struct {
		BaseURL    string
		Token      string
		HTTPClient *http.Client
	}

	// Snapshot is the canonical resource state as served by the API.
	Snapshot struct {
		ID        string          `json:"id"`
		Title     string          `json:"title"`
		Content   string          `json:"content,omitempty"`
		Data      json.RawMessage `json:"data,omitempty"`
		Role      core.Role       `json:"role"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// SaveRequest is a partial update; nil fields are left untouched.
	SaveRequest struct {
		Title   *string         `json:"title,omitempty"`
		Content *string         `json:"content,omitempty"`
		Data    json.RawMessage `json:"data,omitempty"`
	}
)

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves the canonical snapshot for a resource.
func (a *API) Fetch(ctx context.Context, key core.ResourceKey) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.resourceURL(key), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, core.ErrUnauthenticated
	case http.StatusForbidden:
		return nil, core.ErrForbidden
	case http.StatusNotFound:
		return nil, core.ErrNotFound
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", key, resp.StatusCode)
	}

	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("fetch %s: decoding snapshot: %v", key, err)
	}
	return &snapshot, nil
}

// Save performs a full-snapshot durable write through the persistence
// gateway.
func (a *API) Save(ctx context.Context, key core.ResourceKey, save SaveRequest) error {
	body, err := json.Marshal(save)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.resourceURL(key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return core.ErrUnauthenticated
	case http.StatusForbidden:
		return core.ErrForbidden
	case http.StatusNotFound:
		return core.ErrNotFound
	default:
		return fmt.Errorf("save %s: unexpected status %d", key, resp.StatusCode)
	}
}

func (a *API) resourceURL(key core.ResourceKey) string {
	return fmt.Sprintf("%s/api/%s/%s", a.BaseURL, key.Kind, key.ID)
}
