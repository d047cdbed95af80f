package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type (
	// ResourceKind distinguishes the two collaborative resource types.
	ResourceKind string

	// ResourceKey identifies a resource, and therefore a room.
	ResourceKey struct {
		Kind ResourceKind
		ID   string
	}

	// Resource is the canonical record of a document or spreadsheet.
	// Content holds document HTML; Data holds the spreadsheet grid JSON.
	Resource struct {
		ID           string          `json:"id"`
		Kind         ResourceKind    `json:"kind"`
		OwnerID      string          `json:"-"`
		Title        string          `json:"title"`
		Content      string          `json:"content,omitempty"`
		Data         json.RawMessage `json:"data,omitempty"`
		CreatedAt    time.Time       `json:"createdAt"`
		UpdatedAt    time.Time       `json:"updatedAt"`
		LastEditedBy string          `json:"lastEditedBy,omitempty"`
	}

	// ResourceUpdate is a partial update. Nil fields are left untouched.
	ResourceUpdate struct {
		Title    *string
		Content  *string
		Data     json.RawMessage
		EditedBy string
	}

	// ResourceStore is the persistence gateway consumed by the
	// collaboration core. Debounced saves land here through Update;
	// RoleFor backs admission and the relay's authorization gate.
	ResourceStore interface {
		Find(ctx context.Context, key ResourceKey) (*Resource, error)
		Create(ctx context.Context, resource *Resource) (string, error)
		Update(ctx context.Context, key ResourceKey, update ResourceUpdate) error
		Delete(ctx context.Context, key ResourceKey) error

		// SetPermission grants or replaces a user's role on a resource.
		SetPermission(ctx context.Context, key ResourceKey, subject string, role Role) error

		// RoleFor resolves the effective role of a user: the record owner
		// always resolves to RoleOwner, otherwise the granted role, if any.
		// Returns ErrNotFound when the resource does not exist.
		RoleFor(ctx context.Context, key ResourceKey, subject string) (Role, bool, error)
	}
)

const (
	KindDocument    ResourceKind = "document"
	KindSpreadsheet ResourceKind = "spreadsheet"
)

// Defaults carried over from the canonical records of freshly created
// resources.
const (
	DefaultDocumentContent  = "<p></p>"
	DefaultDocumentTitle    = "Untitled Document"
	DefaultSpreadsheetTitle = "Untitled Spreadsheet"
	DefaultSpreadsheetData  = `{"sheets":[{"name":"Sheet1","data":[[]]}]}`
)

// ParseResourceKind validates a kind from a URL segment.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(s) {
	case KindDocument:
		return KindDocument, nil
	case KindSpreadsheet:
		return KindSpreadsheet, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

func (k ResourceKey) String() string {
	return string(k.Kind) + "/" + k.ID
}
