package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"docshub/core"
)

func testStore(t *testing.T) *sqliteStore {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "docshub_test.db"))
}

func TestCreateAndFind(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Resource{
		Kind:    core.KindSpreadsheet,
		OwnerID: "user-1",
		Title:   "Budget",
		Data:    []byte(`{"sheets":[{"name":"Q1","data":[["100"]]}]}`),
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	resource, err := store.Find(ctx, core.ResourceKey{Kind: core.KindSpreadsheet, ID: id})
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if resource.Title != "Budget" || resource.OwnerID != "user-1" {
		t.Errorf("unexpected resource: %+v", resource)
	}
	if string(resource.Data) != `{"sheets":[{"name":"Q1","data":[["100"]]}]}` {
		t.Errorf("unexpected data: %s", resource.Data)
	}
}

func TestFindMissing(t *testing.T) {
	store := testStore(t)
	_, err := store.Find(context.Background(), core.ResourceKey{Kind: core.KindDocument, ID: "missing"})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKindsDoNotCollide(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, &core.Resource{Kind: core.KindDocument, ID: "shared", OwnerID: "user-1", Title: "Doc"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := store.Create(ctx, &core.Resource{Kind: core.KindSpreadsheet, ID: "shared", OwnerID: "user-1", Title: "Sheet"}); err != nil {
		t.Fatalf("expected same id under another kind to be allowed: %v", err)
	}

	doc, err := store.Find(ctx, core.ResourceKey{Kind: core.KindDocument, ID: "shared"})
	if err != nil || doc.Title != "Doc" {
		t.Errorf("expected the document, got %+v err=%v", doc, err)
	}
}

func TestUpdateIsPartial(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, _ := store.Create(ctx, &core.Resource{
		Kind:    core.KindDocument,
		OwnerID: "user-1",
		Title:   "Before",
		Content: "<p>before</p>",
	})
	key := core.ResourceKey{Kind: core.KindDocument, ID: id}

	content := "<p>after</p>"
	if err := store.Update(ctx, key, core.ResourceUpdate{Content: &content, EditedBy: "user-2"}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	resource, _ := store.Find(ctx, key)
	if resource.Content != "<p>after</p>" {
		t.Errorf("expected updated content, got %q", resource.Content)
	}
	if resource.Title != "Before" {
		t.Errorf("expected untouched title, got %q", resource.Title)
	}
	if resource.LastEditedBy != "user-2" {
		t.Errorf("expected last editor user-2, got %q", resource.LastEditedBy)
	}
}

func TestUpdateMissingResource(t *testing.T) {
	store := testStore(t)
	err := store.Update(context.Background(), core.ResourceKey{Kind: core.KindDocument, ID: "nope"}, core.ResourceUpdate{})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesPermissions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, _ := store.Create(ctx, &core.Resource{Kind: core.KindDocument, OwnerID: "user-1"})
	key := core.ResourceKey{Kind: core.KindDocument, ID: id}
	store.SetPermission(ctx, key, "editor-1", core.RoleEditor)

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := store.Find(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, _, err := store.RoleFor(ctx, key, "editor-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound role lookup after delete, got %v", err)
	}
}

func TestRoleResolution(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, _ := store.Create(ctx, &core.Resource{Kind: core.KindDocument, OwnerID: "owner-1"})
	key := core.ResourceKey{Kind: core.KindDocument, ID: id}

	role, ok, err := store.RoleFor(ctx, key, "owner-1")
	if err != nil || !ok || role != core.RoleOwner {
		t.Errorf("expected owner role, got role=%q ok=%v err=%v", role, ok, err)
	}

	store.SetPermission(ctx, key, "carol", core.RoleCommenter)
	role, ok, err = store.RoleFor(ctx, key, "carol")
	if err != nil || !ok || role != core.RoleCommenter {
		t.Errorf("expected commenter role, got role=%q ok=%v err=%v", role, ok, err)
	}

	// Upsert replaces the grant in place.
	store.SetPermission(ctx, key, "carol", core.RoleEditor)
	role, ok, _ = store.RoleFor(ctx, key, "carol")
	if !ok || role != core.RoleEditor {
		t.Errorf("expected upgraded editor role, got role=%q ok=%v", role, ok)
	}

	_, ok, err = store.RoleFor(ctx, key, "stranger")
	if err != nil || ok {
		t.Errorf("expected no role for a stranger, got ok=%v err=%v", ok, err)
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Resource{Kind: core.KindDocument, OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	doc, _ := store.Find(ctx, core.ResourceKey{Kind: core.KindDocument, ID: id})
	if doc.Title != core.DefaultDocumentTitle || doc.Content != core.DefaultDocumentContent {
		t.Errorf("expected document defaults, got title=%q content=%q", doc.Title, doc.Content)
	}
}
