package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"docshub/core"
)

// record is the on-disk layout: the resource plus its permission
// grants, one JSON file per resource under basePath/kind/id.json.
type record struct {
	Resource    core.Resource        `json:"resource"`
	Permissions map[string]core.Role `json:"permissions"`
}

type fsStore struct {
	basePath string
	mu       sync.Mutex
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, kind := range []core.ResourceKind{core.KindDocument, core.KindSpreadsheet} {
		if err := os.MkdirAll(filepath.Join(basePath, string(kind)), 0755); err != nil {
			log.Fatalf("failed to create base directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

// resourcePath sanitizes the resource ID to prevent path traversal; an
// ID must be a simple name, not a path.
func (s *fsStore) resourcePath(key core.ResourceKey) (string, error) {
	if filepath.Base(key.ID) != key.ID || key.ID == "" || key.ID == "." || key.ID == ".." {
		return "", fmt.Errorf("invalid resource id %q", key.ID)
	}
	return filepath.Join(s.basePath, string(key.Kind), key.ID+".json"), nil
}

func (s *fsStore) read(key core.ResourceKey) (*record, error) {
	path, err := s.resourcePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource %s: %v", key, err)
	}
	if rec.Permissions == nil {
		rec.Permissions = make(map[string]core.Role)
	}
	return &rec, nil
}

func (s *fsStore) write(key core.ResourceKey, rec *record) error {
	path, err := s.resourcePath(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal resource %s: %v", key, err)
	}
	return os.WriteFile(path, data, 0644)
}

func (s *fsStore) Find(ctx context.Context, key core.ResourceKey) (*core.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(key)
	if err != nil {
		return nil, err
	}
	resource := rec.Resource
	return &resource, nil
}

func (s *fsStore) Create(ctx context.Context, resource *core.Resource) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resource.ID == "" {
		resource.ID = ulid.Make().String()
	}
	applyDefaults(resource)
	now := time.Now()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	key := core.ResourceKey{Kind: resource.Kind, ID: resource.ID}
	rec := &record{Resource: *resource, Permissions: make(map[string]core.Role)}
	if err := s.write(key, rec); err != nil {
		logrus.WithError(err).WithField("resource", key.String()).Error("Failed to create resource")
		return "", err
	}
	logrus.WithField("resource", key.String()).Info("Resource created successfully")
	return resource.ID, nil
}

func (s *fsStore) Update(ctx context.Context, key core.ResourceKey, update core.ResourceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(key)
	if err != nil {
		return err
	}
	if update.Title != nil {
		rec.Resource.Title = *update.Title
	}
	if update.Content != nil {
		rec.Resource.Content = *update.Content
	}
	if update.Data != nil {
		rec.Resource.Data = update.Data
	}
	rec.Resource.LastEditedBy = update.EditedBy
	rec.Resource.UpdatedAt = time.Now()
	return s.write(key, rec)
}

func (s *fsStore) Delete(ctx context.Context, key core.ResourceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resourcePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return err
	}
	return nil
}

func (s *fsStore) SetPermission(ctx context.Context, key core.ResourceKey, subject string, role core.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(key)
	if err != nil {
		return err
	}
	rec.Permissions[subject] = role
	return s.write(key, rec)
}

func (s *fsStore) RoleFor(ctx context.Context, key core.ResourceKey, subject string) (core.Role, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(key)
	if err != nil {
		return "", false, err
	}
	if rec.Resource.OwnerID == subject {
		return core.RoleOwner, true, nil
	}
	if role, ok := rec.Permissions[subject]; ok {
		return role, true, nil
	}
	return "", false, nil
}

func applyDefaults(resource *core.Resource) {
	switch resource.Kind {
	case core.KindDocument:
		if resource.Title == "" {
			resource.Title = core.DefaultDocumentTitle
		}
		if resource.Content == "" {
			resource.Content = core.DefaultDocumentContent
		}
	case core.KindSpreadsheet:
		if resource.Title == "" {
			resource.Title = core.DefaultSpreadsheetTitle
		}
		if len(resource.Data) == 0 {
			resource.Data = []byte(core.DefaultSpreadsheetData)
		}
	}
}
