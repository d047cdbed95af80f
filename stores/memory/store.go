package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"docshub/core"
)

// memStore keeps resources and permission grants in process memory.
type memStore struct {
	mu          sync.RWMutex
	resources   map[core.ResourceKey]*core.Resource
	permissions map[core.ResourceKey]map[string]core.Role
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		resources:   make(map[core.ResourceKey]*core.Resource),
		permissions: make(map[core.ResourceKey]map[string]core.Role),
	}
}

func (s *memStore) Find(ctx context.Context, key core.ResourceKey) (*core.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resource, ok := s.resources[key]
	if !ok {
		logrus.WithField("resource", key.String()).Warn("Resource not found")
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	copied := *resource
	return &copied, nil
}

func (s *memStore) Create(ctx context.Context, resource *core.Resource) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resource.OwnerID == "" {
		return "", fmt.Errorf("OwnerID cannot be empty")
	}
	if resource.ID == "" {
		resource.ID = ulid.Make().String()
	}
	applyDefaults(resource)

	now := time.Now()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	key := core.ResourceKey{Kind: resource.Kind, ID: resource.ID}
	copied := *resource
	s.resources[key] = &copied

	logrus.WithField("resource", key.String()).Info("Resource created successfully")
	return resource.ID, nil
}

func (s *memStore) Update(ctx context.Context, key core.ResourceKey, update core.ResourceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resource, ok := s.resources[key]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if update.Title != nil {
		resource.Title = *update.Title
	}
	if update.Content != nil {
		resource.Content = *update.Content
	}
	if update.Data != nil {
		resource.Data = update.Data
	}
	resource.LastEditedBy = update.EditedBy
	resource.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) Delete(ctx context.Context, key core.ResourceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[key]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	delete(s.resources, key)
	delete(s.permissions, key)
	logrus.WithField("resource", key.String()).Info("Resource deleted successfully")
	return nil
}

func (s *memStore) SetPermission(ctx context.Context, key core.ResourceKey, subject string, role core.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[key]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	grants, ok := s.permissions[key]
	if !ok {
		grants = make(map[string]core.Role)
		s.permissions[key] = grants
	}
	grants[subject] = role
	return nil
}

func (s *memStore) RoleFor(ctx context.Context, key core.ResourceKey, subject string) (core.Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resource, ok := s.resources[key]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if resource.OwnerID == subject {
		return core.RoleOwner, true, nil
	}
	if role, ok := s.permissions[key][subject]; ok {
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
