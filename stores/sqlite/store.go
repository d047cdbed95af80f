package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"docshub/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	resourceTableStmt := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		title TEXT,
		content TEXT,
		data BLOB,
		created_at DATETIME,
		updated_at DATETIME,
		last_edited_by TEXT,
		PRIMARY KEY (kind, id)
	);`
	if _, err = db.Exec(resourceTableStmt); err != nil {
		log.Fatalf("failed to create resources table: %v", err)
	}

	permissionTableStmt := `
	CREATE TABLE IF NOT EXISTS permissions (
		kind TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (kind, resource_id, subject)
	);`
	if _, err = db.Exec(permissionTableStmt); err != nil {
		log.Fatalf("failed to create permissions table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) Find(ctx context.Context, key core.ResourceKey) (*core.Resource, error) {
	log := logrus.WithField("resource", key.String())
	log.Debug("Retrieving resource")

	resource := core.Resource{ID: key.ID, Kind: key.Kind}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT owner_id, title, content, data, created_at, updated_at, last_edited_by FROM resources WHERE kind = ? AND id = ?",
		string(key.Kind), key.ID,
	).Scan(&resource.OwnerID, &resource.Title, &resource.Content, &data, &resource.CreatedAt, &resource.UpdatedAt, &resource.LastEditedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Resource with specified ID not found")
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		log.WithError(err).Error("Failed to retrieve resource")
		return nil, err
	}
	resource.Data = data
	return &resource, nil
}

func (s *sqliteStore) Create(ctx context.Context, resource *core.Resource) (string, error) {
	if resource.ID == "" {
		resource.ID = ulid.Make().String()
	}
	applyDefaults(resource)
	now := time.Now()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{
		"resource": core.ResourceKey{Kind: resource.Kind, ID: resource.ID}.String(),
		"owner":    resource.OwnerID,
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO resources (id, kind, owner_id, title, content, data, created_at, updated_at, last_edited_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		resource.ID, string(resource.Kind), resource.OwnerID, resource.Title, resource.Content, []byte(resource.Data), now, now, resource.LastEditedBy,
	)
	if err != nil {
		log.WithError(err).Error("Failed to create resource")
		return "", err
	}
	log.Info("Resource created successfully")
	return resource.ID, nil
}

func (s *sqliteStore) Update(ctx context.Context, key core.ResourceKey, update core.ResourceUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Rollback on any error

	var (
		title   string
		content string
		data    []byte
	)
	err = tx.QueryRowContext(ctx,
		"SELECT title, content, data FROM resources WHERE kind = ? AND id = ?",
		string(key.Kind), key.ID,
	).Scan(&title, &content, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return err
	}

	if update.Title != nil {
		title = *update.Title
	}
	if update.Content != nil {
		content = *update.Content
	}
	if update.Data != nil {
		data = update.Data
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE resources SET title = ?, content = ?, data = ?, updated_at = ?, last_edited_by = ? WHERE kind = ? AND id = ?",
		title, content, data, time.Now(), update.EditedBy, string(key.Kind), key.ID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, key core.ResourceKey) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM permissions WHERE kind = ? AND resource_id = ?", string(key.Kind), key.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM resources WHERE kind = ? AND id = ?", string(key.Kind), key.ID)
	return err
}

func (s *sqliteStore) SetPermission(ctx context.Context, key core.ResourceKey, subject string, role core.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO permissions (kind, resource_id, subject, role, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kind, resource_id, subject) DO UPDATE SET role = excluded.role`,
		string(key.Kind), key.ID, subject, string(role), time.Now(),
	)
	return err
}

func (s *sqliteStore) RoleFor(ctx context.Context, key core.ResourceKey, subject string) (core.Role, bool, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		"SELECT owner_id FROM resources WHERE kind = ? AND id = ?",
		string(key.Kind), key.ID,
	).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return "", false, err
	}
	if ownerID == subject {
		return core.RoleOwner, true, nil
	}

	var role string
	err = s.db.QueryRowContext(ctx,
		"SELECT role FROM permissions WHERE kind = ? AND resource_id = ? AND subject = ?",
		string(key.Kind), key.ID, subject,
	).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return core.Role(role), true, nil
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
