package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"

	"docshub/core"
)

// record is the object layout: resource plus its permission grants,
// stored under kind/id.
type record struct {
	Resource    core.Resource        `json:"resource"`
	Permissions map[string]core.Role `json:"permissions"`
}

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	s3Client := s3.NewFromConfig(cfg)

	return &s3Store{
		s3Client: s3Client,
		bucket:   bucketName,
	}
}

// objectKey sanitizes the resource ID to prevent path traversal; an ID
// must be a simple name, not a path.
func objectKey(key core.ResourceKey) (string, error) {
	if path.Base(key.ID) != key.ID || key.ID == "" || key.ID == "." || key.ID == ".." {
		return "", fmt.Errorf("invalid resource id %q", key.ID)
	}
	return path.Join(string(key.Kind), key.ID), nil
}

func (s *s3Store) read(ctx context.Context, key core.ResourceKey) (*record, error) {
	objKey, err := objectKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get resource %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource data: %v", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource data: %v", err)
	}
	if rec.Permissions == nil {
		rec.Permissions = make(map[string]core.Role)
	}
	return &rec, nil
}

func (s *s3Store) write(ctx context.Context, key core.ResourceKey, rec *record) error {
	objKey, err := objectKey(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %v", err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to save resource %s: %v", key, err)
	}
	return nil
}

func (s *s3Store) Find(ctx context.Context, key core.ResourceKey) (*core.Resource, error) {
	rec, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	resource := rec.Resource
	return &resource, nil
}

func (s *s3Store) Create(ctx context.Context, resource *core.Resource) (string, error) {
	if resource.ID == "" {
		resource.ID = ulid.Make().String()
	}
	applyDefaults(resource)
	now := time.Now()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	key := core.ResourceKey{Kind: resource.Kind, ID: resource.ID}
	rec := &record{Resource: *resource, Permissions: make(map[string]core.Role)}
	if err := s.write(ctx, key, rec); err != nil {
		return "", err
	}
	return resource.ID, nil
}

func (s *s3Store) Update(ctx context.Context, key core.ResourceKey, update core.ResourceUpdate) error {
	rec, err := s.read(ctx, key)
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
	return s.write(ctx, key, rec)
}

func (s *s3Store) Delete(ctx context.Context, key core.ResourceKey) error {
	objKey, err := objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete resource %s: %v", key, err)
	}
	return nil
}

func (s *s3Store) SetPermission(ctx context.Context, key core.ResourceKey, subject string, role core.Role) error {
	rec, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	rec.Permissions[subject] = role
	return s.write(ctx, key, rec)
}

func (s *s3Store) RoleFor(ctx context.Context, key core.ResourceKey, subject string) (core.Role, bool, error) {
	rec, err := s.read(ctx, key)
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
