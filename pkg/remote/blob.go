package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"krishismart/models"
)

// LocalBlobStore keeps objects under base/<bucket>/<path> and records each one
// as a models.StoredObject row. Files are expected to be served from publicBase.
type LocalBlobStore struct {
	db         *gorm.DB
	base       string
	publicBase string
}

func NewLocalBlobStore(db *gorm.DB, base, publicBase string) *LocalBlobStore {
	return &LocalBlobStore{db: db, base: base, publicBase: strings.TrimRight(publicBase, "/")}
}

// Base returns the directory objects are written under.
func (s *LocalBlobStore) Base() string { return s.base }

func cleanObjectPath(bucket, p string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrInvalidPath
	}
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", ErrInvalidPath
	}
	cp := path.Clean(p)
	if cp == "." || cp == ".." || strings.HasPrefix(cp, "../") {
		return "", ErrInvalidPath
	}
	return cp, nil
}

func (s *LocalBlobStore) Upload(ctx context.Context, bucket, p string, r io.Reader, contentType, ownerID string) (*models.StoredObject, error) {
	cp, err := cleanObjectPath(bucket, p)
	if err != nil {
		return nil, err
	}
	var n int64
	err = s.db.WithContext(ctx).Model(&models.StoredObject{}).
		Where("bucket = ? AND path = ?", bucket, cp).Count(&n).Error
	if err != nil {
		return nil, fmt.Errorf("upload %s/%s: %w", bucket, cp, err)
	}
	if n > 0 {
		return nil, ErrObjectExists
	}

	full := filepath.Join(s.base, bucket, filepath.FromSlash(cp))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("upload %s/%s: mkdir: %w", bucket, cp, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("upload %s/%s: %w", bucket, cp, err)
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("upload %s/%s: write: %w", bucket, cp, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("upload %s/%s: %w", bucket, cp, err)
	}

	obj := &models.StoredObject{Bucket: bucket, Path: cp, OwnerID: ownerID, ContentType: contentType, Size: size}
	if err := s.db.WithContext(ctx).Create(obj).Error; err != nil {
		_ = os.Remove(full)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrObjectExists
		}
		return nil, fmt.Errorf("upload %s/%s: record: %w", bucket, cp, err)
	}
	return obj, nil
}

func (s *LocalBlobStore) PublicURL(bucket, p string) string {
	return s.publicBase + "/" + bucket + "/" + strings.TrimLeft(path.Clean("/"+p), "/")
}
