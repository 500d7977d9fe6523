package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"legalmitra/internal/util"
	"legalmitra/pkg/domain"
	"legalmitra/pkg/storage"
)

const (
	keyPrefix      = "notebooks"
	cleanupTimeout = 30 * time.Second
	maxExtLength   = 10
)

// File is one uploaded file waiting to be relayed to object storage.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadError reports the file whose upload failed.
type UploadError struct {
	FileName string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.FileName, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Relay pushes uploaded files to object storage.
type Relay struct {
	store       storage.ObjectStore
	concurrency int
}

// New builds a relay. concurrency <= 0 uploads all files at once.
func New(store storage.ObjectStore, concurrency int) *Relay {
	return &Relay{store: store, concurrency: concurrency}
}

// Upload stores every file under notebooks/{userID}/ and returns attachment
// records in input order. It is all-or-nothing: when any upload fails the
// others are cancelled, objects already written are deleted and an
// *UploadError is returned.
func (r *Relay) Upload(ctx context.Context, userID string, files []File) ([]domain.FileAttachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	out := make([]domain.FileAttachment, len(files))
	var (
		mu      sync.Mutex
		written []string
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, f := range files {
		g.Go(func() error {
			key := ObjectKey(userID, f.Name)
			if err := r.put(gctx, key, f); err != nil {
				return &UploadError{FileName: f.Name, Err: err}
			}
			mu.Lock()
			written = append(written, key)
			mu.Unlock()

			url, err := r.store.URL(gctx, key)
			if err != nil {
				return &UploadError{FileName: f.Name, Err: err}
			}
			out[i] = domain.FileAttachment{
				FileName:  f.Name,
				FileType:  f.ContentType,
				FileURL:   url,
				StorageID: key,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.deleteKeys(ctx, written)
		return nil, err
	}
	return out, nil
}

// Discard deletes the objects behind attachments returned by Upload. It is
// used when a later step of the request fails. Failures are logged only.
func (r *Relay) Discard(ctx context.Context, attachments []domain.FileAttachment) {
	keys := make([]string, 0, len(attachments))
	for _, a := range attachments {
		if a.StorageID != "" {
			keys = append(keys, a.StorageID)
		}
	}
	r.deleteKeys(ctx, keys)
}

func (r *Relay) put(ctx context.Context, key string, f File) error {
	if f.Open == nil {
		return errors.New("file has no content")
	}
	body, err := f.Open()
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer body.Close()
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return r.store.Put(ctx, key, body, f.Size, contentType)
}

func (r *Relay) deleteKeys(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	logger := util.LoggerFromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil {
			logger.Warn("upload cleanup failed", "key", key, "err", err)
			continue
		}
		logger.Warn("upload rolled back", "key", key)
	}
}

// ObjectKey builds notebooks/{userID}/{uuid}{ext}. The client file name is
// kept only as a short lower-case extension.
func ObjectKey(userID, fileName string) string {
	owner := strings.Trim(strings.ReplaceAll(userID, "/", "_"), ". ")
	if owner == "" {
		owner = "anonymous"
	}
	return path.Join(keyPrefix, owner, uuid.NewString()+safeExt(fileName))
}

func safeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
