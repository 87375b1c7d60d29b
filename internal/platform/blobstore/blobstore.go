// Package blobstore stores binary objects such as profile pictures. It
// defines the Store interface with an in-memory implementation for tests and
// development and an S3 implementation for deployments.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound           = errors.New("blob not found")
	ErrTooLarge           = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingKey         = errors.New("blob key is required")
)

// MaxImageSize caps profile pictures at 5 MB.
const MaxImageSize = 5 * 1024 * 1024

// ImageContentTypes maps the accepted image types to their file extension.
var ImageContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the contract for blob backends.
type Store interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// readLimited buffers content, rejecting anything over max bytes.
func readLimited(content io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, max+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ValidateImage checks contentType against ImageContentTypes and returns the
// matching extension.
func ValidateImage(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := ImageContentTypes[ct]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}
	return ext, nil
}

type storedBlob struct {
	object  Object
	content []byte
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	max   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob), max: MaxImageSize}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, content io.Reader) (*Object, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	data, err := readLimited(content, s.max)
	if err != nil {
		return nil, err
	}

	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        checksum(data),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrNotFound
	}
	obj := blob.object
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
