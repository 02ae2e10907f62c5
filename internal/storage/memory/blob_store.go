// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/campus-rag-chatbot/internal/storage"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu           sync.RWMutex
	data         map[string][]byte
	contentTypes map[string]string
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:         make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, objectPath string, contentType string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectPath] = byteData
	s.contentTypes[objectPath] = contentType
	return fmt.Sprintf("memory://%s", objectPath), nil
}

// GetObject returns a copy of the stored bytes.
func (s *BlobStore) GetObject(_ context.Context, objectPath string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectPath]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", objectPath, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns object paths whose parent is prefix.
func (s *BlobStore) List(_ context.Context, prefix string) ([]string, error) {
	prefix = strings.Trim(prefix, "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.data {
		dir := path.Dir(name)
		if dir == "." {
			dir = ""
		}
		if dir == prefix {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ContentType returns the content type recorded for objectPath.
func (s *BlobStore) ContentType(objectPath string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contentTypes[objectPath]
}
