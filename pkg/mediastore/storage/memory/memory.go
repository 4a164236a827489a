package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-media/pkg/mediastore"
)

// Backend is an in-memory implementation of the mediastore.BlobStore interface
type Backend struct {
	mu           sync.RWMutex
	objects      map[string][]byte
	contentTypes map[string]string
	puts         int
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// Put stores a copy of data under key
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = buf
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.contentTypes[key] = contentType
	b.puts++
	return nil
}

// Get returns a reader over the stored bytes
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, mediastore.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob; missing keys are ignored
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	delete(b.contentTypes, key)
	return nil
}

// Len returns the number of stored blobs
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Puts returns how many Put calls succeeded
func (b *Backend) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}

// Keys returns the stored keys in no particular order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}

// ContentType returns the content type recorded for key
func (b *Backend) ContentType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ct, ok := b.contentTypes[key]
	return ct, ok
}
