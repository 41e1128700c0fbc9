package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map. It backs unit tests
// and local development where no S3 bucket is available.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// BaseURL is prepended to keys by SignedURL. Defaults to "memory://".
	BaseURL string
}

// NewMemoryStore creates a new in-memory chunk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		BaseURL: "memory://",
	}
}

// PutChunk writes a chunk under its deterministic key.
func (s *MemoryStore) PutChunk(_ context.Context, c *Chunk) error {
	body, err := json.Marshal(c)
	if err != nil {
		return &WriteError{Key: c.Key(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[c.Key()] = body
	return nil
}

// List returns every object under the session's folder in key order.
func (s *MemoryStore) List(_ context.Context, shop, sessionID string) ([]ObjectInfo, error) {
	prefix := SessionPrefix(shop, sessionID) + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []ObjectInfo
	for key, body := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{Key: key, Size: int64(len(body))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// GetChunk fetches and parses one chunk.
func (s *MemoryStore) GetChunk(_ context.Context, key string) (*Chunk, error) {
	s.mu.RLock()
	body, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, &ReadError{Key: key, Err: ErrNotFound}
	}

	var c Chunk
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, &ReadError{Key: key, Err: err}
	}
	return &c, nil
}

// Delete removes a batch of objects. Missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// PutArtifact overwrites the combined artifact for a session.
func (s *MemoryStore) PutArtifact(_ context.Context, shop, sessionID string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ArtifactKey(shop, sessionID)] = body
	return nil
}

// SignedURL returns a fake time-limited URL for a stored object.
func (s *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return "", &SignError{Key: key, Err: ErrNotFound}
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s%s?expires=%d", s.BaseURL, key, expires), nil
}

// Object returns the raw stored body for a key. Test helper.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[key]
	return body, ok
}

// Len returns the number of stored objects. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
