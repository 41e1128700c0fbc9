// Package chunk provides storage for recorded session event chunks and the
// per-session combined replay artifact. It defines the Store interface over a
// key-value blob backend and the key layout shared by all implementations.
package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dphuang2/browser-record-app/pkg/recording"
)

// CombinedName is the object name of the merged session artifact inside a
// session folder.
const CombinedName = "combined"

// Chunk is one uploaded batch of recorded events for a session.
type Chunk struct {
	Shop      string            `json:"shop"`
	SessionID string            `json:"id"`
	// Timestamp is the ms epoch of the first event in the chunk. Chunks are
	// merged in ascending Timestamp order.
	Timestamp int64             `json:"timestamp"`
	Events    []recording.Event `json:"events"`
}

// ObjectInfo describes a stored object under a session prefix.
type ObjectInfo struct {
	Key  string
	Size int64
}

// IsArtifact reports whether the object is a combined session artifact
// rather than a chunk.
func (o ObjectInfo) IsArtifact() bool {
	return strings.HasSuffix(o.Key, CombinedName)
}

// Store is the blob-backend interface for chunks and artifacts.
type Store interface {
	// PutChunk writes a chunk under its deterministic key. Writing the same
	// key twice is a silent overwrite of identical content, never corruption.
	PutChunk(ctx context.Context, c *Chunk) error

	// List returns every object under the session's folder, including a
	// previously written artifact. Callers filter the artifact out by name.
	List(ctx context.Context, shop, sessionID string) ([]ObjectInfo, error)

	// GetChunk fetches and parses one chunk. A missing or malformed object
	// yields a ReadError.
	GetChunk(ctx context.Context, key string) (*Chunk, error)

	// Delete removes a batch of objects. Empty input is a no-op. Deletion is
	// best-effort; callers treat failures as non-fatal.
	Delete(ctx context.Context, keys []string) error

	// PutArtifact overwrites the combined artifact for a session with the
	// given encoded body.
	PutArtifact(ctx context.Context, shop, sessionID string, body []byte) error

	// SignedURL returns a time-limited retrieval URL for a stored object.
	// A missing key yields a SignError.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// SessionPrefix returns the folder key for a session.
func SessionPrefix(shop, sessionID string) string {
	return shop + "/" + sessionID
}

// Key returns the storage key for a chunk. Event count is part of the key so
// that two chunks uploaded with the same timestamp cannot collide.
func (c *Chunk) Key() string {
	return ChunkKey(c.Shop, c.SessionID, c.Timestamp, len(c.Events))
}

// ChunkKey builds a chunk object key.
func ChunkKey(shop, sessionID string, timestamp int64, eventCount int) string {
	return fmt.Sprintf("%s/chunk/%d-%d.json", SessionPrefix(shop, sessionID), timestamp, eventCount)
}

// ArtifactKey builds the combined artifact key for a session.
func ArtifactKey(shop, sessionID string) string {
	return SessionPrefix(shop, sessionID) + "/" + CombinedName
}
