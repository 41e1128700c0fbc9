package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dphuang2/browser-record-app/pkg/chunk"
	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/filter"
	"github.com/dphuang2/browser-record-app/pkg/recording"
)

// DefaultURLTTL bounds how long a signed replay URL stays valid.
const DefaultURLTTL = 10 * time.Minute

// Aggregator merges a session's chunks into its combined artifact.
type Aggregator struct {
	chunks    chunk.Store
	customers customer.Store
	urlTTL    time.Duration
	logger    *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithURLTTL overrides the signed URL lifetime.
func WithURLTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.urlTTL = ttl }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = logger }
}

// NewAggregator creates an Aggregator over the given stores.
func NewAggregator(chunks chunk.Store, customers customer.Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		chunks:    chunks,
		customers: customers,
		urlTTL:    DefaultURLTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate produces a signed URL for the session's combined artifact,
// rebuilding it from chunks when the metadata is stale. An empty URL with a
// nil error means no replay is available for this session: zero chunks, a
// chunk read failure, or a post-materialization filter miss. Storage write
// failures are returned as errors.
func (a *Aggregator) Aggregate(ctx context.Context, c *customer.Customer, spec *filter.Spec) (string, error) {
	artifactKey := chunk.ArtifactKey(c.Shop, c.SessionID)

	// Fast path: the artifact already reflects every uploaded chunk, and the
	// metadata query has already applied the filters.
	if !c.Stale {
		url, err := a.chunks.SignedURL(ctx, artifactKey, a.urlTTL)
		if err != nil {
			return "", fmt.Errorf("signing artifact url: %w", err)
		}
		return url, nil
	}

	objects, err := a.chunks.List(ctx, c.Shop, c.SessionID)
	if err != nil {
		return "", fmt.Errorf("listing session chunks: %w", err)
	}
	var keys []string
	for _, o := range objects {
		if o.IsArtifact() {
			continue
		}
		keys = append(keys, o.Key)
	}
	if len(keys) == 0 {
		return "", nil
	}

	parsed, ok := a.fetchChunks(ctx, c, keys)
	if !ok {
		return "", nil
	}

	// Chunks carry whole, already-ordered event batches. Sorting by chunk
	// timestamp keeps overall event chronology regardless of fetch order.
	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].Timestamp < parsed[j].Timestamp
	})
	var events []recording.Event
	for _, ch := range parsed {
		events = append(events, ch.Events...)
	}

	merged := merge(c, events)
	body, err := Encode(merged)
	if err != nil {
		return "", err
	}

	if err := a.writeBack(ctx, merged, body, keys); err != nil {
		return "", err
	}

	if spec != nil && !spec.Match(merged.subject()) {
		return "", nil
	}

	url, err := a.chunks.SignedURL(ctx, artifactKey, a.urlTTL)
	if err != nil {
		return "", fmt.Errorf("signing artifact url: %w", err)
	}
	return url, nil
}

// fetchChunks reads and parses every chunk concurrently. Any single failure
// fails the whole set: partial data must never be served as a replay.
func (a *Aggregator) fetchChunks(ctx context.Context, c *customer.Customer, keys []string) ([]*chunk.Chunk, bool) {
	parsed := make([]*chunk.Chunk, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parsed[i], errs[i] = a.chunks.GetChunk(ctx, key)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			a.logger.Warn("chunk fetch failed, skipping session",
				"shop", c.Shop, "session", c.SessionID, "key", keys[i], "error", err)
			return nil, false
		}
	}
	return parsed, true
}

// writeBack persists the artifact, refreshes the metadata record, and deletes
// the consumed chunks, all concurrently. Chunk deletion is best-effort: the
// artifact is rederivable from chunks, so leftovers cost a redundant merge,
// not correctness.
func (a *Aggregator) writeBack(ctx context.Context, m *MergedSession, body []byte, keys []string) error {
	var wg sync.WaitGroup
	var artifactErr, metaErr error

	wg.Add(3)
	go func() {
		defer wg.Done()
		artifactErr = a.chunks.PutArtifact(ctx, m.Shop, m.SessionID, body)
	}()
	go func() {
		defer wg.Done()
		metaErr = a.customers.MarkFresh(ctx, m.Shop, m.SessionID, m.derived())
	}()
	go func() {
		defer wg.Done()
		if err := a.chunks.Delete(ctx, keys); err != nil {
			a.logger.Warn("chunk cleanup failed",
				"shop", m.Shop, "session", m.SessionID, "error", err)
		}
	}()
	wg.Wait()

	if artifactErr != nil {
		return fmt.Errorf("writing artifact: %w", artifactErr)
	}
	if metaErr != nil {
		return fmt.Errorf("refreshing session metadata: %w", metaErr)
	}
	return nil
}
