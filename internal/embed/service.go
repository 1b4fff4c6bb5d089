package embed

import (
	"context"
	"fmt"
	"sync"
)

// batch is one unit of work for the inference worker.
type batch struct {
	keys  []uint64
	texts []string
}

// Service fronts the cache with batched inference. Misses buffer until
// the batch size is reached, then ship to a single background worker over
// a bounded queue; Flush drains the remainder and waits. After a clean
// Flush every registered text is a cache hit, so lookups (and therefore
// disambiguation) are deterministic and need no model.
type Service struct {
	cache     *Cache
	embedder  Embedder
	batchSize int

	pendKeys  []uint64
	pendTexts []string
	enqueued  map[uint64]bool

	queue   chan batch
	done    chan struct{}
	flushed bool
	mu      sync.Mutex
	workErr error

	hits, misses int
}

// NewService wires the cache and provider and starts the batch worker.
// The queue is bounded: producers block once a batch is in flight and
// another is waiting, which keeps memory flat on huge inputs.
func NewService(ctx context.Context, cache *Cache, embedder Embedder, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s := &Service{
		cache:     cache,
		embedder:  embedder,
		batchSize: batchSize,
		enqueued:  make(map[uint64]bool),
		queue:     make(chan batch, 1),
		done:      make(chan struct{}),
	}
	go s.worker(ctx)
	return s
}

func (s *Service) worker(ctx context.Context) {
	defer close(s.done)
	for b := range s.queue {
		if s.err() != nil {
			continue // drain; first error wins
		}
		vecs, err := s.embedder.Embed(ctx, b.texts)
		if err != nil {
			s.setErr(fmt.Errorf("%w: %v", ErrEmbedFailed, err))
			continue
		}
		if len(vecs) != len(b.keys) {
			s.setErr(fmt.Errorf("%w: model returned %d vectors for %d texts",
				ErrEmbedFailed, len(vecs), len(b.keys)))
			continue
		}
		if err := s.cache.PutBatch(b.keys, vecs); err != nil {
			s.setErr(err)
		}
	}
}

func (s *Service) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workErr
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workErr == nil {
		s.workErr = err
	}
}

// Need registers a canonical text for the upcoming resolution phase.
// Cache hits and duplicates are dropped immediately; misses buffer and
// dispatch when the batch fills. Empty texts embed to nothing and are
// ignored.
func (s *Service) Need(text string) error {
	if text == "" {
		return nil
	}
	key := TextKey(text)
	if s.enqueued[key] {
		return nil
	}
	hit, err := s.cache.Has(key)
	if err != nil {
		return err
	}
	s.enqueued[key] = true
	if hit {
		s.hits++
		return nil
	}
	s.misses++
	s.pendKeys = append(s.pendKeys, key)
	s.pendTexts = append(s.pendTexts, text)
	if len(s.pendKeys) >= s.batchSize {
		s.dispatch()
	}
	return s.err()
}

func (s *Service) dispatch() {
	if len(s.pendKeys) == 0 {
		return
	}
	s.queue <- batch{keys: s.pendKeys, texts: s.pendTexts}
	s.pendKeys = nil
	s.pendTexts = nil
}

// Flush dispatches the trailing partial batch, waits for the worker, and
// reports the first inference error. The service accepts no further Need
// calls afterwards; repeated flushes are no-ops.
func (s *Service) Flush() error {
	if !s.flushed {
		s.flushed = true
		s.dispatch()
		close(s.queue)
		<-s.done
	}
	return s.err()
}

// Vector returns the cached vector for a canonical text. Only meaningful
// after Flush (or for texts known to be cached).
func (s *Service) Vector(text string) ([]float32, bool, error) {
	if text == "" {
		return nil, false, nil
	}
	return s.cache.Get(TextKey(text))
}

// Stats reports cache hits and misses seen by Need.
func (s *Service) Stats() (hits, misses int) {
	return s.hits, s.misses
}
