package workspace

import (
	"sort"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/access-assistant/backend/metrics"
)

// DefaultCleanupInterval is how often expired documents are purged
const DefaultCleanupInterval = 5 * time.Minute

// Store keeps documents in memory. Documents idle for longer than the TTL are purged,
// and the oldest are evicted first when the store grows past its size limit.
type Store struct {
	mu              sync.RWMutex
	docs            map[string]*Document
	ttl             time.Duration
	maxSize         int
	cleanupInterval time.Duration
	logger          log.Interface
	now             func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a store and starts its cleanup loop. Close stops it.
func NewStore(ttl time.Duration, maxSize int, logger log.Interface) *Store {
	if logger == nil {
		logger = log.Log
	}
	s := &Store{
		docs:            make(map[string]*Document),
		ttl:             ttl,
		maxSize:         maxSize,
		cleanupInterval: DefaultCleanupInterval,
		logger:          logger,
		now:             time.Now,
		done:            make(chan struct{}),
	}

	go s.periodicCleanup()

	return s
}

// Create stores a new document
func (s *Store) Create(content, baseURL string) *Document {
	doc := NewDocument(content, baseURL)

	s.mu.Lock()
	s.docs[doc.ID] = doc
	n := len(s.docs)
	s.mu.Unlock()

	metrics.DocumentsActive.Set(float64(n))
	s.logger.WithFields(log.Fields{"document": doc.ID, "documents": n}).Debug("document created")

	if s.maxSize > 0 && n > s.maxSize {
		s.cleanup()
	}
	return doc
}

// Get returns a live document and marks it as used
func (s *Store) Get(id string) (*Document, bool) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := s.now()
	if s.expired(doc, now) {
		s.Delete(id)
		return nil, false
	}
	doc.touch(now)
	return doc, true
}

// Delete removes a document
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.docs, id)
	n := len(s.docs)
	s.mu.Unlock()
	metrics.DocumentsActive.Set(float64(n))
}

// Len returns the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close stops the cleanup loop
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Store) expired(doc *Document, now time.Time) bool {
	return s.ttl > 0 && now.Sub(doc.lastAccessed()) > s.ttl
}

// periodicCleanup removes expired documents periodically
func (s *Store) periodicCleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// cleanup removes expired documents and enforces the size limit
func (s *Store) cleanup() {
	now := s.now()

	s.mu.Lock()
	before := len(s.docs)
	for id, doc := range s.docs {
		if s.expired(doc, now) {
			delete(s.docs, id)
		}
	}

	// If still over size limit, remove least recently used documents
	if s.maxSize > 0 && len(s.docs) > s.maxSize {
		entries := make([]struct {
			id       string
			accessed time.Time
		}, 0, len(s.docs))

		for id, doc := range s.docs {
			entries = append(entries, struct {
				id       string
				accessed time.Time
			}{id, doc.lastAccessed()})
		}

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].accessed.Before(entries[j].accessed)
		})

		for i := 0; i < len(entries)-s.maxSize; i++ {
			delete(s.docs, entries[i].id)
		}
	}
	after := len(s.docs)
	s.mu.Unlock()

	metrics.DocumentsActive.Set(float64(after))
	if removed := before - after; removed > 0 {
		s.logger.WithFields(log.Fields{"removed": removed, "documents": after}).Info("documents purged")
	}
}
