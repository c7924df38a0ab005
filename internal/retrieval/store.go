package retrieval

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"go.uber.org/zap"
)

// NoDocumentSentinel is returned by Query when the session has no ingested
// resume.
const NoDocumentSentinel = "No resume uploaded."

// chunkDoc is the shape indexed into bleve for each resume chunk.
type chunkDoc struct {
	Text string `json:"text"`
}

// sessionIndex pairs a mem-only bleve index with the chunk texts it covers.
// Chunk texts are kept alongside because the index stores no fields. The
// mutex serializes searches against teardown so a replaced index can be
// closed without failing an in-flight query.
type sessionIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	chunks []string
	closed bool
}

// Store keeps one in-memory full-text index per interview session, so
// concurrent candidates never observe each other's resume. Ingest atomically
// replaces a session's index: a query sees either the old document or the new
// one, never a mix.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionIndex
	logger   *zap.Logger
}

// NewStore creates an empty session-keyed retrieval store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*sessionIndex),
		logger:   logger,
	}
}

// Ingest chunks the document text, builds a fresh index and swaps it in for
// the session. Any previously ingested document for the session is fully
// replaced.
func (s *Store) Ingest(sessionID, text string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	chunks := splitText(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("document contains no indexable text")
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	for i, chunk := range chunks {
		if err := index.Index(chunkID(i), chunkDoc{Text: chunk}); err != nil {
			return fmt.Errorf("index chunk %d: %w", i, err)
		}
	}

	next := &sessionIndex{index: index, chunks: chunks}

	s.mu.Lock()
	prev := s.sessions[sessionID]
	s.sessions[sessionID] = next
	s.mu.Unlock()

	// In-flight queries against the old index finish under its read lock
	// before teardown; they see the old document in full, never a mix.
	teardown(prev)

	s.logger.Info("resume ingested",
		zap.String("session_id", sessionID),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}

// Query returns the top-k chunks matching the text, joined by newlines. When
// fewer than k chunks match, the leading document chunks pad the context so
// the interviewer always has resume material to work with. Without an
// ingested document the sentinel is returned.
func (s *Store) Query(sessionID, text string, k int) (string, error) {
	sess := s.acquire(sessionID)
	if sess == nil {
		return NoDocumentSentinel, nil
	}
	defer sess.mu.RUnlock()

	if k <= 0 {
		k = 3
	}

	matched := make(map[int]bool, k)
	selected := make([]int, 0, k)

	if strings.TrimSpace(text) != "" {
		query := bleve.NewMatchQuery(text)
		req := bleve.NewSearchRequestOptions(query, k, 0, false)

		result, err := sess.index.Search(req)
		if err != nil {
			return "", fmt.Errorf("search session index: %w", err)
		}

		for _, hit := range result.Hits {
			idx, ok := parseChunkID(hit.ID)
			if !ok || idx >= len(sess.chunks) {
				continue
			}
			if !matched[idx] {
				matched[idx] = true
				selected = append(selected, idx)
			}
		}
	}

	for idx := 0; len(selected) < k && idx < len(sess.chunks); idx++ {
		if !matched[idx] {
			matched[idx] = true
			selected = append(selected, idx)
		}
	}

	parts := make([]string, 0, len(selected))
	for _, idx := range selected {
		parts = append(parts, sess.chunks[idx])
	}

	return strings.Join(parts, "\n"), nil
}

// Has reports whether the session has an ingested document.
func (s *Store) Has(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID] != nil
}

// Drop removes the session's index, typically on session reset.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	teardown(sess)
}

// acquire returns the session's current index with its read lock held, or nil
// when no document is ingested. A query that loses the race with a
// re-ingestion retries against the replacement.
func (s *Store) acquire(sessionID string) *sessionIndex {
	for {
		s.mu.RLock()
		sess := s.sessions[sessionID]
		s.mu.RUnlock()

		if sess == nil {
			return nil
		}

		sess.mu.RLock()
		if !sess.closed {
			return sess
		}
		sess.mu.RUnlock()
	}
}

func teardown(sess *sessionIndex) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.closed {
		sess.closed = true
		_ = sess.index.Close()
	}
}

func chunkID(i int) string {
	return fmt.Sprintf("chunk-%06d", i)
}

func parseChunkID(id string) (int, bool) {
	var idx int
	if _, err := fmt.Sscanf(id, "chunk-%06d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}
