package documents

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

// ErrSessionNotFound is returned for unknown or evicted sessions.
var ErrSessionNotFound = errors.New("documents: session not found")

// Metrics receives session and submit counters.
type Metrics interface {
	SetActiveSessions(n int)
	ObserveSubmission(outcome string)
}

// StoreConfig wires a Store.
type StoreConfig struct {
	Resolver      RateResolver
	Formatter     *Formatter
	Logger        *slog.Logger
	Metrics       Metrics
	IdleTTL       time.Duration
	LookupTimeout time.Duration
	Now           func() time.Time
}

// Store keeps editing sessions in memory and evicts those left idle.
type Store struct {
	cfg    StoreConfig
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewStore creates an empty store. Close cancels every running rate lookup.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &Store{cfg: cfg, base: base, cancel: cancel, sessions: make(map[uuid.UUID]*Session)}
}

// Create registers a session for doc. hydrated marks a document loaded for editing,
// whose stored rate is kept until the currency or date changes.
func (s *Store) Create(doc invoicing.Document, hydrated bool) *Session {
	sess := newSession(doc, hydrated, sessionDeps{
		resolver:  s.cfg.Resolver,
		formatter: s.cfg.Formatter,
		logger:    s.cfg.Logger,
		base:      s.base,
		timeout:   s.cfg.LookupTimeout,
		now:       s.cfg.Now(),
	})
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.report(n)
	return sess
}

// Get returns a live session and marks it used.
func (s *Store) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(s.cfg.Now())
	return sess, nil
}

// Delete discards a session.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.report(n)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle drops sessions unused for longer than the idle TTL.
func (s *Store) EvictIdle() int {
	cutoff := s.cfg.Now().Add(-s.cfg.IdleTTL)
	s.mu.Lock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	if evicted > 0 {
		s.cfg.Logger.Info("evicted idle sessions", slog.Int("count", evicted))
		s.report(n)
	}
	return evicted
}

// Run evicts idle sessions periodically until ctx is cancelled, then closes the store.
func (s *Store) Run(ctx context.Context) {
	interval := s.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

// Close cancels in-flight rate lookups.
func (s *Store) Close() {
	s.cancel()
}

func (s *Store) now() time.Time { return s.cfg.Now() }

func (s *Store) report(n int) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetActiveSessions(n)
	}
}
