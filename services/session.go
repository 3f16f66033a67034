package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"docrag-platform/models"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the conversation history contract. Implementations must
// make Append atomic with respect to the history cap and must treat expired
// sessions as absent.
type SessionStore interface {
	Create(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Append(ctx context.Context, id string, msg models.Message) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions in process memory. The expiry sweep runs
// on a gocron interval; expired ids are collected under a read lock first,
// then deleted with a recheck, so the scan never blocks writers for its full
// duration.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	ttl        time.Duration
	historyCap int
	scheduler  *gocron.Scheduler
}

func NewMemorySessionStore(ttl, sweepInterval time.Duration, historyCap int) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions:   make(map[string]*models.Session),
		ttl:        ttl,
		historyCap: historyCap,
		scheduler:  gocron.NewScheduler(time.UTC),
	}
	if _, err := s.scheduler.Every(sweepInterval).Do(s.sweep); err != nil {
		slog.Error("Failed to schedule session sweep", "error", err)
	}
	return s
}

// Start launches the background expiry sweep.
func (s *MemorySessionStore) Start() {
	s.scheduler.StartAsync()
}

// Stop halts the expiry sweep. Sessions remain readable until expiry.
func (s *MemorySessionStore) Stop() {
	s.scheduler.Stop()
}

func (s *MemorySessionStore) Create(_ context.Context) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
		Messages:       []models.Message{},
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return snapshot(session), nil
}

// Get returns a copy of the session. An expired session that the sweep has
// not yet collected is reported as absent.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	var out *models.Session
	if ok {
		out = snapshot(session)
	}
	s.mu.RUnlock()

	if !ok || time.Since(out.LastActivityAt) > s.ttl {
		return nil, ErrSessionNotFound
	}
	return out, nil
}

// Append adds a message, bumps last activity, and enforces the history cap by
// dropping the oldest messages, all under one lock acquisition.
func (s *MemorySessionStore) Append(_ context.Context, id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || time.Since(session.LastActivityAt) > s.ttl {
		return ErrSessionNotFound
	}

	session.Messages = append(session.Messages, msg)
	if overflow := len(session.Messages) - s.historyCap; overflow > 0 {
		session.Messages = session.Messages[overflow:]
	}
	session.LastActivityAt = time.Now()
	return nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Count returns the number of live sessions.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweep collects expired session ids under a read lock, then deletes them
// under the write lock with a recheck in case activity arrived in between.
func (s *MemorySessionStore) sweep() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.RLock()
	var expired []string
	for id, session := range s.sessions {
		if session.LastActivityAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	removed := 0
	s.mu.Lock()
	for _, id := range expired {
		if session, ok := s.sessions[id]; ok && session.LastActivityAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	slog.Info("Session sweep completed", "removed", removed)
}

func snapshot(session *models.Session) *models.Session {
	out := *session
	out.Messages = make([]models.Message, len(session.Messages))
	copy(out.Messages, session.Messages)
	return &out
}
