package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/triage"
)

// ManagerConfig holds the dependencies shared by every session.
type ManagerConfig struct {
	// DefaultLanguage applies when Options.Language is empty.
	DefaultLanguage string

	// QueueSize bounds each session's ingest queue. Zero means
	// transcript.DefaultQueueSize.
	QueueSize int

	// Corrector rewrites final token text before acceptance. May be nil.
	Corrector transcript.Corrector

	// Publisher receives accepted final tokens. May be nil.
	Publisher TranscriptPublisher

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Manager creates and tracks sessions. All methods are safe for concurrent
// use.
type Manager struct {
	cfg ManagerConfig

	mu        sync.RWMutex
	sessions  map[string]*Session
	corrector transcript.Corrector
}

// NewManager returns an empty Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = triage.DefaultLanguage
	}
	return &Manager{
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		corrector: cfg.Corrector,
	}
}

// Create starts a new session with its own aggregator and ingest actor.
func (m *Manager) Create(ctx context.Context, opts Options) (*Session, error) {
	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = m.cfg.DefaultLanguage
	}

	agg := transcript.NewAggregator()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		id:        uuid.NewString(),
		studentID: opts.StudentID,
		createdAt: time.Now().UTC(),
		agg:       agg,
		cancel:    cancel,
		done:      make(chan struct{}),
		videoID:   opts.VideoID,
		language:  triage.NormalizeLanguage(lang),
		board:     opts.Board,
	}

	ingestOpts := []transcript.IngestOption{
		transcript.WithQueueSize(m.cfg.QueueSize),
		transcript.WithMetrics(m.cfg.Metrics),
		transcript.WithTag(s.videoID),
	}
	m.mu.RLock()
	if m.corrector != nil {
		ingestOpts = append(ingestOpts, transcript.WithCorrector(m.corrector))
	}
	m.mu.RUnlock()
	if m.cfg.Publisher != nil {
		ingestOpts = append(ingestOpts, transcript.WithFinalSink(finalForwarder{sessionID: s.id, pub: m.cfg.Publisher}))
	}
	s.ingest = transcript.NewIngestor(agg, ingestOpts...)

	go func() {
		defer close(s.done)
		s.ingest.Run(runCtx)
	}()

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.cfg.Metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("session created",
		"session_id", s.id,
		"video_id", s.videoID,
		"language", s.language,
		"student_id", s.studentID,
	)
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns all open sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	return out
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes and forgets the session with id, waiting for its queued
// batches to be applied.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	err := s.close(ctx)
	slog.Info("session closed", "session_id", id, "tokens", s.agg.Len())
	return err
}

// CloseAll closes every session. Sessions still draining when ctx expires
// are abandoned.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.List() {
		if err := m.Close(ctx, s.id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("session %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

// ResetVideo switches the session to videoID and clears its transcript and
// board description.
func (m *Manager) ResetVideo(id, videoID string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.resetVideo(videoID); err != nil {
		return err
	}
	slog.Info("session video changed", "session_id", id, "video_id", videoID)
	return nil
}

// SetCorrector swaps the corrector for current and future sessions. nil
// disables correction.
func (m *Manager) SetCorrector(c transcript.Corrector) {
	m.mu.Lock()
	m.corrector = c
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.ingest.SetCorrector(c)
	}
}
