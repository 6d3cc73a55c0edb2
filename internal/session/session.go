// Package session manages lecture sessions: one transcript stream, its
// aggregator and ingest actor, and the board description students ask
// questions against.
//
// Sessions are created and owned by a [Manager]; nothing in the package is
// process-global.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/triage"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session: not found")

	// ErrClosed is returned when operating on a closed session.
	ErrClosed = errors.New("session: closed")
)

// TranscriptPublisher receives every batch of accepted final tokens.
type TranscriptPublisher interface {
	PublishTranscript(ctx context.Context, sessionID, videoID string, tokens []transcript.Token) error
}

// Options configure a new session.
type Options struct {
	VideoID   string `json:"video_id"`
	Language  string `json:"language"`
	StudentID string `json:"student_id"`
	Board     string `json:"board,omitempty"`
}

// Info is a point-in-time description of a session.
type Info struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	Language  string    `json:"language"`
	StudentID string    `json:"student_id,omitempty"`
	Board     string    `json:"board,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Tokens    int       `json:"tokens"`
	Finals    int       `json:"finals"`
	Listening bool      `json:"listening"`
}

// Session is one student watching one lecture video.
type Session struct {
	id        string
	studentID string
	createdAt time.Time

	agg    *transcript.Aggregator
	ingest *transcript.Ingestor
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	videoID  string
	language string
	board    string
	listener *Listener
	closed   bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session has been closed and its queued batches
// applied.
func (s *Session) Done() <-chan struct{} { return s.done }

// Aggregator returns the session's transcript aggregator.
func (s *Session) Aggregator() *transcript.Aggregator { return s.agg }

// VideoID returns the current lecture video.
func (s *Session) VideoID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoID
}

// Language returns the working language of the session.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// Board returns the board/slide description.
func (s *Session) Board() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board
}

// SetBoard replaces the board/slide description.
func (s *Session) SetBoard(description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.board = description
	return nil
}

// Submit queues a recognition batch for the ingest actor.
func (s *Session) Submit(batch []types.RecognitionToken) error {
	if err := s.ingest.Submit(batch); err != nil {
		if errors.Is(err, transcript.ErrIngestorClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Request assembles the triage request for question, grounded on the last
// horizon seconds of the transcript and the board description.
func (s *Session) Request(question string, horizon float64) triage.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return triage.Request{
		Question:      question,
		Window:        transcript.ContextWindow(s.agg.Snapshot(), horizon),
		Supplementary: s.board,
		Language:      s.language,
		StudentID:     s.studentID,
	}
}

// Info describes the session.
func (s *Session) Info() Info {
	snap := s.agg.Snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:        s.id,
		VideoID:   s.videoID,
		Language:  s.language,
		StudentID: s.studentID,
		Board:     s.board,
		CreatedAt: s.createdAt,
		Tokens:    snap.Len(),
		Finals:    snap.Finals,
		Listening: s.listener != nil,
	}
}

// AttachListener sets l as the session's audio listener. Only one listener
// may be attached at a time.
func (s *Session) AttachListener(l *Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.listener != nil {
		return errors.New("session: already listening")
	}
	s.listener = l
	return nil
}

// DetachListener clears l if it is the attached listener.
func (s *Session) DetachListener(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == l {
		s.listener = nil
	}
}

func (s *Session) resetVideo(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.videoID = videoID
	s.board = ""
	s.ingest.Reset(videoID)
	return nil
}

// close stops the listener and the ingest actor and waits for queued batches
// to be applied or ctx to expire.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	l := s.listener
	s.listener = nil
	s.mu.Unlock()

	var errs []error
	if l != nil {
		errs = append(errs, l.Stop())
	}
	s.ingest.Close()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.cancel()
		errs = append(errs, ctx.Err())
	}
	s.cancel()
	return errors.Join(errs...)
}

// finalForwarder adapts a TranscriptPublisher to transcript.FinalSink for
// one session. The ingest tag is the video id the tokens were accepted under.
type finalForwarder struct {
	sessionID string
	pub       TranscriptPublisher
}

func (f finalForwarder) PublishFinals(ctx context.Context, videoID string, tokens []transcript.Token) error {
	return f.pub.PublishTranscript(ctx, f.sessionID, videoID, tokens)
}
