// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled recognition batches and inspect
// which audio chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession(4)
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.ResultsCh <- types.RecognitionResult{...}
package mock

import (
	"context"
	"sync"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil, StartStream
	// returns a fresh Session with a buffered results channel.
	Session stt.SessionHandle

	// SessionFunc, if set, takes precedence over Session and is called once per
	// StartStream. Useful for reconnect tests that need a new handle each time.
	SessionFunc func(call int) (stt.SessionHandle, error)

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the configured session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.SessionFunc != nil {
		return p.SessionFunc(len(p.StartStreamCalls))
	}
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(16), nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Tests push batches
// into ResultsCh; Close closes ResultsCh exactly once.
type Session struct {
	mu sync.Mutex

	// ResultsCh is the channel returned by Results().
	ResultsCh chan types.RecognitionResult

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls holds a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
}

// NewSession returns a Session whose results channel has the given buffer.
func NewSession(buf int) *Session {
	return &Session{ResultsCh: make(chan types.RecognitionResult, buf)}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// Results returns ResultsCh.
func (s *Session) Results() <-chan types.RecognitionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResultsCh
}

// End closes the results channel without marking the session closed, which
// looks to consumers like the remote side dropping the connection.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ResultsCh)
	}
}

// Close records the call, closes ResultsCh once and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.ResultsCh)
	}
	return s.CloseErr
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

var _ stt.SessionHandle = (*Session)(nil)
