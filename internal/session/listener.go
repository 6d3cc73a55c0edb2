package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrNotConnected is returned by SendAudio while no recognition stream is
// open, e.g. between reconnection attempts.
var ErrNotConnected = errors.New("session: recognition stream not connected")

// ListenerConfig configures a [Listener].
type ListenerConfig struct {
	// Provider opens recognition streams.
	Provider stt.Provider

	// Stream is passed to every StartStream call.
	Stream stt.StreamConfig

	// Submit receives every recognition batch. Usually Session.Submit.
	Submit func([]types.RecognitionToken) error

	// SessionID is used in log lines.
	SessionID string

	// MaxRetries is the maximum number of reconnection attempts per drop.
	// Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff between retries. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful reconnection. May be nil.
	OnReconnect func(attempt int)
}

// Listener feeds an STT stream into a session and reopens the stream when
// the remote side drops it.
//
// All methods are safe for concurrent use.
type Listener struct {
	cfg ListenerConfig

	mu       sync.Mutex
	handle   stt.SessionHandle
	started  bool
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewListener creates a Listener. Call Start to open the first stream.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Listener{
		cfg:     cfg,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start opens the initial stream and begins forwarding results. The error is
// only about the initial stream; later drops are retried in the background.
func (l *Listener) Start(ctx context.Context) error {
	h, err := l.cfg.Provider.StartStream(ctx, l.cfg.Stream)
	if err != nil {
		return fmt.Errorf("session: listener initial connect: %w", err)
	}
	l.mu.Lock()
	l.handle = h
	l.started = true
	l.mu.Unlock()

	go l.run(ctx, h)
	return nil
}

// SendAudio forwards a PCM chunk to the current stream.
func (l *Listener) SendAudio(chunk []byte) error {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()
	if h == nil {
		return ErrNotConnected
	}
	return h.SendAudio(chunk)
}

// Done is closed once the listener has stopped, either through Stop or after
// reconnection gave up.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Stop closes the current stream and halts reconnection. Safe to call
// multiple times.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() { close(l.stopped) })

	l.mu.Lock()
	h := l.handle
	l.handle = nil
	started := l.started
	l.mu.Unlock()

	var err error
	if h != nil {
		err = h.Close()
	}
	if started {
		<-l.done
	}
	return err
}

func (l *Listener) run(ctx context.Context, h stt.SessionHandle) {
	defer close(l.done)
	for {
		if !l.forward(h) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-l.stopped:
			return
		default:
		}

		slog.Warn("recognition stream dropped", "session_id", l.cfg.SessionID)
		next, ok := l.reconnect(ctx)
		if !ok {
			return
		}
		h = next
	}
}

// forward submits every batch until the results channel closes. It returns
// false when the session no longer accepts batches.
func (l *Listener) forward(h stt.SessionHandle) bool {
	for res := range h.Results() {
		if len(res.Tokens) == 0 {
			continue
		}
		if err := l.cfg.Submit(res.Tokens); err != nil {
			slog.Warn("recognition batch rejected",
				"session_id", l.cfg.SessionID,
				"tokens", len(res.Tokens),
				"error", err,
			)
			if errors.Is(err, ErrClosed) {
				return false
			}
		}
	}
	return true
}

// reconnect reopens the stream with exponential backoff.
func (l *Listener) reconnect(ctx context.Context) (stt.SessionHandle, bool) {
	l.mu.Lock()
	old := l.handle
	l.handle = nil
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	backoff := l.cfg.Backoff
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		slog.Info("attempting stream reconnection",
			"session_id", l.cfg.SessionID,
			"attempt", attempt,
			"max_retries", l.cfg.MaxRetries,
			"backoff", backoff,
		)

		h, err := l.cfg.Provider.StartStream(ctx, l.cfg.Stream)
		if err == nil {
			l.mu.Lock()
			select {
			case <-l.stopped:
				l.mu.Unlock()
				_ = h.Close()
				return nil, false
			default:
			}
			l.handle = h
			l.mu.Unlock()

			slog.Info("stream reconnection successful", "session_id", l.cfg.SessionID, "attempt", attempt)
			if l.cfg.OnReconnect != nil {
				l.cfg.OnReconnect(attempt)
			}
			return h, true
		}

		slog.Warn("stream reconnection attempt failed",
			"session_id", l.cfg.SessionID,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, false
		case <-l.stopped:
			return nil, false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.cfg.MaxBackoff)
	}

	slog.Error("stream reconnection failed after max retries",
		"session_id", l.cfg.SessionID,
		"max_retries", l.cfg.MaxRetries,
	)
	return nil, false
}
