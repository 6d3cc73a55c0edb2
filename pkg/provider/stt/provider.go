// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram)
// and exposes a uniform streaming interface. Once opened, a SessionHandle
// accepts raw PCM audio frames and emits batches of recognition tokens. A batch
// may mix provisional and final tokens; the transcript aggregator decides what
// survives.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// ErrClosed is returned by SendAudio after the session has been closed.
var ErrClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Browsers usually capture at
	// 48000; 16000 is the common STT-optimised rate.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "hi", "en-IN").
	// An empty string leaves the provider default in place.
	Language string

	// Keywords is a list of vocabulary hints (subject terms, lecturer names)
	// that raise recognition probability for uncommon words.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit PCM audio. Calling SendAudio
	// after Close returns ErrClosed.
	SendAudio(chunk []byte) error

	// Results returns a read-only channel of recognition batches. The channel
	// is closed when the session ends, either by Close or because the remote
	// side went away.
	Results() <-chan types.RecognitionResult

	// Close terminates the session, flushes any pending audio, and releases all
	// associated resources. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The caller owns
	// the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
