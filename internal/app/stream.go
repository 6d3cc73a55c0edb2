package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/session"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt"
)

const (
	// writeTimeout bounds a single websocket frame write.
	writeTimeout = 5 * time.Second

	defaultSampleRate = 16000

	// maxAudioFrame caps one binary message on the listen socket.
	maxAudioFrame = 1 << 20
)

func (a *App) acceptOptions() *websocket.AcceptOptions {
	return &websocket.AcceptOptions{OriginPatterns: a.cfg.Server.AllowedOrigins}
}

// stream pushes a transcript view to the client on every aggregator change.
// The first message is the current state. Client messages are ignored.
func (a *App) stream(w http.ResponseWriter, r *http.Request, s *session.Session) {
	recent, ok := queryInt(w, r, "recent", a.cfg.Transcript.DisplayTokens)
	if !ok {
		return
	}
	c, err := websocket.Accept(w, r, a.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Debug("stream accept failed", "err", err)
		return
	}
	defer c.CloseNow()

	ctx := c.CloseRead(r.Context())
	log := observe.Logger(ctx)

	a.metrics.ActiveStreams.Add(ctx, 1)
	defer a.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	agg := s.Aggregator()
	updates, cancel := agg.Subscribe(4)
	defer cancel()

	send := func(v TranscriptView) error {
		wctx, done := context.WithTimeout(ctx, writeTimeout)
		defer done()
		return wsjson.Write(wctx, c, v)
	}

	if err := send(newTranscriptView(agg.Snapshot(), recent)); err != nil {
		log.Debug("stream write failed", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			c.Close(websocket.StatusGoingAway, "session closed")
			return
		case snap, ok := <-updates:
			if !ok {
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := send(newTranscriptView(snap, recent)); err != nil {
				log.Debug("stream write failed", "err", err)
				return
			}
		}
	}
}

// listen accepts raw PCM over a websocket and feeds it to a streaming
// recogniser whose results land in the session transcript.
func (a *App) listen(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if a.providers.STT == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no speech recogniser configured"))
		return
	}
	rate := defaultSampleRate
	if raw := r.URL.Query().Get("sample_rate"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("sample_rate must be a positive integer"))
			return
		}
		rate = n
	}

	streamCfg := stt.StreamConfig{
		SampleRate: rate,
		Channels:   1,
		Language:   s.Language(),
	}
	if m := a.glossary.Load(); m != nil {
		streamCfg.Keywords = m.Keywords(0)
	}
	l := session.NewListener(session.ListenerConfig{
		Provider:  a.providers.STT,
		Stream:    streamCfg,
		Submit:    s.Submit,
		SessionID: s.ID(),
	})
	if err := s.AttachListener(l); err != nil {
		status := http.StatusConflict
		if errors.Is(err, session.ErrClosed) {
			status = http.StatusGone
		}
		writeError(w, status, err)
		return
	}
	defer s.DetachListener(l)

	c, err := websocket.Accept(w, r, a.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Debug("listen accept failed", "err", err)
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(maxAudioFrame)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx)

	if err := l.Start(ctx); err != nil {
		log.Warn("listen: recogniser unavailable", "err", err)
		c.Close(websocket.StatusTryAgainLater, "speech recogniser unavailable")
		return
	}
	defer func() {
		cancel()
		if err := l.Stop(); err != nil {
			log.Debug("listen: stop", "err", err)
		}
	}()

	go func() {
		select {
		case <-l.Done():
			c.Close(websocket.StatusTryAgainLater, "recognition stream lost")
		case <-ctx.Done():
		}
	}()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("listen: read", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if err := l.SendAudio(data); err != nil {
			if errors.Is(err, session.ErrNotConnected) {
				log.Debug("listen: dropping audio while reconnecting")
				continue
			}
			log.Warn("listen: send audio", "err", err)
		}
	}
}
