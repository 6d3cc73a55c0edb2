package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/exchange"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/session"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/triage"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", a.createSession)
	mux.HandleFunc("GET /sessions", a.listSessions)
	mux.HandleFunc("GET /sessions/{id}", a.withSession(a.getSession))
	mux.HandleFunc("DELETE /sessions/{id}", a.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/video", a.resetVideo)
	mux.HandleFunc("POST /sessions/{id}/results", a.withSession(a.submitResults))
	mux.HandleFunc("GET /sessions/{id}/transcript", a.withSession(a.getTranscript))
	mux.HandleFunc("GET /sessions/{id}/window", a.withSession(a.getWindow))
	mux.HandleFunc("PUT /sessions/{id}/board", a.withSession(a.setBoard))
	mux.HandleFunc("POST /sessions/{id}/ask", a.withSession(a.ask))
	mux.HandleFunc("GET /sessions/{id}/stream", a.withSession(a.stream))
	mux.HandleFunc("GET /sessions/{id}/listen", a.withSession(a.listen))

	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// ─── Views ───────────────────────────────────────────────────────────────────

// TranscriptView is the body of GET /sessions/{id}/transcript and of every
// stream message.
type TranscriptView struct {
	Version   uint64                `json:"version"`
	Count     int                   `json:"count"`
	Finals    int                   `json:"finals"`
	Tokens    []transcript.Token    `json:"tokens"`
	Recent    []transcript.Token    `json:"recent"`
	Sentences []transcript.Sentence `json:"sentences"`
}

func newTranscriptView(s *transcript.Snapshot, recent int) TranscriptView {
	v := TranscriptView{
		Version:   s.Version,
		Count:     s.Len(),
		Finals:    s.Finals,
		Tokens:    s.Tokens,
		Recent:    s.Recent(recent),
		Sentences: s.Sentences(),
	}
	if v.Tokens == nil {
		v.Tokens = []transcript.Token{}
	}
	if v.Sentences == nil {
		v.Sentences = []transcript.Sentence{}
	}
	return v
}

// WindowView is the body of GET /sessions/{id}/window.
type WindowView struct {
	Reference float64            `json:"reference"`
	Horizon   float64            `json:"horizon"`
	Text      string             `json:"text"`
	Tokens    []transcript.Token `json:"tokens"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves {id} and answers 404 for unknown sessions.
func (a *App) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := a.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h(w, r.WithContext(observe.WithSession(r.Context(), s.ID())), s)
	}
}

func (a *App) createSession(w http.ResponseWriter, r *http.Request) {
	var opts session.Options
	if !decodeBody(w, r, &opts, true) {
		return
	}
	s, err := a.sessions.Create(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, s.Info())
}

func (a *App) listSessions(w http.ResponseWriter, _ *http.Request) {
	list := a.sessions.List()
	infos := make([]session.Info, len(list))
	for i, s := range list {
		infos[i] = s.Info()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (a *App) getSession(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, s.Info())
}

func (a *App) deleteSession(w http.ResponseWriter, r *http.Request) {
	err := a.sessions.Close(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		// The session is gone either way; report the drain problem.
		observe.Logger(r.Context()).Warn("session close incomplete", "err", err)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *App) resetVideo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VideoID string `json:"video_id"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}
	id := r.PathValue("id")
	switch err := a.sessions.ResetVideo(id, body.VideoID); {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s, err := a.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (a *App) submitResults(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var body types.RecognitionResult
	if !decodeBody(w, r, &body, false) {
		return
	}
	switch err := s.Submit(body.Tokens); {
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err)
	case errors.Is(err, transcript.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]int{"queued": len(body.Tokens)})
	}
}

func (a *App) getTranscript(w http.ResponseWriter, r *http.Request, s *session.Session) {
	recent, ok := queryInt(w, r, "recent", a.cfg.Transcript.DisplayTokens)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newTranscriptView(s.Aggregator().Snapshot(), recent))
}

func (a *App) getWindow(w http.ResponseWriter, r *http.Request, s *session.Session) {
	horizon := a.ContextWindow()
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || h <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("horizon must be a positive number of seconds"))
			return
		}
		horizon = h
	}
	snap := s.Aggregator().Snapshot()
	win := transcript.ContextWindow(snap, horizon)
	tokens := []transcript.Token(win)
	if tokens == nil {
		tokens = []transcript.Token{}
	}
	writeJSON(w, http.StatusOK, WindowView{
		Reference: snap.LastEnd(),
		Horizon:   horizon,
		Text:      win.Text(),
		Tokens:    tokens,
	})
}

func (a *App) setBoard(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var body struct {
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}
	if err := s.SetBoard(strings.TrimSpace(body.Description)); err != nil {
		writeError(w, http.StatusGone, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ask(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if a.policy == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no answer model configured"))
		return
	}
	var body struct {
		Question string `json:"question"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}

	ctx, span := observe.StartSpan(r.Context(), observe.SpanAsk)
	defer span.End()
	log := observe.Logger(ctx)

	req := s.Request(body.Question, a.ContextWindow())
	resp, err := a.policy.Triage(ctx, req)
	if err != nil {
		observe.Fail(span, err)
		if errors.Is(err, triage.ErrUpstream) {
			log.Warn("ask failed upstream", "err", err)
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "the tutor is unavailable right now, please try again"})
			return
		}
		log.Error("ask failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	rec := exchange.NewRecord(s.ID(), s.VideoID(), req, resp)
	a.logs.Go(func() {
		exchange.Log(context.WithoutCancel(ctx), a.sink, rec, a.metrics)
	})

	writeJSON(w, http.StatusOK, resp)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// decodeBody reads a JSON body into v. An empty body is accepted only when
// allowEmpty is set. On failure it writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, errors.New(key+" must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
