package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "hi", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key", WithModel("nova-2"), WithLanguage("en-IN"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	q := mustQuery(t, rawURL)
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "en-IN", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	if q.Has("channels") {
		t.Error("channels should be omitted when zero")
	}
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "hi", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	assertEqual(t, "language", "hi", mustQuery(t, rawURL).Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{
		Keywords: []types.KeywordBoost{
			{Keyword: "Newton", Boost: 2},
			{Keyword: "momentum", Boost: 1.5},
		},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	kws := mustQuery(t, rawURL)["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["Newton:2"] || !found["momentum:1.5"] {
		t.Errorf("unexpected keywords %v", kws)
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Words(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"start": 12.0,
		"duration": 1.5,
		"channel": {
			"alternatives": [{
				"transcript": "force barabar mass",
				"confidence": 0.95,
				"words": [
					{"word": "force", "start": 12.1, "end": 12.5, "confidence": 0.97},
					{"word": "barabar", "start": 12.6, "end": 13.0, "confidence": 0.9},
					{"word": "mass", "punctuated_word": "mass.", "start": 13.05, "end": 13.4, "confidence": 0.93}
				]
			}]
		}
	}`)

	res, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if len(res.Tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(res.Tokens))
	}
	first := res.Tokens[0]
	if !first.IsFinal {
		t.Error("expected final tokens")
	}
	assertEqual(t, "text[0]", "force", first.Text)
	if first.StartMs != 12100 || first.EndMs != 12500 {
		t.Errorf("token[0] span = %d..%d, want 12100..12500", first.StartMs, first.EndMs)
	}
	assertEqual(t, "punctuated", "mass.", res.Tokens[2].Text)
}

func TestParseDeepgramResponse_InterimWithoutWords(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"start": 3.0,
		"duration": 0.8,
		"channel": {"alternatives": [{"transcript": "haan", "confidence": 0.7, "words": []}]}
	}`)

	res, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(res.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(res.Tokens))
	}
	tok := res.Tokens[0]
	if tok.IsFinal {
		t.Error("expected provisional token")
	}
	if tok.StartMs != 3000 || tok.EndMs != 3800 {
		t.Errorf("span = %d..%d, want 3000..3800", tok.StartMs, tok.EndMs)
	}
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"metadata", `{"type":"Metadata","request_id":"abc"}`},
		{"no alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{"silence", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"","words":[]}]}}`},
		{"invalid", `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseDeepgramResponse([]byte(tt.raw)); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

// ---- Streaming round trip ----

func TestStartStream_RoundTrip(t *testing.T) {
	const reply = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"namaste","words":[{"word":"namaste","start":0.2,"end":0.6,"confidence":0.9}]}]}}`

	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
					return
				}
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	defer srv.Close()

	p, err := New("dg-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	assertEqual(t, "authorization", "Token dg-key", <-gotAuth)

	if err := handle.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case res := <-handle.Results():
		if len(res.Tokens) != 1 || res.Tokens[0].Text != "namaste" {
			t.Fatalf("unexpected result %+v", res)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for result")
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handle.SendAudio([]byte{0}); !errors.Is(err, stt.ErrClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrClosed", err)
	}
	if err := handle.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- helpers ----

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	return u.Query()
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
