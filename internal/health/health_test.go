package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeBreaker bool

func (b fakeBreaker) Healthy() bool { return bool(b) }

func ready(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "postgres", Check: func(context.Context) error { return errors.New("down") }})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				PingCheck("postgres", fakePinger{}),
				BreakerCheck("generator", fakeBreaker(true)),
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "generator": "ok"},
		},
		{
			name: "ping fails",
			checkers: []Checker{
				PingCheck("postgres", fakePinger{err: errors.New("connection refused")}),
				BreakerCheck("generator", fakeBreaker(true)),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "fail: connection refused", "generator": "ok"},
		},
		{
			name:       "breaker open",
			checkers:   []Checker{BreakerCheck("classifier", fakeBreaker(false))},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"classifier": "fail: " + ErrBreakerOpen.Error()},
		},
		{
			name:       "backend not configured",
			checkers:   []Checker{BreakerCheck("generator", nil)},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"generator": "fail: not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := ready(t, New(tt.checkers...), context.Background())
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			wantStatus := "ok"
			if tt.wantStatus != http.StatusOK {
				wantStatus = "fail"
			}
			if body.Status != wantStatus {
				t.Errorf("body status = %q, want %q", body.Status, wantStatus)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_Draining(t *testing.T) {
	t.Parallel()

	h := New(PingCheck("postgres", fakePinger{}))
	if code, _ := ready(t, h, context.Background()); code != http.StatusOK {
		t.Fatalf("status = %d before draining, want 200", code)
	}

	h.SetDraining()
	code, body := ready(t, h, context.Background())
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d while draining, want 503", code)
	}
	if body.Checks["postgres"] != "ok" {
		t.Errorf("postgres check = %q, want ok", body.Checks["postgres"])
	}
	if body.Checks["shutdown"] == "" {
		t.Error("draining should be reported as a shutdown check")
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := ready(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(PingCheck("postgres", fakePinger{})).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}
