package transcript

import (
	"fmt"
	"testing"
)

func TestWindow_Helpers(t *testing.T) {
	t.Parallel()

	w := Window{final("F", 10, 10.2), prov("equals", 10.3, 10.8), final("ma", 10.9, 11.4)}

	if got := w.Text(); got != "F equals ma" {
		t.Errorf("Text() = %q", got)
	}
	start, end := w.Span()
	if start != 10 || end != 11.4 {
		t.Errorf("Span() = (%v, %v), want (10, 11.4)", start, end)
	}
	if got := texts(w.Finals()); fmt.Sprint(got) != "[F ma]" {
		t.Errorf("Finals() = %v", got)
	}

	var empty Window
	if s, e := empty.Span(); s != 0 || e != 0 {
		t.Errorf("empty Span() = (%v, %v)", s, e)
	}
	if empty.Text() != "" {
		t.Error("empty Text() should be blank")
	}
}

func TestContextWindow(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyResult([]Token{
		final("intro", 0, 5),
		final("derivation", 150, 160),
		final("twenty", 290, 300),
	})
	snap := a.Snapshot()

	tests := []struct {
		horizon float64
		want    string
	}{
		{0, "derivation twenty"}, // default 180s back from 300
		{120, "twenty"},          // 300-150 = 150 > 120
		{300, "intro derivation twenty"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.horizon), func(t *testing.T) {
			t.Parallel()
			if got := ContextWindow(snap, tt.horizon).Text(); got != tt.want {
				t.Errorf("ContextWindow(%v) = %q, want %q", tt.horizon, got, tt.want)
			}
		})
	}

	if got := ContextWindow(nil, 180); got != nil {
		t.Errorf("nil snapshot window = %v, want nil", got)
	}
}
