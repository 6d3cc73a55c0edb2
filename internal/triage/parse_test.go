package triage

import (
	"errors"
	"testing"
)

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Category
	}{
		{"noise", CategoryNoise},
		{"  Noise ", CategoryNoise},
		{"ack", CategoryNoise},
		{"acknowledgement", CategoryNoise},
		{"guidance", CategoryGuidance},
		{"subject_based", CategorySubject},
		{"Subject-Based", CategorySubject},
		{"subject doubt", CategorySubject},
		{"subject_question", CategorySubject},
		{"follow_up", CategorySubject},
		{"follow-up", CategorySubject},
		{"error", CategoryError},
		{"banana", CategoryError},
		{"", CategoryError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := ParseCategory(tt.in); got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCategory_Valid(t *testing.T) {
	t.Parallel()
	for _, c := range []Category{CategoryNoise, CategoryGuidance, CategorySubject, CategoryError} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if CategoryFollowUp.Valid() {
		t.Error("follow_up is never a canonical category")
	}
}

func TestParseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Classification
		wantErr bool
	}{
		{
			name: "strict json",
			raw:  `{"is_genuine":true,"category":"subject_based","confidence":0.9,"reason":"concept question"}`,
			want: Classification{IsGenuine: true, Category: CategorySubject, Confidence: 0.9, Reason: "concept question"},
		},
		{
			name: "alias canonicalised",
			raw:  `{"is_genuine":true,"category":"subject_doubt","confidence":0.8,"reason":"r"}`,
			want: Classification{IsGenuine: true, Category: CategorySubject, Confidence: 0.8, Reason: "r"},
		},
		{
			name: "json code fence",
			raw:  "```json\n{\"is_genuine\":false,\"category\":\"noise\",\"confidence\":0.95,\"reason\":\"filler\"}\n```",
			want: Classification{Category: CategoryNoise, Confidence: 0.95, Reason: "filler"},
		},
		{
			name: "bare code fence",
			raw:  "```\n{\"category\":\"guidance\",\"is_genuine\":true,\"confidence\":0.6,\"reason\":\"repeat\"}\n```",
			want: Classification{IsGenuine: true, Category: CategoryGuidance, Confidence: 0.6, Reason: "repeat"},
		},
		{
			name: "object embedded in prose with braces in strings",
			raw:  `Sure! Here it is: {"category":"guidance","is_genuine":true,"confidence":0.7,"reason":"asks about {x} and \"20\""} hope that helps`,
			want: Classification{IsGenuine: true, Category: CategoryGuidance, Confidence: 0.7, Reason: `asks about {x} and "20"`},
		},
		{
			name: "invalid region skipped",
			raw:  `{not json} then {"category":"noise","confidence":1}`,
			want: Classification{Category: CategoryNoise, Confidence: 1},
		},
		{
			name: "quoted bool and number",
			raw:  `{"is_genuine":"true","category":"subject_based","confidence":"0.7","reason":"r"}`,
			want: Classification{IsGenuine: true, Category: CategorySubject, Confidence: 0.7, Reason: "r"},
		},
		{
			name: "confidence clamped",
			raw:  `{"is_genuine":true,"category":"guidance","confidence":1.5,"reason":"r"}`,
			want: Classification{IsGenuine: true, Category: CategoryGuidance, Confidence: 1, Reason: "r"},
		},
		{
			name: "noise is never genuine",
			raw:  `{"is_genuine":true,"category":"noise","confidence":0.5,"reason":"r"}`,
			want: Classification{Category: CategoryNoise, Confidence: 0.5, Reason: "r"},
		},
		{
			name: "missing is_genuine derived from category",
			raw:  `{"category":"guidance","confidence":0.5}`,
			want: Classification{IsGenuine: true, Category: CategoryGuidance, Confidence: 0.5},
		},
		{
			name: "unknown category maps to error",
			raw:  `{"is_genuine":true,"category":"banana","confidence":0.5,"reason":"r"}`,
			want: Classification{Category: CategoryError, Confidence: 0.5, Reason: "r"},
		},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace", raw: "  \n ", wantErr: true},
		{name: "prose only", raw: "I think this is a subject question.", wantErr: true},
		{name: "unbalanced", raw: `{"category":"noise"`, wantErr: true},
		{name: "missing category", raw: `{"is_genuine":true,"reason":"r"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseClassification(tt.raw)
			if tt.wantErr {
				var pf *ParseFailure
				if !errors.As(err, &pf) {
					t.Fatalf("err = %v, want *ParseFailure", err)
				}
				if pf.Raw != tt.raw {
					t.Errorf("ParseFailure.Raw = %q, want %q", pf.Raw, tt.raw)
				}
				if got != Fallback() {
					t.Errorf("got %+v, want Fallback()", got)
				}
				if pf.Reason == "" {
					t.Error("ParseFailure should say what was wrong with the output")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseAnswer(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		got, err := ParseAnswer(`{"is_genuine":true,"category":"subject_based","reason":"r","answer":"  F = ma  "}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Plain || got.Answer != "F = ma" || got.Category != CategorySubject {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("plain text becomes the answer", func(t *testing.T) {
		t.Parallel()
		got, err := ParseAnswer("Newton ka second law kehta hai ki F = ma.")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Plain || got.Answer != "Newton ka second law kehta hai ki F = ma." {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("fenced plain text", func(t *testing.T) {
		t.Parallel()
		got, err := ParseAnswer("```\nF = ma\n```")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Plain || got.Answer != "F = ma" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("empty output", func(t *testing.T) {
		t.Parallel()
		got, err := ParseAnswer("   ")
		var pf *ParseFailure
		if !errors.As(err, &pf) {
			t.Fatalf("err = %v, want *ParseFailure", err)
		}
		if got.Category != CategoryError || got.Answer != "" {
			t.Errorf("got %+v", got)
		}
	})
}

func TestFirstObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{`x {"a":1} y`, `{"a":1}`, true},
		{`{"a":{"b":"}"}}`, `{"a":{"b":"}"}}`, true},
		{`{"a":"\\"} tail`, `{"a":"\\"}`, true},
		{`no braces`, "", false},
		{`{"a":1`, "", false},
	}
	for _, tt := range tests {
		got, ok := firstObject(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("firstObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
