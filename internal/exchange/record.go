// Package exchange logs every question, its grounding context and the reply
// that was sent, for offline analysis of triage quality.
//
// A [Sink] receives one [Record] per answered request. Sinks are written
// after the reply is assembled and their errors never reach the student.
package exchange

import (
	"time"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/triage"
)

// Record is one question/reply exchange.
type Record struct {
	Timestamp       time.Time             `json:"timestamp"`
	SessionID       string                `json:"session_id"`
	VideoID         string                `json:"video_id,omitempty"`
	StudentID       string                `json:"student_id,omitempty"`
	Question        string                `json:"question"`
	Window          string                `json:"window"`
	Supplementary   string                `json:"supplementary,omitempty"`
	Classification  triage.Classification `json:"classification"`
	Reply           *string               `json:"reply"`
	Outcome         triage.Outcome        `json:"outcome"`
	Policy          string                `json:"policy"`
	GeneratorCalled bool                  `json:"generator_called"`
	LatencyMs       int64                 `json:"latency_ms"`
}

// NewRecord builds the record for a triaged request.
func NewRecord(sessionID, videoID string, req triage.Request, resp *triage.Response) Record {
	rec := Record{
		Timestamp:     time.Now().UTC(),
		SessionID:     sessionID,
		VideoID:       videoID,
		StudentID:     req.StudentID,
		Question:      req.Question,
		Window:        req.Window.Text(),
		Supplementary: req.Supplementary,
	}
	if resp != nil {
		rec.Classification = resp.Classification
		rec.Reply = resp.Reply
		rec.Outcome = resp.Outcome
		rec.Policy = resp.Policy
		rec.GeneratorCalled = resp.GeneratorCalled
		rec.LatencyMs = resp.Latency.Milliseconds()
	}
	return rec
}
