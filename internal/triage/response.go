package triage

import "time"

// Outcome names the path a question took.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeSilent       Outcome = "silent"
	OutcomeParseError   Outcome = "parse_error"
)

// Response is the envelope returned to the chat client. Every path produces
// the same JSON shape: {"reply": string|null, "classification": {...}}.
type Response struct {
	Reply          *string        `json:"reply"`
	Classification Classification `json:"classification"`

	Outcome         Outcome       `json:"-"`
	Policy          string        `json:"-"`
	GeneratorCalled bool          `json:"-"`
	Latency         time.Duration `json:"-"`
}

// ReplyText returns the reply or "" when there is none.
func (r *Response) ReplyText() string {
	if r == nil || r.Reply == nil {
		return ""
	}
	return *r.Reply
}

func textReply(s string) *string { return &s }
