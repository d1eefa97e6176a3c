package runner

// Stage identifies one step of the retry ladder.
type Stage int

const (
	// StageInitial is the first completion call.
	StageInitial Stage = iota
	// StageOverride is a retry with the override clause appended.
	StageOverride
	// StageSummary is the call that compresses the history.
	StageSummary
	// StageSummarized is the final call made with the summary and no history.
	StageSummarized
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StageOverride:
		return "override"
	case StageSummary:
		return "summary"
	case StageSummarized:
		return "summarized"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Attempt records one backend call made while answering a request.
type Attempt struct {
	Stage       Stage   `json:"stage"`
	Temperature float64 `json:"temperature"`
	// Duplicate is set when the candidate matched a prior assistant turn.
	Duplicate bool `json:"duplicate"`
}

// Meta describes how a response was obtained. It is meant for logs and
// response metadata, never for the backend.
type Meta struct {
	DupReprompts int       `json:"dup_reprompts"`
	UsedSummary  bool      `json:"used_summary"`
	Summary      string    `json:"history_summary"`
	Audit        []string  `json:"history_debug_lines"`
	Attempts     []Attempt `json:"attempts"`
}
