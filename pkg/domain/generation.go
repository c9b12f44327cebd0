package domain

import "time"

// DiagnosticLevel grades a rendering diagnostic.
type DiagnosticLevel string

const (
	LevelWarning DiagnosticLevel = "warning"
	LevelError   DiagnosticLevel = "error"
)

// Diagnostic records a degraded render at a non-root level.
type Diagnostic struct {
	Level    DiagnosticLevel `json:"level"`
	Kind     Kind            `json:"kind"`
	RuleID   int64           `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	Message  string          `json:"message"`
}

// Timing splits the wall time of a generation.
type Timing struct {
	Resolve time.Duration `json:"resolve"`
	Render  time.Duration `json:"render"`
	Total   time.Duration `json:"total"`
}

// Generation is the result of composing a task rule into final text.
type Generation struct {
	ID       string `json:"id"`
	TaskName string `json:"task_name"`
	Target   string `json:"target"`

	// Text is the framed output, RawText the task render before framing.
	Text    string `json:"text"`
	RawText string `json:"raw_text"`

	Tree        *ResolvedNode `json:"resolved_tree"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Timing      Timing        `json:"timing"`
	Cached      bool          `json:"cached"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Degraded reports whether any non-root rule fell back during rendering.
func (g *Generation) Degraded() bool {
	return len(g.Diagnostics) > 0
}
