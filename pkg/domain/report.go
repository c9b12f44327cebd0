package domain

import "time"

// Issue is a single finding of a validation check.
type Issue struct {
	Kind    Kind     `json:"kind,omitempty"`
	ID      int64    `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Message string   `json:"message"`
	Cycle   []string `json:"cycle,omitempty"`
}

// CheckResult is the outcome of one named validation check.
// Error is set when the check itself failed to run.
type CheckResult struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Valid       bool    `json:"valid"`
	Issues      []Issue `json:"issues"`
	Count       int     `json:"count"`
	Error       string  `json:"error,omitempty"`
}

// Report aggregates the results of a full validation pass.
type Report struct {
	Valid     bool                   `json:"valid"`
	Errors    []string               `json:"errors"`
	Warnings  []string               `json:"warnings"`
	Checks    map[string]CheckResult `json:"checks"`
	Order     []string               `json:"order"`
	CheckedAt time.Time              `json:"checked_at"`
}

// IssueCount sums the issues across all checks.
func (r *Report) IssueCount() int {
	total := 0
	for _, c := range r.Checks {
		total += len(c.Issues)
	}
	return total
}

// Conflict types.
const (
	ConflictDuplicateName = "duplicate_name"
)

// Conflict describes rules that collide with each other.
type Conflict struct {
	Type    string  `json:"type"`
	Kind    Kind    `json:"kind"`
	Name    string  `json:"name"`
	IDs     []int64 `json:"ids"`
	Message string  `json:"message"`
}

// CorpusStats counts the records of a corpus.
type CorpusStats struct {
	Rules     map[Kind]int         `json:"rules"`
	Relations map[RelationKind]int `json:"relations"`
	Versions  int                  `json:"versions"`
	Tags      int                  `json:"tags"`
}
