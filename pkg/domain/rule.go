package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind identifies one tier of the rule hierarchy.
type Kind string

const (
	KindPrimitive Kind = "primitive"
	KindSemantic  Kind = "semantic"
	KindTask      Kind = "task"
)

// Kinds lists every rule kind from the top of the hierarchy down.
var Kinds = []Kind{KindTask, KindSemantic, KindPrimitive}

// Valid reports whether k is a known rule kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPrimitive, KindSemantic, KindTask:
		return true
	}
	return false
}

// Child returns the kind one level below k.
func (k Kind) Child() (Kind, bool) {
	switch k {
	case KindTask:
		return KindSemantic, true
	case KindSemantic:
		return KindPrimitive, true
	}
	return "", false
}

// Parent returns the kind one level above k.
func (k Kind) Parent() (Kind, bool) {
	switch k {
	case KindPrimitive:
		return KindSemantic, true
	case KindSemantic:
		return KindTask, true
	}
	return "", false
}

// ParseKind converts user input ("task", "Semantic", ...) into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", errors.Newf("unknown rule kind %q (expected primitive, semantic or task)", s)
	}
	return k, nil
}

// Allowed enumerations per rule kind.
var (
	PrimitiveCategories = []string{"instruction", "format", "constraint", "pattern"}
	SemanticCategories  = []string{"code_review", "explanation", "debugging", "optimization", "generation"}
	TaskDomains         = []string{"web_dev", "data_science", "electrical_eng", "mobile_dev", "devops", "general"}
)

// Rule is a named, versioned template of one kind.
//
// Content holds the primary template: the primitive content, the semantic
// content template or the task prompt template.
type Rule struct {
	ID          int64     `json:"id" yaml:"id"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Content     string    `json:"content" yaml:"content"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	Language    string    `json:"language,omitempty" yaml:"language,omitempty"`
	Framework   string    `json:"framework,omitempty" yaml:"framework,omitempty"`
	Domain      string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Version     int       `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Ref returns the graph node name of the rule, e.g. "task_3".
func (r Rule) Ref() string {
	return NodeName(r.Kind, r.ID)
}

// Classifier returns the enumerated value constrained for the rule's kind:
// the category for primitive and semantic rules, the domain for tasks.
func (r Rule) Classifier() string {
	if r.Kind == KindTask {
		return r.Domain
	}
	return r.Category
}

// CheckClassifier validates the category or domain of the rule against its
// allowed enumeration. Only primitive rules require a category.
func (r Rule) CheckClassifier() error {
	value := r.Classifier()
	switch r.Kind {
	case KindPrimitive:
		if value == "" {
			return errors.New("missing category")
		}
		if !slices.Contains(PrimitiveCategories, value) {
			return errors.Newf("invalid category %q", value)
		}
	case KindSemantic:
		if value != "" && !slices.Contains(SemanticCategories, value) {
			return errors.Newf("invalid category %q", value)
		}
	case KindTask:
		if value != "" && !slices.Contains(TaskDomains, value) {
			return errors.Newf("invalid domain %q", value)
		}
	default:
		return errors.Newf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// NodeName builds the "{kind}_{id}" identifier used in graphs and cache keys.
func NodeName(kind Kind, id int64) string {
	return fmt.Sprintf("%s_%d", kind, id)
}

// RuleVersion is one entry of a rule's version history.
type RuleVersion struct {
	ID         int64     `json:"id" yaml:"id"`
	Kind       Kind      `json:"kind" yaml:"kind"`
	RuleID     int64     `json:"rule_id" yaml:"rule_id"`
	Number     int       `json:"number" yaml:"number"`
	Content    string    `json:"content,omitempty" yaml:"content,omitempty"`
	ChangeNote string    `json:"change_note,omitempty" yaml:"change_note,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty" yaml:"-"`
}

// RuleTag attaches a free-form tag to a rule.
type RuleTag struct {
	ID     int64  `json:"id" yaml:"id"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	RuleID int64  `json:"rule_id" yaml:"rule_id"`
	Tag    string `json:"tag" yaml:"tag"`
}
