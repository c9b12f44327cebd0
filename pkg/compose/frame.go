package compose

import (
	"slices"
	"strings"
)

// Frame is the prefix and suffix a target wraps around composed text.
type Frame struct {
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	Suffix string `json:"suffix" yaml:"suffix" mapstructure:"suffix"`
}

// Apply wraps text in the frame.
func (f Frame) Apply(text string) string {
	return f.Prefix + text + f.Suffix
}

// Built-in target identifiers.
const (
	TargetPlain  = "plain"
	TargetClaude = "claude"
	TargetGPT    = "gpt"
	TargetGemini = "gemini"
)

var defaultTargets = map[string]Frame{
	TargetPlain:  {},
	TargetClaude: {Prefix: "<thinking>\nProcessing the following prompt requirements:\n</thinking>\n\n"},
	TargetGPT:    {Prefix: "System: You are a helpful assistant following these guidelines:\n\n"},
	TargetGemini: {Prefix: "Instructions: Please follow these guidelines carefully:\n\n"},
}

// Wrap frames text for target. Unknown targets pass text through unchanged.
func (c *Composer) Wrap(text, target string) string {
	f, ok := c.targets[strings.ToLower(strings.TrimSpace(target))]
	if !ok {
		return text
	}
	return f.Apply(text)
}

// Targets lists the known target identifiers in sorted order.
func (c *Composer) Targets() []string {
	names := make([]string, 0, len(c.targets))
	for name := range c.targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Frame returns the frame registered for target.
func (c *Composer) Frame(target string) (Frame, bool) {
	f, ok := c.targets[strings.ToLower(strings.TrimSpace(target))]
	return f, ok
}
