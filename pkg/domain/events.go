package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventGenerate   EventType = "generate"
	EventDiagnostic EventType = "diagnostic"
	EventValidate   EventType = "validate"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// GenerateEvent is emitted after every generation attempt.
type GenerateEvent struct {
	EventBase
	TaskName   string      `json:"task_name"`
	Target     string      `json:"target"`
	Generation *Generation `json:"generation,omitempty"`
	Err        error       `json:"-"`
}

// DiagnosticEvent is emitted for each degraded render.
type DiagnosticEvent struct {
	EventBase
	TaskName   string     `json:"task_name"`
	Diagnostic Diagnostic `json:"diagnostic"`
}

// ValidateEvent is emitted after every validation pass.
type ValidateEvent struct {
	EventBase
	Report *Report `json:"report"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnGenerate   func(context.Context, *GenerateEvent)
	OnDiagnostic func(context.Context, *DiagnosticEvent)
	OnValidate   func(context.Context, *ValidateEvent)
}
