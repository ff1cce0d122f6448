// Package model defines the core memory data types.
package model

import (
	"fmt"
	"math"
	"time"
)

// Type names one of the six memory kinds.
type Type string

const (
	TypeWorking     Type = "working"
	TypeEpisodic    Type = "episodic"
	TypeSemantic    Type = "semantic"
	TypeProcedural  Type = "procedural"
	TypeProspective Type = "prospective"
	TypeEmotional   Type = "emotional"
)

// AllTypes lists every memory type in a stable order.
var AllTypes = []Type{TypeWorking, TypeEpisodic, TypeSemantic, TypeProcedural, TypeProspective, TypeEmotional}

// ParseType validates a type name.
func ParseType(s string) (Type, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown memory type %q", s)
}

// Base is embedded by every memory record.
type Base struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta gives generic code access to the common fields.
func (b *Base) Meta() *Base { return b }

// WorkingMemory is a scope-local scratch entry. It is never persisted.
type WorkingMemory struct {
	Base
	ScopeID   string         `json:"scope_id"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

func (m WorkingMemory) Text() string { return m.Content }

// EpisodicContext records the circumstances of an event.
type EpisodicContext struct {
	Who   string         `json:"who,omitempty"`
	What  string         `json:"what,omitempty"`
	When  string         `json:"when,omitempty"`
	Where string         `json:"where,omitempty"`
	Why   string         `json:"why,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// EpisodicMemory is a timestamped event.
type EpisodicMemory struct {
	Base
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Context   EpisodicContext `json:"context"`
	ScopeID   string          `json:"scope_id,omitempty"`
}

func (m EpisodicMemory) Text() string { return m.Event }

// SemanticMemory is a durable fact.
type SemanticMemory struct {
	Base
	Fact       string  `json:"fact"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

func (m SemanticMemory) Text() string { return m.Fact }

// ProceduralMemory is a trigger→action pattern with a tracked success rate.
type ProceduralMemory struct {
	Base
	Pattern      string  `json:"pattern"`
	Trigger      string  `json:"trigger"`
	Action       string  `json:"action"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	SuccessRate  float64 `json:"success_rate"`
}

func (m ProceduralMemory) Text() string { return m.Pattern }

// SuccessRate returns successes/(successes+failures), or 0 before any use.
func SuccessRate(successes, failures int) float64 {
	total := successes + failures
	if total <= 0 {
		return 0
	}
	return float64(successes) / float64(total)
}

// ProspectiveStatus only moves forward: pending → triggered → completed.
type ProspectiveStatus string

const (
	StatusPending   ProspectiveStatus = "pending"
	StatusTriggered ProspectiveStatus = "triggered"
	StatusCompleted ProspectiveStatus = "completed"
)

// ProspectiveMemory is a future intention.
type ProspectiveMemory struct {
	Base
	Intention      string            `json:"intention"`
	TriggerTime    *time.Time        `json:"trigger_time,omitempty"`
	TriggerContext string            `json:"trigger_context,omitempty"`
	Status         ProspectiveStatus `json:"status"`
	Priority       float64           `json:"priority"`
}

func (m ProspectiveMemory) Text() string { return m.Intention }

// Emotion tags another memory.
type Emotion struct {
	Kind      string    `json:"kind"`
	Intensity float64   `json:"intensity"`
	Timestamp time.Time `json:"timestamp"`
}

// EmotionalMemory attaches an emotion to another memory record. The target
// may no longer exist.
type EmotionalMemory struct {
	Base
	TargetMemoryID   string  `json:"target_memory_id"`
	TargetMemoryType Type    `json:"target_memory_type"`
	Emotion          Emotion `json:"emotion"`
}

func (m EmotionalMemory) Text() string { return m.Emotion.Kind }

// Clamp01 clamps v into [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Summary is one consolidated memory produced by a sleep run.
type Summary struct {
	Content    string  `json:"content"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
}
