// Package types provides domain models shared across fieldflow components.
//
// Zero-dependency design: types.go, paths.go, messages.go and errors.go use
// only the standard library so the engine packages stay light. ID utilities
// in ids.go import uuid but are isolated for selective inclusion.
//
// Entries are immutable once constructed. The engine groups references to
// them and never writes through those references.
package types

import "time"

// FormID represents a UUIDv7 form identifier.
type FormID string

// EntryID represents a UUIDv7 derivation entry identifier.
type EntryID string

// Trigger selects how a derivation entry is scheduled.
type Trigger string

const (
	// TriggerOnChange recomputes synchronously on every relevant change.
	TriggerOnChange Trigger = "onChange"

	// TriggerDebounced recomputes only after the dependency set has been
	// quiet for the entry's debounce window.
	TriggerDebounced Trigger = "debounced"
)

// ParseTrigger converts an authored trigger name. Empty means onChange.
func ParseTrigger(s string) (Trigger, error) {
	switch Trigger(s) {
	case "", TriggerOnChange:
		return TriggerOnChange, nil
	case TriggerDebounced:
		return TriggerDebounced, nil
	default:
		return "", ErrUnknownTrigger
	}
}

// WildcardDependency is the dependsOn token meaning "the entire form value".
const WildcardDependency = "*"

// Engine limits and defaults.
const (
	// DefaultDebounce applies to debounced entries without DebounceMs.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultDebounceMs is DefaultDebounce in milliseconds, the unit entries
	// are authored and bucketed in.
	DefaultDebounceMs = 500

	// MaxPlaceholders bounds the number of $ segments a compiled entry path
	// may carry. Configurable per engine via engine.max_placeholders.
	MaxPlaceholders = 4
)

// DerivationEntry is one compiled "target depends on sources" rule.
type DerivationEntry struct {
	ID             EntryID
	TargetFieldKey string   // may contain one array placeholder, e.g. items.$.total
	SourceFieldKey string   // field whose schema block declared the rule
	DependsOn      []string // field paths, or WildcardDependency
	Trigger        Trigger  // empty is treated as TriggerOnChange
	DebounceMs     int      // 0, written or omitted, means DefaultDebounceMs
	Expression     string   // opaque to the engine
}

// IsDebounced reports whether the entry is gated by a debounce window.
func (e *DerivationEntry) IsDebounced() bool {
	return e.Trigger == TriggerDebounced
}

// EffectiveDebounceMs returns the entry's debounce window, defaulting to
// DefaultDebounceMs when unset. An explicit 0 is indistinguishable from an
// omitted window, so a zero-delay debounce cannot be expressed.
func (e *DerivationEntry) EffectiveDebounceMs() int {
	if e.DebounceMs > 0 {
		return e.DebounceMs
	}
	return DefaultDebounceMs
}

// DependsOnWildcard reports whether the entry depends on the whole form value.
func (e *DerivationEntry) DependsOnWildcard() bool {
	for _, dep := range e.DependsOn {
		if dep == WildcardDependency {
			return true
		}
	}
	return false
}

// EntryDefinition is an authored, not yet compiled derivation rule.
// Field names follow the definition file format.
type EntryDefinition struct {
	ID         string   `yaml:"id,omitempty" json:"id,omitempty"`
	Target     string   `yaml:"target" json:"target"`
	Source     string   `yaml:"source" json:"source"`
	DependsOn  []string `yaml:"dependsOn" json:"dependsOn"`
	Trigger    string   `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	DebounceMs int      `yaml:"debounceMs,omitempty" json:"debounceMs,omitempty"`
	Expression string   `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// FieldDefinition carries per-field configuration relevant to the engine.
type FieldDefinition struct {
	Messages map[string]string `yaml:"messages,omitempty" json:"messages,omitempty"`
}

// FormDefinition is the declarative input for one form: derivations plus
// message configuration.
type FormDefinition struct {
	ID              FormID                     `yaml:"id,omitempty" json:"id,omitempty"`
	Name            string                     `yaml:"form" json:"form"`
	DefaultMessages map[string]string          `yaml:"defaultMessages,omitempty" json:"defaultMessages,omitempty"`
	Fields          map[string]FieldDefinition `yaml:"fields,omitempty" json:"fields,omitempty"`
	Derivations     []EntryDefinition          `yaml:"derivations" json:"derivations"`
}
