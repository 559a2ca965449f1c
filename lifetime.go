package godi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Lifetime specifies how long an instance produced by a Descriptor lives
// and who shares it.
type Lifetime int

const (
	// Transient instances are never shared. The factory runs on every
	// resolution.
	Transient Lifetime = iota

	// Scoped instances are shared within one Scope. Each Scope builds its own
	// instance and releases it when the Scope is closed.
	Scoped

	// Singleton instances are shared by every Scope of a Registry. The
	// instance is built at most once and released when the Registry is closed.
	Singleton
)

// String returns the string representation of the Lifetime.
func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "Transient"
	case Scoped:
		return "Scoped"
	case Singleton:
		return "Singleton"
	default:
		return fmt.Sprintf("Unknown(%d)", int(l))
	}
}

// IsValid reports whether l is one of the declared lifetimes.
func (l Lifetime) IsValid() bool {
	return l >= Transient && l <= Singleton
}

// MarshalText implements encoding.TextMarshaler.
func (l Lifetime) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, LifetimeError{Value: int(l)}
	}

	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lifetime) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "transient":
		*l = Transient
	case "scoped":
		*l = Scoped
	case "singleton":
		*l = Singleton
	default:
		return LifetimeError{Value: string(text)}
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (l Lifetime) MarshalJSON() ([]byte, error) {
	text, err := l.MarshalText()
	if err != nil {
		return nil, err
	}

	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Lifetime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	return l.UnmarshalText([]byte(s))
}
