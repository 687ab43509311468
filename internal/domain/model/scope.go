package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScopeKind distinguishes the overall partition from per-game partitions.
type ScopeKind string

const (
	ScopeOverall ScopeKind = "overall"
	ScopeGame    ScopeKind = "game"
)

// Scope is an independent rating partition: Overall or Game(id).
type Scope struct {
	Kind   ScopeKind
	GameID string
}

// Overall returns the cross-game scope.
func Overall() Scope { return Scope{Kind: ScopeOverall} }

// Game returns the scope for a single game.
func Game(id string) Scope { return Scope{Kind: ScopeGame, GameID: id} }

// IsOverall reports whether s is the cross-game scope.
func (s Scope) IsOverall() bool { return s.Kind == ScopeOverall }

// String renders "overall" or "game:<id>".
func (s Scope) String() string {
	if s.Kind == ScopeGame {
		return string(ScopeGame) + ":" + s.GameID
	}
	return string(ScopeOverall)
}

// Valid reports whether s is a well formed scope.
func (s Scope) Valid() bool {
	switch s.Kind {
	case ScopeOverall:
		return s.GameID == ""
	case ScopeGame:
		return s.GameID != ""
	default:
		return false
	}
}

// ParseScope parses the String form. An empty string means Overall.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, string(ScopeOverall)) {
		return Overall(), nil
	}
	kind, id, ok := strings.Cut(raw, ":")
	if !ok || !strings.EqualFold(kind, string(ScopeGame)) || strings.TrimSpace(id) == "" {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
	return Game(strings.TrimSpace(id)), nil
}

// MarshalJSON encodes the scope as its string form.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form.
func (s *Scope) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseScope(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
