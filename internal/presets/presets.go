// Package presets stores named caption and animation style presets.
package presets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindCaption   Kind = "caption"
	KindAnimation Kind = "animation"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCaption, KindAnimation:
		return k, true
	}
	return "", false
}

type Preset struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Name      string         `json:"name"`
	Settings  map[string]any `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

var (
	ErrNotFound      = errors.New("preset not found")
	ErrDuplicateName = errors.New("a preset with this name already exists")
	ErrInvalid       = errors.New("invalid preset")
)

// Store is the preset capability a session depends on.
type Store interface {
	// List returns presets of kind, or of every kind when kind is empty.
	List(ctx context.Context, kind Kind) ([]*Preset, error)
	Get(ctx context.Context, id string) (*Preset, error)
	// Save creates p when p.ID is empty and updates it otherwise. Names are
	// unique per kind.
	Save(ctx context.Context, p *Preset) error
	Delete(ctx context.Context, id string) error
}

func validate(p *Preset) error {
	if _, ok := ParseKind(string(p.Kind)); !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, p.Kind)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return nil
}

// BuiltinStyles are the animation styles available without a preset.
var BuiltinStyles = map[string]map[string]any{
	"minimal":   {"font": "Inter", "motion": "fade", "palette": "mono"},
	"bold":      {"font": "Anton", "motion": "pop", "palette": "high-contrast"},
	"playful":   {"font": "Baloo", "motion": "bounce", "palette": "pastel"},
	"cinematic": {"font": "Playfair Display", "motion": "slow-zoom", "palette": "film"},
	"corporate": {"font": "IBM Plex Sans", "motion": "slide", "palette": "brand"},
}

// ResolveStyle returns the settings for a built-in style or, failing that,
// for the animation preset named name.
func ResolveStyle(ctx context.Context, store Store, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if settings, ok := BuiltinStyles[strings.ToLower(name)]; ok {
		return settings, nil
	}
	if store == nil {
		return nil, fmt.Errorf("style %q: %w", name, ErrNotFound)
	}
	list, err := store.List(ctx, KindAnimation)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if strings.EqualFold(p.Name, name) {
			return p.Settings, nil
		}
	}
	return nil, fmt.Errorf("style %q: %w", name, ErrNotFound)
}
