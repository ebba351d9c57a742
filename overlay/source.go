// Package overlay merges layered configuration values, strongest source
// winning, and deep-clones values so detached copies cannot alias live
// state.
package overlay

import (
	"fmt"
	"sort"
	"strings"
)

// Level ranks where a configuration layer came from. Higher wins.
type Level int

const (
	// LevelUnknown guards zero values; Chain rejects it.
	LevelUnknown Level = iota
	// LevelDefault is compiled-in configuration.
	LevelDefault
	// LevelFile is configuration loaded from spec files.
	LevelFile
	// LevelEnv is configuration from environment variables.
	LevelEnv
	// LevelCode is configuration set programmatically.
	LevelCode
)

func (l Level) String() string {
	switch l {
	case LevelDefault:
		return "default"
	case LevelFile:
		return "file"
	case LevelEnv:
		return "env"
	case LevelCode:
		return "code"
	default:
		return "unknown"
	}
}

// ParseLevel reads a level name, case-insensitively.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "default":
		return LevelDefault, nil
	case "file":
		return LevelFile, nil
	case "env":
		return LevelEnv, nil
	case "code":
		return LevelCode, nil
	default:
		return LevelUnknown, fmt.Errorf("overlay: unknown level %q", name)
	}
}

// Source identifies one configuration layer.
type Source struct {
	Level Level
	// Name disambiguates sources sharing a level, e.g. two file paths.
	Name string
}

func (s Source) String() string {
	if s.Name == "" {
		return s.Level.String()
	}
	return s.Level.String() + ":" + s.Name
}

// Identifier returns a slug usable as a map key.
func (s Source) Identifier() string {
	slug := s.String()
	slug = strings.ToLower(slug)
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}

// Chain is an ordered set of sources, strongest first. Duplicate
// identifiers collapse to their first occurrence.
type Chain struct {
	sources []Source
}

// NewChain validates and orders the sources.
func NewChain(sources ...Source) (*Chain, error) {
	seen := map[string]bool{}
	ordered := make([]Source, 0, len(sources))
	for _, source := range sources {
		if source.Level == LevelUnknown {
			return nil, fmt.Errorf("overlay: source %q has unknown level", source.Name)
		}
		id := source.Identifier()
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, source)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Level != ordered[j].Level {
			return ordered[i].Level > ordered[j].Level
		}
		return ordered[i].Name < ordered[j].Name
	})
	return &Chain{sources: ordered}, nil
}

// Ordered returns the sources strongest first.
func (c *Chain) Ordered() []Source {
	return append([]Source(nil), c.sources...)
}

// Strongest returns the highest ranked source.
func (c *Chain) Strongest() (Source, bool) {
	if len(c.sources) == 0 {
		return Source{}, false
	}
	return c.sources[0], true
}

// Weakest returns the lowest ranked source.
func (c *Chain) Weakest() (Source, bool) {
	if len(c.sources) == 0 {
		return Source{}, false
	}
	return c.sources[len(c.sources)-1], true
}
