package language

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnsupportedLanguage is returned for language ids outside the
// registered set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// DefaultTimeout is the per-stage deadline applied when neither the
// profile nor the host configuration specifies one.
const DefaultTimeout = 60 * time.Second

// builtins returns the profile table for the eleven supported languages.
// HTML and CSS are "run" by handing the file to the desktop's default
// browser, the same behavior the editor shell expects for markup.
func builtins(timeout time.Duration) []Profile {
	return []Profile{
		{
			ID:         "python",
			SourceFile: "main.py",
			Run:        []string{"python3", PlaceholderSource},
			Image:      "python:3.12-slim",
			Timeout:    timeout,
		},
		{
			ID:         "c",
			SourceFile: "main.c",
			Binary:     "main.out",
			Compile:    []string{"gcc", PlaceholderSource, "-o", PlaceholderBinary},
			Run:        []string{PlaceholderBinary},
			Image:      "gcc:14",
			Timeout:    timeout,
		},
		{
			ID:         "cpp",
			SourceFile: "main.cpp",
			Binary:     "main.out",
			Compile:    []string{"g++", PlaceholderSource, "-o", PlaceholderBinary},
			Run:        []string{PlaceholderBinary},
			Image:      "gcc:14",
			Timeout:    timeout,
		},
		{
			ID:         "javascript",
			SourceFile: "main.js",
			Run:        []string{"node", PlaceholderSource},
			Image:      "node:22-slim",
			Timeout:    timeout,
		},
		{
			ID:         "typescript",
			SourceFile: "main.ts",
			Binary:     "main.js",
			Compile:    []string{"tsc", "--outFile", PlaceholderBinary, PlaceholderSource},
			Run:        []string{"node", PlaceholderBinary},
			Image:      "node:22-slim",
			Timeout:    timeout,
		},
		{
			ID:         "rust",
			SourceFile: "main.rs",
			Binary:     "main.out",
			Compile:    []string{"rustc", PlaceholderSource, "-o", PlaceholderBinary},
			Run:        []string{PlaceholderBinary},
			Image:      "rust:1-slim",
			Timeout:    timeout,
		},
		{
			ID:         "java",
			SourceFile: "Main.java",
			Compile:    []string{"javac", "-d", PlaceholderDir, PlaceholderSource},
			Run:        []string{"java", "-cp", PlaceholderDir, "Main"},
			Image:      "eclipse-temurin:21",
			Timeout:    timeout,
		},
		{
			ID:         "lua",
			SourceFile: "main.lua",
			Run:        []string{"lua", PlaceholderSource},
			Image:      "nickblah/lua:5.4",
			Timeout:    timeout,
		},
		{
			// go run compiles to a throwaway binary itself, so the profile
			// is run-only.
			ID:         "go",
			SourceFile: "main.go",
			Run:        []string{"go", "run", PlaceholderSource},
			Image:      "golang:1.25",
			Timeout:    timeout,
		},
		{
			ID:         "html",
			SourceFile: "index.html",
			Run:        []string{"xdg-open", PlaceholderSource},
			Timeout:    timeout,
		},
		{
			ID:         "css",
			SourceFile: "main.css",
			Run:        []string{"xdg-open", PlaceholderSource},
			Timeout:    timeout,
		},
	}
}

// Registry is the read-only table of language profiles. It is safe for
// concurrent use once constructed.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds the registry from the builtin table, applying the
// fallback timeout and any per-language overrides. Overrides naming an
// unregistered language are rejected.
func NewRegistry(defaultTimeout time.Duration, overrides *Overrides) (*Registry, error) {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}

	profiles := make(map[string]Profile)
	for _, p := range builtins(defaultTimeout) {
		profiles[p.ID] = p
	}

	if overrides != nil {
		for _, o := range overrides.Languages {
			p, ok := profiles[o.ID]
			if !ok {
				return nil, fmt.Errorf("override for %q: %w", o.ID, ErrUnsupportedLanguage)
			}
			if err := o.apply(&p); err != nil {
				return nil, fmt.Errorf("override for %q: %w", o.ID, err)
			}
			profiles[o.ID] = p
		}
	}

	return &Registry{profiles: profiles}, nil
}

// Profile returns the profile for the given language id.
func (r *Registry) Profile(id string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, id)
	}
	return p, nil
}

// List returns all profiles sorted by id.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
