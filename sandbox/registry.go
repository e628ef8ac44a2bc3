package sandbox

import (
	"fmt"
	"sort"
)

// LanguageProfile describes how a single language is executed: which image
// to run it in, what the staged source file must be called, and the command
// (or compile-then-run command pair) to issue inside the container.
// Profiles are immutable once registered.
type LanguageProfile struct {
	Key      string
	Image    string
	Filename string
	Compile  []string // empty for single-phase (interpreted) languages
	Run      []string
}

// TwoPhase reports whether the language requires a separate compile step
// before the run step.
func (p LanguageProfile) TwoPhase() bool { return len(p.Compile) > 0 }

// Registry maps language keys to their execution profiles. Adding a language
// is a data change (one Register call or one entry below), not an executor
// code change.
type Registry struct {
	profiles map[string]LanguageProfile
}

// defaultProfiles is the reference language table.
func defaultProfiles() []LanguageProfile {
	return []LanguageProfile{
		{Key: "python", Image: "python:3.11-slim", Filename: "main.py",
			Run: []string{"python", "main.py"}},
		{Key: "java", Image: "openjdk:11-jdk-slim", Filename: "Main.java",
			Compile: []string{"javac", "Main.java"},
			Run:     []string{"java", "Main"}},
		{Key: "javascript", Image: "node:18-alpine", Filename: "main.js",
			Run: []string{"node", "main.js"}},
		{Key: "typescript", Image: "node:18-alpine", Filename: "main.ts",
			Compile: []string{"npx", "tsc", "main.ts"},
			Run:     []string{"node", "main.js"}},
		{Key: "go", Image: "golang:1.21-alpine", Filename: "main.go",
			Run: []string{"go", "run", "main.go"}},
		{Key: "rust", Image: "rust:1.75-slim", Filename: "main.rs",
			Compile: []string{"rustc", "main.rs"},
			Run:     []string{"./main"}},
		{Key: "c", Image: "gcc:latest", Filename: "main.c",
			Compile: []string{"gcc", "-o", "main", "main.c"},
			Run:     []string{"./main"}},
		{Key: "cpp", Image: "gcc:latest", Filename: "main.cpp",
			Compile: []string{"g++", "-o", "main", "main.cpp"},
			Run:     []string{"./main"}},
		{Key: "csharp", Image: "mcr.microsoft.com/dotnet/sdk:8.0", Filename: "Program.cs",
			Run: []string{"dotnet", "run", "--project", "."}},
		{Key: "php", Image: "php:8.2-cli", Filename: "main.php",
			Run: []string{"php", "main.php"}},
		{Key: "ruby", Image: "ruby:3.2-slim", Filename: "main.rb",
			Run: []string{"ruby", "main.rb"}},
	}
}

// NewRegistry creates a registry pre-populated with the default language
// table. Per-language image overrides replace the default image reference
// while keeping filenames and commands.
func NewRegistry(imageOverrides map[string]string) *Registry {
	r := &Registry{profiles: make(map[string]LanguageProfile)}
	for _, p := range defaultProfiles() {
		if img, ok := imageOverrides[p.Key]; ok && img != "" {
			p.Image = img
		}
		r.Register(p)
	}
	return r
}

// Register adds or replaces a language profile.
func (r *Registry) Register(p LanguageProfile) {
	r.profiles[p.Key] = p
}

// Resolve looks up the profile for a language key.
func (r *Registry) Resolve(key string) (LanguageProfile, error) {
	p, ok := r.profiles[key]
	if !ok {
		return LanguageProfile{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, key)
	}
	return p, nil
}

// Keys returns the registered language keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SupportedLanguages returns the language keys of the default table.
func SupportedLanguages() []string {
	return NewRegistry(nil).Keys()
}
