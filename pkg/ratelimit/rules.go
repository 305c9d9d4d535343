package ratelimit

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Route keys used by the application's AI endpoints.
const (
	RouteTranscribe           = "transcribe"
	RouteGenerateNotes        = "generate-notes"
	RouteGenerateQuiz         = "generate-quiz"
	RouteGenerateFlashcards   = "generate-flashcards"
	RouteGeneratePresentation = "generate-presentation"
	RouteChat                 = "chat"
	RouteResearch             = "research"
)

// Rule is the window configuration for one route.
type Rule struct {
	Limit  int           `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

func (r Rule) validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidLimit, r.Limit)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidWindow, r.Window)
	}
	return nil
}

// Rules maps route keys to window configuration.
// Route keys without an entry use Default.
type Rules struct {
	Default Rule            `yaml:"default" json:"default"`
	Routes  map[string]Rule `yaml:"routes" json:"routes"`
}

// DefaultRules returns the production limits. Transcription is the most
// expensive call, cheap text generation gets more headroom.
func DefaultRules() Rules {
	return Rules{
		Default: Rule{Limit: 100, Window: time.Minute},
		Routes: map[string]Rule{
			RouteTranscribe:           {Limit: 5, Window: time.Minute},
			RouteGenerateNotes:        {Limit: 20, Window: time.Minute},
			RouteGenerateQuiz:         {Limit: 20, Window: time.Minute},
			RouteGenerateFlashcards:   {Limit: 20, Window: time.Minute},
			RouteGeneratePresentation: {Limit: 10, Window: time.Minute},
			RouteChat:                 {Limit: 60, Window: time.Minute},
			RouteResearch:             {Limit: 30, Window: time.Minute},
		},
	}
}

// For returns the rule for routeKey, falling back to Default.
func (r Rules) For(routeKey string) Rule {
	if rule, ok := r.Routes[routeKey]; ok {
		return rule
	}
	return r.Default
}

// Validate checks the default rule and every route rule.
func (r Rules) Validate() error {
	if err := r.Default.validate(); err != nil {
		return errors.Join(ErrInvalidRules, fmt.Errorf("default: %w", err))
	}
	for key, rule := range r.Routes {
		if key == "" {
			return errors.Join(ErrInvalidRules, errors.New("empty route key"))
		}
		if err := rule.validate(); err != nil {
			return errors.Join(ErrInvalidRules, fmt.Errorf("route %s: %w", key, err))
		}
	}
	return nil
}

// LoadRules reads a YAML rules file and overlays it on DefaultRules.
// An empty path returns DefaultRules unchanged.
//
//	default:
//	  limit: 100
//	  window: 1m
//	routes:
//	  transcribe:
//	    limit: 5
//	    window: 1m
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, errors.Join(ErrInvalidRules, err)
	}

	return ParseRules(data)
}

// ParseRules decodes YAML rules and overlays them on DefaultRules.
func ParseRules(data []byte) (Rules, error) {
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, errors.Join(ErrInvalidRules, err)
	}

	rules := DefaultRules()
	if file.Default != (Rule{}) {
		rules.Default = file.Default
	}
	maps.Copy(rules.Routes, file.Routes)

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}
