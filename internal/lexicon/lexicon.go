package lexicon

import (
	"fmt"
	"os"

	"wellness-crisis/internal/models"

	"gopkg.in/yaml.v3"
)

// Lexicon an immutable, versioned snapshot of risk categories. Historical
// alerts record the version that produced them, so a snapshot is never
// mutated in place; reloading produces a new snapshot.
type Lexicon struct {
	Version    string                `yaml:"version"`
	Categories []models.RiskCategory `yaml:"categories"`
}

// Default returns the built-in lexicon used when no lexicon file is
// configured. Ideation carries the heaviest weight: a single ideation
// phrase alone must classify critical under the default thresholds.
func Default() *Lexicon {
	return &Lexicon{
		Version: "builtin-1",
		Categories: []models.RiskCategory{
			{
				ID:       "suicidal_ideation",
				Severity: models.SeverityIdeation,
				Weight:   8,
				Patterns: []string{
					"kill myself", "end it all", "not worth living", "better off dead",
					"suicide", "end my life", "want to die", "don't want to live",
				},
			},
			{
				ID:       "self_harm",
				Severity: models.SeveritySelfHarm,
				Weight:   3,
				Patterns: []string{
					"hurt myself", "cut myself", "self harm", "burn myself",
					"punish myself", "deserve pain", "self injury",
				},
			},
			{
				ID:       "substance_misuse",
				Severity: models.SeveritySubstance,
				Weight:   1,
				Patterns: []string{
					"drink too much", "alcohol problem", "drug problem", "addiction",
					"overdose", "too many pills", "substance abuse",
				},
			},
			{
				ID:       "disordered_eating",
				Severity: models.SeverityEating,
				Weight:   1,
				Patterns: []string{
					"starve myself", "purge", "eating disorder",
					"anorexia", "bulimia", "binge eating",
				},
			},
			{
				ID:       "violence",
				Severity: models.SeverityViolence,
				Weight:   1,
				Patterns: []string{
					"hurt someone", "violent thoughts", "lose control", "dangerous thoughts",
				},
			},
		},
	}
}

// Load reads and validates a YAML lexicon file.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return nil, fmt.Errorf("lexicon path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file: %w", err)
	}

	if err := lex.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lexicon %q: %w", path, err)
	}

	return &lex, nil
}

// Validate checks structural invariants of a lexicon snapshot.
func (l *Lexicon) Validate() error {
	if l.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(l.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	seen := map[string]bool{}
	for i, cat := range l.Categories {
		if cat.ID == "" {
			return fmt.Errorf("category %d: id is required", i)
		}
		if seen[cat.ID] {
			return fmt.Errorf("duplicate category id: %s", cat.ID)
		}
		seen[cat.ID] = true
		if !models.ValidSeverityClass(cat.Severity) {
			return fmt.Errorf("category %s: unknown severity class %q", cat.ID, cat.Severity)
		}
		if cat.Weight <= 0 {
			return fmt.Errorf("category %s: weight must be positive, got %v", cat.ID, cat.Weight)
		}
		if len(cat.Patterns) == 0 {
			return fmt.Errorf("category %s: at least one pattern is required", cat.ID)
		}
		for j, p := range cat.Patterns {
			if p == "" {
				return fmt.Errorf("category %s: pattern %d is empty", cat.ID, j)
			}
		}
	}

	return nil
}
