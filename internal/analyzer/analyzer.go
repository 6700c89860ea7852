package analyzer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"wellness-crisis/internal/lexicon"
	"wellness-crisis/internal/models"

	"go.uber.org/zap"
)

// ErrEmptyInput the text to analyze was empty or whitespace only.
var ErrEmptyInput = errors.New("analysis input is empty")

// maxConfidence confidence is never reported above this.
const maxConfidence = 0.95

// Source provides the lexicon snapshot to analyze against. The lexicon
// watcher satisfies this; tests can supply a fixed snapshot.
type Source interface {
	Current() *lexicon.Lexicon
}

// StaticSource a Source that always returns the same snapshot.
type StaticSource struct {
	Lexicon *lexicon.Lexicon
}

// Current implements Source.
func (s StaticSource) Current() *lexicon.Lexicon { return s.Lexicon }

// Thresholds aggregate-score cutoffs for risk classification.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// Analyzer scans text against the current lexicon snapshot and classifies
// aggregate risk. Stateless apart from a compiled-pattern cache; safe for
// concurrent use.
type Analyzer struct {
	source     Source
	scanLimit  int
	thresholds Thresholds
	logger     *zap.Logger

	// compiled pattern cache for the last seen snapshot
	compiled atomic.Pointer[compiledLexicon]
}

type compiledLexicon struct {
	lex        *lexicon.Lexicon
	categories []compiledCategory
}

type compiledCategory struct {
	category models.RiskCategory
	patterns []*regexp.Regexp
}

// New creates an analyzer. scanLimit caps how many characters of each text
// are scanned (cost control); thresholds come from configuration, not
// hard-coded literals.
func New(source Source, scanLimit int, thresholds Thresholds, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		source:     source,
		scanLimit:  scanLimit,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Analyze scans text and returns a risk assessment. Oversized input is
// truncated to the scan limit, never rejected. Pure over the lexicon
// snapshot: no side effects.
func (a *Analyzer) Analyze(text string) (*models.RiskAssessment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	lex := a.source.Current()
	if lex == nil {
		return nil, fmt.Errorf("no lexicon snapshot available")
	}

	compiled, err := a.compiledFor(lex)
	if err != nil {
		return nil, fmt.Errorf("failed to compile lexicon %s: %w", lex.Version, err)
	}

	originalLen := len([]rune(text))
	scanned, truncated := truncateRunes(text, a.scanLimit)

	assessment := &models.RiskAssessment{
		TextLength:     originalLen,
		Truncated:      truncated,
		LexiconVersion: lex.Version,
		AnalyzedAt:     time.Now().UTC(),
	}

	for _, cc := range compiled.categories {
		match := models.CategoryMatch{
			Category: cc.category.ID,
			Severity: cc.category.Severity,
		}
		for _, re := range cc.patterns {
			for _, span := range re.FindAllStringIndex(scanned, -1) {
				match.Count++
				match.Phrases = append(match.Phrases, strings.ToLower(scanned[span[0]:span[1]]))
				match.Spans = append(match.Spans, models.MatchSpan{Start: span[0], End: span[1]})
			}
		}
		if match.Count > 0 {
			match.Score = float64(match.Count) * cc.category.Weight
			assessment.Matches = append(assessment.Matches, match)
			assessment.Score += match.Score
		}
	}

	assessment.Level = a.classify(assessment.Score, assessment.Matches)
	assessment.Confidence = confidence(assessment.Score)

	return assessment, nil
}

// classify maps an aggregate score to a risk level, with the floor rule:
// any ideation or self-harm match is never classified low.
func (a *Analyzer) classify(score float64, matches []models.CategoryMatch) models.RiskLevel {
	level := models.RiskLow
	switch {
	case score >= a.thresholds.Critical:
		level = models.RiskCritical
	case score >= a.thresholds.High:
		level = models.RiskHigh
	case score >= a.thresholds.Medium:
		level = models.RiskMedium
	}

	if level == models.RiskLow {
		for _, m := range matches {
			if m.Severity.EscalatesFaster() {
				return models.RiskMedium
			}
		}
	}

	return level
}

func confidence(score float64) float64 {
	c := score / 10
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

// compiledFor returns compiled patterns for the snapshot, reusing the
// cache when the snapshot has not changed since the last call.
func (a *Analyzer) compiledFor(lex *lexicon.Lexicon) (*compiledLexicon, error) {
	if cached := a.compiled.Load(); cached != nil && cached.lex == lex {
		return cached, nil
	}

	compiled := &compiledLexicon{lex: lex}
	for _, cat := range lex.Categories {
		cc := compiledCategory{category: cat}
		for _, phrase := range cat.Patterns {
			// Case-insensitive, word-boundary matching so patterns never
			// fire inside unrelated words.
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("category %s pattern %q: %w", cat.ID, phrase, err)
			}
			cc.patterns = append(cc.patterns, re)
		}
		compiled.categories = append(compiled.categories, cc)
	}

	a.compiled.Store(compiled)
	if a.logger != nil {
		a.logger.Debug("Compiled lexicon patterns",
			zap.String("version", lex.Version),
			zap.Int("categories", len(compiled.categories)),
		)
	}
	return compiled, nil
}

// truncateRunes cuts s to at most limit runes.
func truncateRunes(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}
