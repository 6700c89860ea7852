package models

import (
	"time"
)

// RiskLevel overall severity classification produced by text analysis.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskRanks orders levels so they can be compared and merged.
var riskRanks = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the ordering of the level (low=0 .. critical=3).
// Unknown levels rank below low.
func (l RiskLevel) Rank() int {
	if rank, ok := riskRanks[l]; ok {
		return rank
	}
	return -1
}

// Valid reports whether l is one of the four defined levels.
func (l RiskLevel) Valid() bool {
	_, ok := riskRanks[l]
	return ok
}

// AtLeast reports whether l is at least as severe as other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.Rank() >= other.Rank()
}

// MaxRiskLevel returns the more severe of two levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SeverityClass classifies a lexicon category.
type SeverityClass string

const (
	SeverityIdeation  SeverityClass = "ideation"
	SeveritySelfHarm  SeverityClass = "self-harm"
	SeveritySubstance SeverityClass = "substance"
	SeverityEating    SeverityClass = "eating"
	SeverityViolence  SeverityClass = "violence"
)

// ValidSeverityClass reports whether s is a known class.
func ValidSeverityClass(s SeverityClass) bool {
	switch s {
	case SeverityIdeation, SeveritySelfHarm, SeveritySubstance, SeverityEating, SeverityViolence:
		return true
	}
	return false
}

// EscalatesFaster reports whether matches in this class force a minimum
// risk level regardless of aggregate score. Ideation and self-harm matches
// are never classified low.
func (s SeverityClass) EscalatesFaster() bool {
	return s == SeverityIdeation || s == SeveritySelfHarm
}

// RiskCategory one lexicon entry: a set of trigger patterns with a weight.
type RiskCategory struct {
	ID       string        `json:"id" yaml:"id"`
	Severity SeverityClass `json:"severity" yaml:"severity"`
	Weight   float64       `json:"weight" yaml:"weight"`
	Patterns []string      `json:"patterns" yaml:"patterns"`
}

// MatchSpan byte offsets of one pattern match within the scanned text.
type MatchSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CategoryMatch matches found for one category during analysis.
type CategoryMatch struct {
	Category string        `json:"category"`
	Severity SeverityClass `json:"severity"`
	Count    int           `json:"count"`
	Phrases  []string      `json:"phrases"`
	Spans    []MatchSpan   `json:"spans"`
	Score    float64       `json:"score"` // count * category weight
}

// RiskAssessment result of analyzing one text blob. Ephemeral: embedded
// into the record that triggered analysis and into any resulting alert,
// never persisted standalone.
type RiskAssessment struct {
	TextLength     int             `json:"text_length"` // length before truncation
	Truncated      bool            `json:"truncated"`
	Matches        []CategoryMatch `json:"matches"`
	Score          float64         `json:"score"`
	Level          RiskLevel       `json:"level"`
	Confidence     float64         `json:"confidence"`
	LexiconVersion string          `json:"lexicon_version"`
	AnalyzedAt     time.Time       `json:"analyzed_at"`
}

// HasMatches reports whether any category matched.
func (a *RiskAssessment) HasMatches() bool {
	return len(a.Matches) > 0
}
