package models

import "time"

// Insight types produced by the extraction pipeline.
const (
	InsightTypeRisk        = "risk"
	InsightTypeOpportunity = "opportunity"
	InsightTypeDecision    = "decision"
	InsightTypeActionItem  = "action_item"
	InsightTypeTechnical   = "technical"
	InsightTypeStrategic   = "strategic"
)

// Insight severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Insight is a single structured finding extracted from a meeting transcript.
// Rows are append-only: only the Resolved flag is ever mutated, by a human
// reviewer, and nothing in this service deletes them.
type Insight struct {
	ID              int       `json:"id"`
	MeetingID       int       `json:"meeting_id"`
	ProjectID       *int      `json:"project_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	InsightType     string    `json:"insight_type"`
	Severity        string    `json:"severity"`
	ConfidenceScore float64   `json:"confidence_score"`
	Resolved        bool      `json:"resolved"`
	CreatedAt       time.Time `json:"created_at"`
}

// ValidInsightType reports whether t is one of the known insight types.
func ValidInsightType(t string) bool {
	switch t {
	case InsightTypeRisk, InsightTypeOpportunity, InsightTypeDecision,
		InsightTypeActionItem, InsightTypeTechnical, InsightTypeStrategic:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ExtractedInsight is the shape the LLM returns for a single insight before
// validation and persistence.
type ExtractedInsight struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	InsightType     string  `json:"insight_type"`
	Severity        string  `json:"severity"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// ExtractionResult is the structured-output envelope for insight extraction.
type ExtractionResult struct {
	Insights []ExtractedInsight `json:"insights"`
}

// PatternResult is the structured-output envelope for the cross-meeting
// pattern detection pass.
type PatternResult struct {
	HasPattern  bool   `json:"has_pattern"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}
