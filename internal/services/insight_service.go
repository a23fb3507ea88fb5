package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"meetingmind/internal/database"
	"meetingmind/internal/logging"
	"meetingmind/internal/models"
)

// Pattern detection thresholds: a project needs at least this many insights
// inside the lookback window before a meta-pattern probe is worth an LLM call.
const (
	patternMinInsights = 3
	patternLookback    = 7 * 24 * time.Hour
	patternTitlePrefix = "[PATTERN] "
	patternConfidence  = 0.85
)

// Insight extraction system prompt
const insightExtractionSystemPrompt = `You are a meeting-intelligence analyst. Analyze the meeting transcript and extract the important insights.

WHAT TO EXTRACT:
1. **Risks**: Anything that could derail scope, budget, schedule or safety
2. **Opportunities**: Upsells, efficiencies, new work the client hinted at
3. **Decisions**: Commitments made during the meeting
4. **Action items**: Concrete follow-ups with an implied owner
5. **Technical**: Engineering constraints, design changes, spec clarifications
6. **Strategic**: Relationship, market or long-term planning signals

RULES:
- Be concise: short title, one or two sentence description
- Only extract what is actually supported by the transcript
- Ignore small talk and scheduling chatter
- Assign severity by business impact, not by how loudly it was discussed
- confidence_score reflects how directly the transcript supports the insight

Return JSON with an array of insights. If the transcript contains nothing
noteworthy, return an empty array.`

// insightExtractionSchema defines structured output for insight extraction
var insightExtractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"insights": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Short insight title",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "One or two sentence description",
					},
					"insight_type": map[string]any{
						"type": "string",
						"enum": []string{"risk", "opportunity", "decision", "action_item", "technical", "strategic"},
					},
					"severity": map[string]any{
						"type": "string",
						"enum": []string{"low", "medium", "high", "critical"},
					},
					"confidence_score": map[string]any{
						"type":        "number",
						"description": "How directly the transcript supports this insight, 0 to 1",
					},
				},
				"required":             []string{"title", "description", "insight_type", "severity", "confidence_score"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"insights"},
	"additionalProperties": false,
}

const patternDetectionSystemPrompt = `You are a meeting-intelligence analyst looking for recurring themes. You are given the recent insights recorded for a single project. Decide whether they form a meaningful meta-pattern (the same risk resurfacing, a chain of related decisions, a client relationship trend).

Only report a pattern when the insights genuinely reinforce each other. Return has_pattern=false otherwise.`

// patternDetectionSchema defines structured output for the cross-meeting pass
var patternDetectionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"has_pattern": map[string]any{"type": "boolean"},
		"title": map[string]any{
			"type":        "string",
			"description": "Short pattern title, empty when has_pattern is false",
		},
		"description": map[string]any{
			"type":        "string",
			"description": "What the pattern is and why it matters",
		},
		"severity": map[string]any{
			"type": "string",
			"enum": []string{"low", "medium", "high", "critical"},
		},
	},
	"required":             []string{"has_pattern", "title", "description", "severity"},
	"additionalProperties": false,
}

// InsightService runs the insight extraction pipeline: per-meeting extraction
// followed by a cross-meeting pattern pass. Meetings are processed
// sequentially and LLM calls are paced to respect provider limits.
type InsightService struct {
	db        *database.DB
	llm       LLMClient
	limiter   *rate.Limiter
	batchSize int
	metrics   *Metrics

	// now is injectable for pattern-window tests
	now func() time.Time
}

// NewInsightService creates the extraction pipeline service.
func NewInsightService(db *database.DB, llm LLMClient, llmRPS float64, batchSize int) *InsightService {
	if llmRPS <= 0 {
		llmRPS = 0.5
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &InsightService{
		db:        db,
		llm:       llm,
		limiter:   rate.NewLimiter(rate.Limit(llmRPS), 1),
		batchSize: batchSize,
		metrics:   GetMetrics(),
		now:       time.Now,
	}
}

// RunBatch processes one batch of unprocessed meetings, then runs the
// cross-meeting pattern pass over recently created insights.
func (s *InsightService) RunBatch(ctx context.Context) error {
	runID := uuid.New().String()
	start := s.now()
	if s.metrics != nil {
		s.metrics.ExtractionRuns.Inc()
	}

	meetings, err := s.db.UnprocessedMeetings(s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed meetings: %w", err)
	}

	log.Printf("🧠 [INSIGHTS] Run %s: %d unprocessed meetings", runID, len(meetings))

	processed := 0
	for i := range meetings {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processMeeting(ctx, runID, &meetings[i]); err != nil {
			log.Printf("⚠️ [INSIGHTS] Meeting %d failed: %v", meetings[i].ID, err)
			continue
		}
		processed++
	}

	if err := s.patternPass(ctx, runID); err != nil {
		log.Printf("⚠️ [INSIGHTS] Pattern pass failed: %v", err)
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ExtractionLatency.Observe(elapsed.Seconds())
	}
	log.Printf("✅ [INSIGHTS] Run %s complete: %d/%d meetings in %v", runID, processed, len(meetings), elapsed)
	return nil
}

// processMeeting runs the per-meeting state machine: transcript fetch, the
// idempotency probe, the context matcher, the LLM extraction, and persistence.
func (s *InsightService) processMeeting(ctx context.Context, runID string, meeting *models.Meeting) error {
	logger := logging.WithExtractionRun(runID, meeting.ID)

	transcript, err := s.db.Transcript(meeting.ID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		logger.Debug("no transcript, skipping")
		return nil
	}

	// Idempotency: a meeting that already has insights was processed before
	exists, err := s.db.HasInsights(meeting.ID)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("insights already exist, skipping")
		return nil
	}

	projects, err := s.db.ListProjects()
	if err != nil {
		return err
	}

	match := MatchProjectContext(meeting, transcript, projects)
	if match.ProjectID != nil && meeting.ProjectID == nil {
		if err := s.db.AssignMeetingProject(meeting.ID, *match.ProjectID); err != nil {
			logger.Warn("failed to backfill project assignment", "error", err)
		}
	}

	extracted, err := s.extractInsights(ctx, meeting, transcript)
	if err != nil {
		// A failed LLM call produces zero insights for this meeting; the
		// meeting stays unprocessed and the next run picks it up again
		return err
	}

	created := 0
	for _, e := range extracted {
		insight := models.Insight{
			MeetingID:       meeting.ID,
			ProjectID:       match.ProjectID,
			Title:           e.Title,
			Description:     e.Description,
			InsightType:     e.InsightType,
			Severity:        e.Severity,
			ConfidenceScore: clampUnit(e.ConfidenceScore),
		}
		if _, err := s.db.CreateInsight(&insight); err != nil {
			logger.Warn("failed to persist insight", "error", err)
			continue
		}
		s.metrics.RecordInsight(insight.InsightType)
		created++
	}

	logger.Info("meeting processed", "insights", created, "match_confidence", match.Confidence)
	return nil
}

// extractInsights asks the LLM for structured insights and drops malformed
// entries lacking required fields.
func (s *InsightService) extractInsights(ctx context.Context, meeting *models.Meeting, transcript string) ([]models.ExtractedInsight, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`MEETING: %s (%s)
PARTICIPANTS: %s

TRANSCRIPT:
%s`,
		meeting.Title, meeting.Date.Format("2006-01-02"),
		strings.Join(meeting.Participants, ", "), transcript)

	var result models.ExtractionResult
	if err := s.llm.CompleteJSON(ctx, insightExtractionSystemPrompt, userPrompt, "insight_extraction", insightExtractionSchema, &result); err != nil {
		return nil, err
	}

	var valid []models.ExtractedInsight
	for _, e := range result.Insights {
		if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Description) == "" {
			continue
		}
		if !models.ValidInsightType(e.InsightType) || !models.ValidSeverity(e.Severity) {
			continue
		}
		valid = append(valid, e)
	}
	return valid, nil
}

// patternPass groups recently created insights by project and asks the LLM
// for a meta-pattern when a project has accumulated enough of them and has no
// pattern insight in the window yet.
func (s *InsightService) patternPass(ctx context.Context, runID string) error {
	since := s.now().Add(-patternLookback)
	grouped, err := s.db.RecentInsightsByProject(since)
	if err != nil {
		return err
	}

	for projectID, insights := range grouped {
		if len(insights) < patternMinInsights {
			continue
		}
		if hasPatternInsight(insights) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.detectPattern(ctx, projectID, insights); err != nil {
			log.Printf("⚠️ [INSIGHTS] Run %s: pattern detection for project %d failed: %v", runID, projectID, err)
		}
	}
	return nil
}

func (s *InsightService) detectPattern(ctx context.Context, projectID int, insights []models.Insight) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var lines []string
	for _, in := range insights {
		lines = append(lines, fmt.Sprintf("- [%s/%s] %s: %s", in.InsightType, in.Severity, in.Title, in.Description))
	}
	userPrompt := "RECENT INSIGHTS FOR THIS PROJECT:\n" + strings.Join(lines, "\n")

	var result models.PatternResult
	if err := s.llm.CompleteJSON(ctx, patternDetectionSystemPrompt, userPrompt, "pattern_detection", patternDetectionSchema, &result); err != nil {
		return err
	}
	if !result.HasPattern || strings.TrimSpace(result.Title) == "" {
		return nil
	}

	severity := result.Severity
	if !models.ValidSeverity(severity) {
		severity = models.SeverityMedium
	}

	// Anchor the synthetic insight to the newest contributing meeting
	meetingID := insights[len(insights)-1].MeetingID

	insight := models.Insight{
		MeetingID:       meetingID,
		ProjectID:       &projectID,
		Title:           patternTitlePrefix + result.Title,
		Description:     result.Description,
		InsightType:     models.InsightTypeStrategic,
		Severity:        severity,
		ConfidenceScore: patternConfidence,
	}
	if _, err := s.db.CreateInsight(&insight); err != nil {
		return err
	}
	s.metrics.RecordInsight(insight.InsightType)
	log.Printf("🔁 [INSIGHTS] Pattern recorded for project %d: %s", projectID, result.Title)
	return nil
}

func hasPatternInsight(insights []models.Insight) bool {
	for _, in := range insights {
		if strings.HasPrefix(in.Title, patternTitlePrefix) {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
