package services

import (
	"context"
	"os"
	"strings"
	"testing"

	"meetingmind/internal/database"
	"meetingmind/internal/models"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	tmpFile := "test_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := database.New(tmpFile)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(tmpFile)
		os.Remove(tmpFile + "-wal")
		os.Remove(tmpFile + "-shm")
	}

	return db, cleanup
}

// stubLLM answers structured-output calls from canned results.
type stubLLM struct {
	extraction      models.ExtractionResult
	pattern         models.PatternResult
	err             error
	extractionCalls int
	patternCalls    int
}

func (s *stubLLM) CompleteJSON(_ context.Context, _, _, schemaName string, _ map[string]any, out any) error {
	if s.err != nil {
		return s.err
	}
	switch schemaName {
	case "insight_extraction":
		s.extractionCalls++
		*out.(*models.ExtractionResult) = s.extraction
	case "pattern_detection":
		s.patternCalls++
		*out.(*models.PatternResult) = s.pattern
	}
	return nil
}

func seedProject(t *testing.T, db *database.DB, name, jobNumber string) int {
	result, err := db.Exec(`INSERT INTO projects (name, job_number) VALUES (?, ?)`, name, jobNumber)
	if err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	id, _ := result.LastInsertId()
	return int(id)
}

func seedMeeting(t *testing.T, db *database.DB, title, transcript string) int {
	result, err := db.Exec(`
		INSERT INTO meetings (title, date, participants)
		VALUES (?, '2026-08-01 10:00:00', '["alice@acme.com"]')
	`, title)
	if err != nil {
		t.Fatalf("Failed to seed meeting: %v", err)
	}
	id, _ := result.LastInsertId()

	if transcript != "" {
		if _, err := db.Exec(`
			INSERT INTO transcript_chunks (meeting_id, chunk_index, content)
			VALUES (?, 0, ?)
		`, id, transcript); err != nil {
			t.Fatalf("Failed to seed transcript: %v", err)
		}
	}
	return int(id)
}

func newTestInsightService(db *database.DB, llm LLMClient) *InsightService {
	// High RPS so the pacing limiter doesn't slow tests down
	return NewInsightService(db, llm, 1000, 10)
}

func TestInsightService_RunBatch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	projectID := seedProject(t, db, "Riverside Tower", "4412")
	meetingID := seedMeeting(t, db, "Riverside Tower weekly", "Concrete pour slipped a week. Job number: 4412.")

	llm := &stubLLM{
		extraction: models.ExtractionResult{Insights: []models.ExtractedInsight{
			{Title: "Schedule slip", Description: "Concrete pour delayed a week", InsightType: "risk", Severity: "high", ConfidenceScore: 0.9},
			{Title: "Crane sharing", Description: "Crane can be shared with the adjacent lot", InsightType: "opportunity", Severity: "low", ConfidenceScore: 0.6},
			{Title: "", Description: "missing title, must be dropped", InsightType: "risk", Severity: "low", ConfidenceScore: 0.5},
			{Title: "Bad type", Description: "unknown insight type, must be dropped", InsightType: "gossip", Severity: "low", ConfidenceScore: 0.5},
		}},
	}

	service := newTestInsightService(db, llm)
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	insights, err := db.ListInsights(database.InsightFilter{MeetingID: &meetingID})
	if err != nil {
		t.Fatalf("Failed to list insights: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("Expected 2 valid insights persisted, got %d", len(insights))
	}
	for _, in := range insights {
		if in.ProjectID == nil || *in.ProjectID != projectID {
			t.Errorf("Insight should carry the matched project, got %v", in.ProjectID)
		}
	}

	// The matcher's result is backfilled onto the meeting
	meeting, err := db.GetMeeting(meetingID)
	if err != nil {
		t.Fatalf("Failed to fetch meeting: %v", err)
	}
	if meeting.ProjectID == nil || *meeting.ProjectID != projectID {
		t.Errorf("Expected meeting backfilled with project %d, got %v", projectID, meeting.ProjectID)
	}
}

func TestInsightService_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	meetingID := seedMeeting(t, db, "Planning catch-up", "We decided to move the deadline.")

	llm := &stubLLM{
		extraction: models.ExtractionResult{Insights: []models.ExtractedInsight{
			{Title: "Deadline moved", Description: "Deadline pushed out", InsightType: "decision", Severity: "medium", ConfidenceScore: 0.8},
		}},
	}

	service := newTestInsightService(db, llm)
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if llm.extractionCalls != 1 {
		t.Errorf("Expected exactly one extraction call across two runs, got %d", llm.extractionCalls)
	}

	insights, err := db.ListInsights(database.InsightFilter{MeetingID: &meetingID})
	if err != nil {
		t.Fatalf("Failed to list insights: %v", err)
	}
	if len(insights) != 1 {
		t.Errorf("Second run must not duplicate insights, got %d", len(insights))
	}
}

func TestInsightService_SkipsEmptyTranscript(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedMeeting(t, db, "No transcript yet", "")

	llm := &stubLLM{}
	service := newTestInsightService(db, llm)
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	if llm.extractionCalls != 0 {
		t.Errorf("Meetings without transcripts must not reach the LLM, got %d calls", llm.extractionCalls)
	}
}

func TestInsightService_LLMFailureLeavesMeetingUnprocessed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	meetingID := seedMeeting(t, db, "Flaky provider", "Some content worth extracting.")

	llm := &stubLLM{err: context.DeadlineExceeded}
	service := newTestInsightService(db, llm)
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	insights, err := db.ListInsights(database.InsightFilter{MeetingID: &meetingID})
	if err != nil {
		t.Fatalf("Failed to list insights: %v", err)
	}
	if len(insights) != 0 {
		t.Fatalf("Failed extraction must persist nothing, got %d", len(insights))
	}

	// Next run with a healthy provider picks the meeting up again
	llm.err = nil
	llm.extraction = models.ExtractionResult{Insights: []models.ExtractedInsight{
		{Title: "Recovered", Description: "Extraction succeeded on retry", InsightType: "technical", Severity: "low", ConfidenceScore: 0.7},
	}}
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	insights, _ = db.ListInsights(database.InsightFilter{MeetingID: &meetingID})
	if len(insights) != 1 {
		t.Errorf("Expected the meeting to be processed on the next run, got %d insights", len(insights))
	}
}

func TestInsightService_PatternPass(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	projectID := seedProject(t, db, "Harbor Bridge", "9001")
	meetingID := seedMeeting(t, db, "Harbor Bridge sync", "")

	// Three recent insights for the project trip the pattern probe
	for i := 0; i < 3; i++ {
		insight := models.Insight{
			MeetingID:       meetingID,
			ProjectID:       &projectID,
			Title:           "Supplier delay",
			Description:     "Steel supplier slipped again",
			InsightType:     models.InsightTypeRisk,
			Severity:        models.SeverityHigh,
			ConfidenceScore: 0.8,
		}
		if _, err := db.CreateInsight(&insight); err != nil {
			t.Fatalf("Failed to seed insight: %v", err)
		}
	}

	llm := &stubLLM{
		pattern: models.PatternResult{
			HasPattern:  true,
			Title:       "Recurring supplier risk",
			Description: "The same steel supplier has slipped three times",
			Severity:    "high",
		},
	}

	service := newTestInsightService(db, llm)
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	if llm.patternCalls != 1 {
		t.Fatalf("Expected one pattern probe, got %d", llm.patternCalls)
	}

	insights, err := db.ListInsights(database.InsightFilter{ProjectID: &projectID})
	if err != nil {
		t.Fatalf("Failed to list insights: %v", err)
	}

	var pattern *models.Insight
	for i := range insights {
		if strings.HasPrefix(insights[i].Title, "[PATTERN] ") {
			pattern = &insights[i]
		}
	}
	if pattern == nil {
		t.Fatal("Expected a synthetic pattern insight")
	}
	if pattern.InsightType != models.InsightTypeStrategic {
		t.Errorf("Pattern insight must be strategic, got %s", pattern.InsightType)
	}
	if pattern.ConfidenceScore != 0.85 {
		t.Errorf("Pattern insight must carry fixed confidence 0.85, got %v", pattern.ConfidenceScore)
	}

	// A second run sees the existing pattern insight and does not probe again
	if err := service.RunBatch(context.Background()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if llm.patternCalls != 1 {
		t.Errorf("Pattern probe must not repeat inside the window, got %d calls", llm.patternCalls)
	}
}
