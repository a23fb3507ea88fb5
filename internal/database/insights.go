package database

import (
	"fmt"
	"time"

	"meetingmind/internal/models"
)

// CreateInsight persists one extracted insight and returns its ID.
func (db *DB) CreateInsight(in *models.Insight) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO insights (meeting_id, project_id, title, description, insight_type, severity, confidence_score, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, in.MeetingID, in.ProjectID, in.Title, in.Description, in.InsightType, in.Severity, in.ConfidenceScore, boolToInt(in.Resolved))
	if err != nil {
		return 0, fmt.Errorf("failed to create insight: %w", err)
	}
	return result.LastInsertId()
}

// HasInsights reports whether any insights exist for a meeting. This is the
// idempotency probe the extraction pipeline runs before doing any LLM work.
func (db *DB) HasInsights(meetingID int) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM insights WHERE meeting_id = ?`, meetingID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check insights for meeting %d: %w", meetingID, err)
	}
	return count > 0, nil
}

// InsightFilter narrows ListInsights.
type InsightFilter struct {
	ProjectID *int
	MeetingID *int
	Resolved  *bool
}

// ListInsights returns insights matching the filter, newest first.
func (db *DB) ListInsights(filter InsightFilter) ([]models.Insight, error) {
	query := `
		SELECT id, meeting_id, project_id, title, description, insight_type, severity, confidence_score, resolved, created_at
		FROM insights
		WHERE 1 = 1`
	var args []any
	if filter.ProjectID != nil {
		query += ` AND project_id = ?`
		args = append(args, *filter.ProjectID)
	}
	if filter.MeetingID != nil {
		query += ` AND meeting_id = ?`
		args = append(args, *filter.MeetingID)
	}
	if filter.Resolved != nil {
		query += ` AND resolved = ?`
		args = append(args, boolToInt(*filter.Resolved))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []models.Insight
	for rows.Next() {
		var in models.Insight
		var resolved int
		var createdAt string
		if err := rows.Scan(&in.ID, &in.MeetingID, &in.ProjectID, &in.Title, &in.Description,
			&in.InsightType, &in.Severity, &in.ConfidenceScore, &resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		in.Resolved = resolved != 0
		in.CreatedAt = parseSQLiteTime(createdAt)
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

// RecentInsightsByProject returns insights created within the window, grouped
// by project ID. Insights with no project are excluded: the pattern pass has
// nothing to correlate them against.
func (db *DB) RecentInsightsByProject(since time.Time) (map[int][]models.Insight, error) {
	rows, err := db.Query(`
		SELECT id, meeting_id, project_id, title, description, insight_type, severity, confidence_score, resolved, created_at
		FROM insights
		WHERE project_id IS NOT NULL AND created_at >= ?
		ORDER BY project_id, created_at
	`, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent insights: %w", err)
	}
	defer rows.Close()

	grouped := make(map[int][]models.Insight)
	for rows.Next() {
		var in models.Insight
		var resolved int
		var createdAt string
		if err := rows.Scan(&in.ID, &in.MeetingID, &in.ProjectID, &in.Title, &in.Description,
			&in.InsightType, &in.Severity, &in.ConfidenceScore, &resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		in.Resolved = resolved != 0
		in.CreatedAt = parseSQLiteTime(createdAt)
		grouped[*in.ProjectID] = append(grouped[*in.ProjectID], in)
	}
	return grouped, rows.Err()
}

// SetInsightResolved flips the one mutable field on an insight.
// Returns ErrNoRows if the insight does not exist.
func (db *DB) SetInsightResolved(id int, resolved bool) error {
	result, err := db.Exec(`UPDATE insights SET resolved = ? WHERE id = ?`, boolToInt(resolved), id)
	if err != nil {
		return fmt.Errorf("failed to update insight %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
