package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meetingmind/internal/models"
)

// ListMeetings returns meetings ordered by date, newest first.
func (db *DB) ListMeetings(limit int) ([]models.Meeting, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, title, date, participants, project_id, created_at
		FROM meetings
		ORDER BY date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	return scanMeetings(rows)
}

// GetMeeting fetches a single meeting by ID. Returns ErrNoRows if absent.
func (db *DB) GetMeeting(id int) (*models.Meeting, error) {
	rows, err := db.Query(`
		SELECT id, title, date, participants, project_id, created_at
		FROM meetings
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meeting %d: %w", id, err)
	}
	defer rows.Close()

	meetings, err := scanMeetings(rows)
	if err != nil {
		return nil, err
	}
	if len(meetings) == 0 {
		return nil, ErrNoRows
	}
	return &meetings[0], nil
}

// UnprocessedMeetings returns meetings that have no insights yet, oldest
// first, capped at limit. These are the extraction pipeline's work queue.
func (db *DB) UnprocessedMeetings(limit int) ([]models.Meeting, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT m.id, m.title, m.date, m.participants, m.project_id, m.created_at
		FROM meetings m
		WHERE NOT EXISTS (SELECT 1 FROM insights i WHERE i.meeting_id = m.id)
		ORDER BY m.date ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed meetings: %w", err)
	}
	defer rows.Close()

	return scanMeetings(rows)
}

// TranscriptChunks returns a meeting's transcript chunks in order.
func (db *DB) TranscriptChunks(meetingID int) ([]models.TranscriptChunk, error) {
	rows, err := db.Query(`
		SELECT id, meeting_id, chunk_index, content
		FROM transcript_chunks
		WHERE meeting_id = ?
		ORDER BY chunk_index ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript for meeting %d: %w", meetingID, err)
	}
	defer rows.Close()

	var chunks []models.TranscriptChunk
	for rows.Next() {
		var c models.TranscriptChunk
		if err := rows.Scan(&c.ID, &c.MeetingID, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan transcript chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Transcript joins a meeting's chunks into a single string.
func (db *DB) Transcript(meetingID int) (string, error) {
	chunks, err := db.TranscriptChunks(meetingID)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n"), nil
}

// ListProjects returns all projects as match candidates.
func (db *DB) ListProjects() ([]models.Project, error) {
	rows, err := db.Query(`
		SELECT id, name, job_number, address, client_name
		FROM projects
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.JobNumber, &p.Address, &p.ClientName); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// AssignMeetingProject backfills a matched project onto a meeting.
func (db *DB) AssignMeetingProject(meetingID, projectID int) error {
	result, err := db.Exec(`UPDATE meetings SET project_id = ? WHERE id = ?`, projectID, meetingID)
	if err != nil {
		return fmt.Errorf("failed to assign project to meeting %d: %w", meetingID, err)
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

func scanMeetings(rows *sql.Rows) ([]models.Meeting, error) {
	var meetings []models.Meeting
	for rows.Next() {
		var m models.Meeting
		var participantsJSON string
		var date, createdAt string
		if err := rows.Scan(&m.ID, &m.Title, &date, &participantsJSON, &m.ProjectID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		m.Date = parseSQLiteTime(date)
		m.CreatedAt = parseSQLiteTime(createdAt)
		if err := json.Unmarshal([]byte(participantsJSON), &m.Participants); err != nil {
			// Bad participant JSON should not hide the meeting itself
			m.Participants = nil
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// parseSQLiteTime handles the formats SQLite actually hands back for
// DATETIME columns (CURRENT_TIMESTAMP text, RFC3339 from app writes).
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
