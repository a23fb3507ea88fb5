package models

import "time"

// Meeting represents an ingested meeting record.
// Meetings are owned by the ingestion pipeline and are read-only here except
// for the project_id backfill written after a successful context match.
type Meeting struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Participants []string  `json:"participants"` // email addresses
	ProjectID    *int      `json:"project_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TranscriptChunk is one ordered segment of a meeting transcript.
type TranscriptChunk struct {
	ID         int    `json:"id"`
	MeetingID  int    `json:"meeting_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// Project is a match candidate for meeting context resolution.
type Project struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	JobNumber  *string `json:"job_number,omitempty"`
	Address    *string `json:"address,omitempty"`
	ClientName *string `json:"client_name,omitempty"`
}
