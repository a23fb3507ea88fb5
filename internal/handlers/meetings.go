package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"meetingmind/internal/database"
)

// MeetingsHandler serves the read-only meeting browse endpoints.
type MeetingsHandler struct {
	db *database.DB
}

// NewMeetingsHandler creates a new meetings handler
func NewMeetingsHandler(db *database.DB) *MeetingsHandler {
	return &MeetingsHandler{db: db}
}

// List returns recent meetings. GET /api/meetings?limit
func (h *MeetingsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	meetings, err := h.db.ListMeetings(limit)
	if err != nil {
		return serverError(c, "Failed to list meetings", err)
	}
	return c.JSON(fiber.Map{"success": true, "meetings": meetings, "count": len(meetings)})
}

// Get returns one meeting with its transcript. GET /api/meetings/:id
func (h *MeetingsHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid meeting ID")
	}

	meeting, err := h.db.GetMeeting(id)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return notFound(c, "Meeting not found")
		}
		return serverError(c, "Failed to fetch meeting", err)
	}

	chunks, err := h.db.TranscriptChunks(id)
	if err != nil {
		return serverError(c, "Failed to fetch transcript", err)
	}

	return c.JSON(fiber.Map{"success": true, "meeting": meeting, "transcript_chunks": chunks})
}
