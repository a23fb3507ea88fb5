package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"meetingmind/internal/database"
	"meetingmind/internal/services"
)

// InsightsHandler serves extracted insights and the manual pipeline trigger.
type InsightsHandler struct {
	db       *database.DB
	insights *services.InsightService
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(db *database.DB, insights *services.InsightService) *InsightsHandler {
	return &InsightsHandler{db: db, insights: insights}
}

// List returns insights filtered by project, meeting and resolution state.
// GET /api/insights?project_id&meeting_id&resolved
func (h *InsightsHandler) List(c *fiber.Ctx) error {
	var filter database.InsightFilter

	if v := c.Query("project_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "Invalid project_id")
		}
		filter.ProjectID = &id
	}
	if v := c.Query("meeting_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "Invalid meeting_id")
		}
		filter.MeetingID = &id
	}
	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "Invalid resolved flag")
		}
		filter.Resolved = &resolved
	}

	insights, err := h.db.ListInsights(filter)
	if err != nil {
		return serverError(c, "Failed to list insights", err)
	}
	return c.JSON(fiber.Map{"success": true, "insights": insights, "count": len(insights)})
}

// Resolve flips the resolved flag on an insight, the only mutation this API
// permits on insight rows. PATCH /api/insights/:id/resolve
func (h *InsightsHandler) Resolve(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid insight ID")
	}

	var body struct {
		Resolved *bool `json:"resolved"`
	}
	if err := c.BodyParser(&body); err != nil || body.Resolved == nil {
		return badRequest(c, "Request body must include a resolved flag")
	}

	if err := h.db.SetInsightResolved(id, *body.Resolved); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return notFound(c, "Insight not found")
		}
		return serverError(c, "Failed to update insight", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Extract triggers an extraction batch outside the schedule.
// POST /api/insights/extract
func (h *InsightsHandler) Extract(c *fiber.Ctx) error {
	if h.insights == nil {
		return serverError(c, "Extraction pipeline not configured", errors.New("no LLM provider"))
	}

	// The batch outlives the request; run it detached from the request context
	go func() {
		if err := h.insights.RunBatch(context.Background()); err != nil {
			log.Printf("⚠️ [INSIGHTS] Manual batch failed: %v", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "status": "extraction started"})
}
