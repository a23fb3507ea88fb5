package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"meetingmind/internal/database"
	"meetingmind/internal/services"
)

// TablesHandler serves the cache-augmented database browsing API.
type TablesHandler struct {
	db    *database.DB
	cache *services.CacheService
}

// NewTablesHandler creates a new tables handler
func NewTablesHandler(db *database.DB, cache *services.CacheService) *TablesHandler {
	return &TablesHandler{db: db, cache: cache}
}

// pagination is the page math attached to data listings.
type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// List returns all user tables. GET /api/db/tables
func (h *TablesHandler) List(c *fiber.Ctx) error {
	key := h.cache.TableListKey()

	if cached := h.cache.Get(c.Context(), key); cached.Data != nil {
		var payload struct {
			Tables json.RawMessage `json:"tables"`
		}
		if err := json.Unmarshal(cached.Data, &payload); err == nil {
			c.Set("X-Cache", "HIT")
			return c.JSON(fiber.Map{"success": true, "tables": payload.Tables, "cached": true})
		}
	}

	tables, err := h.db.ListTables()
	if err != nil {
		return serverError(c, "Failed to list tables", err)
	}

	h.cache.Set(c.Context(), key, fiber.Map{"tables": tables}, services.TableListTTL)
	c.Set("X-Cache", "MISS")
	return c.JSON(fiber.Map{"success": true, "tables": tables, "cached": false})
}

// Schema returns column metadata for one table. GET /api/db/tables/:table/schema
func (h *TablesHandler) Schema(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}

	key := h.cache.SchemaKey(table)
	if cached := h.cache.Get(c.Context(), key); cached.Data != nil {
		var payload struct {
			Columns json.RawMessage `json:"columns"`
		}
		if err := json.Unmarshal(cached.Data, &payload); err == nil {
			c.Set("X-Cache", "HIT")
			return c.JSON(fiber.Map{"success": true, "tableName": table, "columns": payload.Columns, "cached": true})
		}
	}

	columns, err := h.db.TableInfo(table)
	if err != nil {
		return serverError(c, "Failed to read table schema", err)
	}

	h.cache.Set(c.Context(), key, fiber.Map{"columns": columns}, services.SchemaTTL)
	c.Set("X-Cache", "MISS")
	return c.JSON(fiber.Map{"success": true, "tableName": table, "columns": columns, "cached": false})
}

// Data returns one page of table rows.
// GET /api/db/tables/:table/data?page&limit&sortBy&sortOrder&search
func (h *TablesHandler) Data(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	sortBy := c.Query("sortBy")
	sortOrder := c.Query("sortOrder", "asc")
	search := c.Query("search")

	if sortBy != "" && !database.ValidIdentifier(sortBy) {
		return badRequest(c, "Invalid sort column")
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		return badRequest(c, "Invalid sort order")
	}

	// Search results are combinatorial and rarely repeat; don't cache them
	useCache := search == ""

	key := h.cache.DataKey(table, page, limit, sortBy, sortOrder, search)
	if useCache {
		if cached := h.cache.Get(c.Context(), key); cached.Data != nil {
			var payload struct {
				Data       json.RawMessage `json:"data"`
				Pagination json.RawMessage `json:"pagination"`
			}
			if err := json.Unmarshal(cached.Data, &payload); err == nil {
				c.Set("X-Cache", "HIT")
				return c.JSON(fiber.Map{"success": true, "data": payload.Data, "pagination": payload.Pagination, "cached": true})
			}
		}
	}

	rows, err := h.db.TableData(table, database.TableDataOptions{
		Page: page, Limit: limit, SortBy: sortBy, SortOrder: sortOrder, Search: search,
	})
	if err != nil {
		return serverError(c, "Failed to query table data", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	totalCount, err := h.countRows(c, table, search, useCache)
	if err != nil {
		return serverError(c, "Failed to count table rows", err)
	}

	totalPages := (totalCount + limit - 1) / limit
	pg := pagination{Page: page, Limit: limit, TotalCount: totalCount, TotalPages: totalPages}

	if useCache {
		h.cache.Set(c.Context(), key, fiber.Map{"data": rows, "pagination": pg}, services.TableDataTTL)
		c.Set("X-Cache", "MISS")
	} else {
		c.Set("X-Cache", "BYPASS")
	}

	return c.JSON(fiber.Map{"success": true, "data": rows, "pagination": pg, "cached": false})
}

// countRows caches COUNT(*) separately from page payloads so paging through a
// table doesn't recompute the total on every page.
func (h *TablesHandler) countRows(c *fiber.Ctx, table, search string, useCache bool) (int, error) {
	key := h.cache.CountKey(table, search)
	if useCache {
		if cached := h.cache.Get(c.Context(), key); cached.Data != nil {
			var count int
			if err := json.Unmarshal(cached.Data, &count); err == nil {
				return count, nil
			}
		}
	}

	count, err := h.db.CountRows(table, search)
	if err != nil {
		return 0, err
	}
	if useCache {
		h.cache.Set(c.Context(), key, count, services.CountTTL)
	}
	return count, nil
}

// Distinct returns the distinct values of one column.
// GET /api/db/tables/:table/columns/:column/values
func (h *TablesHandler) Distinct(c *fiber.Ctx) error {
	table := c.Params("table")
	column := c.Params("column")
	if !database.ValidIdentifier(table) || !database.ValidIdentifier(column) {
		return badRequest(c, "Invalid identifier")
	}

	key := h.cache.DistinctKey(table, column)
	if cached := h.cache.Get(c.Context(), key); cached.Data != nil {
		var payload struct {
			Values json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(cached.Data, &payload); err == nil {
			c.Set("X-Cache", "HIT")
			return c.JSON(fiber.Map{"success": true, "values": payload.Values, "cached": true})
		}
	}

	values, err := h.db.DistinctValues(table, column)
	if err != nil {
		return serverError(c, "Failed to query distinct values", err)
	}
	if values == nil {
		values = []any{}
	}

	h.cache.Set(c.Context(), key, fiber.Map{"values": values}, services.DistinctTTL)
	c.Set("X-Cache", "MISS")
	return c.JSON(fiber.Map{"success": true, "values": values, "cached": false})
}

// CreateRow inserts a row. POST /api/db/tables/:table/data
func (h *TablesHandler) CreateRow(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}

	var values map[string]any
	if err := c.BodyParser(&values); err != nil || len(values) == 0 {
		return badRequest(c, "Request body must be a non-empty JSON object")
	}
	for name := range values {
		if !database.ValidIdentifier(name) {
			return badRequest(c, "Invalid column name: "+name)
		}
	}

	id, err := h.db.InsertRow(table, values)
	if err != nil {
		return serverError(c, "Failed to insert row", err)
	}

	h.cache.InvalidateTable(c.Context(), table)

	row, err := h.db.GetRow(table, id)
	if err != nil {
		return serverError(c, "Row inserted but could not be re-read", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": row})
}

// UpdateRow updates a row by ID. PUT /api/db/tables/:table/data/:id
func (h *TablesHandler) UpdateRow(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid row ID")
	}

	var values map[string]any
	if err := c.BodyParser(&values); err != nil || len(values) == 0 {
		return badRequest(c, "Request body must be a non-empty JSON object")
	}
	for name := range values {
		if !database.ValidIdentifier(name) {
			return badRequest(c, "Invalid column name: "+name)
		}
	}

	if err := h.db.UpdateRow(table, id, values); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return notFound(c, "Row not found")
		}
		return serverError(c, "Failed to update row", err)
	}

	h.cache.InvalidateTable(c.Context(), table)

	row, err := h.db.GetRow(table, id)
	if err != nil {
		return serverError(c, "Row updated but could not be re-read", err)
	}
	return c.JSON(fiber.Map{"success": true, "data": row})
}

// DeleteRow deletes a row by ID. DELETE /api/db/tables/:table/data/:id
func (h *TablesHandler) DeleteRow(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid row ID")
	}

	if err := h.db.DeleteRow(table, id); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return notFound(c, "Row not found")
		}
		return serverError(c, "Failed to delete row", err)
	}

	h.cache.InvalidateTable(c.Context(), table)
	return c.JSON(fiber.Map{"success": true})
}

// Invalidate busts the cache for a table. POST /api/cache/invalidate/:table
func (h *TablesHandler) Invalidate(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}
	h.cache.InvalidateTable(c.Context(), table)
	return c.JSON(fiber.Map{"success": true, "invalidated": table})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": msg})
}

func serverError(c *fiber.Ctx, msg string, err error) error {
	log.Printf("❌ [API] %s: %v", msg, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"details": err.Error(),
	})
}
