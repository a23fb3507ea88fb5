package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"meetingmind/internal/database"
)

// exportRowCap bounds workbook size; exports beyond this need a real ETL
// path, not an API endpoint.
const exportRowCap = 10000

// ExportHandler produces .xlsx workbooks of table data.
type ExportHandler struct {
	db *database.DB
}

// NewExportHandler creates a new export handler
func NewExportHandler(db *database.DB) *ExportHandler {
	return &ExportHandler{db: db}
}

// Export streams one table as an Excel workbook.
// GET /api/db/tables/:table/export?sortBy&sortOrder&search
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	table := c.Params("table")
	if !database.ValidIdentifier(table) {
		return badRequest(c, "Invalid table name")
	}

	sortBy := c.Query("sortBy")
	if sortBy != "" && !database.ValidIdentifier(sortBy) {
		return badRequest(c, "Invalid sort column")
	}
	sortOrder := c.Query("sortOrder", "asc")
	if sortOrder != "asc" && sortOrder != "desc" {
		return badRequest(c, "Invalid sort order")
	}

	columns, err := h.db.TableInfo(table)
	if err != nil {
		return serverError(c, "Failed to read table schema", err)
	}

	rows, err := h.db.TableData(table, database.TableDataOptions{
		Page:      1,
		Limit:     exportRowCap,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Search:    c.Query("search"),
	})
	if err != nil {
		return serverError(c, "Failed to query table data", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(sheet, cell, col.Name)
	}
	for r, row := range rows {
		for i, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			file.SetCellValue(sheet, cell, row[col.Name])
		}
	}

	filename := fmt.Sprintf("%s-%s.xlsx", table, time.Now().Format("20060102-150405"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Set("X-Cache", "BYPASS")

	if err := file.Write(c.Response().BodyWriter()); err != nil {
		return serverError(c, "Failed to write workbook", err)
	}
	return nil
}
