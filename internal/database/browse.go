package database

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// identPattern is the sole SQL-injection defense for identifiers: table,
// column and sort names cannot be bound as parameters, so anything that does
// not match is rejected before it reaches a query.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is safe to splice into a query as a
// table or column identifier.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// ErrNoRows is returned when an update or delete matched zero rows.
var ErrNoRows = sql.ErrNoRows

// TableMeta describes one user-visible table.
type TableMeta struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// ColumnInfo mirrors a row of PRAGMA table_info.
type ColumnInfo struct {
	CID          int     `json:"cid"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NotNull      int     `json:"notnull"`
	DefaultValue *string `json:"dflt_value"`
	PK           int     `json:"pk"`
}

// ListTables returns the user tables in the database, excluding SQLite
// internals.
func (db *DB) ListTables() ([]TableMeta, error) {
	rows, err := db.Query(`
		SELECT name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableMeta
	for rows.Next() {
		var t TableMeta
		if err := rows.Scan(&t.Name, &t.SQL); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// TableInfo returns column metadata for a table via PRAGMA table_info.
// The caller must have validated the table name.
func (db *DB) TableInfo(table string) ([]ColumnInfo, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &c.NotNull, &c.DefaultValue, &c.PK); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return cols, rows.Err()
}

// TableDataOptions controls pagination, sorting and search for TableData.
type TableDataOptions struct {
	Page      int
	Limit     int
	SortBy    string // validated identifier, empty for rowid order
	SortOrder string // "asc" or "desc"
	Search    string // substring matched across text columns
}

// TableData returns one page of rows from a table as generic maps keyed by
// column name. Identifiers must be pre-validated by the caller; values are
// always bound as parameters.
func (db *DB) TableData(table string, opts TableDataOptions) ([]map[string]any, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	cols, err := db.TableInfo(table)
	if err != nil {
		return nil, err
	}

	where, args := searchClause(cols, opts.Search)

	order := ""
	if opts.SortBy != "" {
		if !ValidIdentifier(opts.SortBy) {
			return nil, fmt.Errorf("invalid sort column: %q", opts.SortBy)
		}
		dir := "ASC"
		if strings.EqualFold(opts.SortOrder, "desc") {
			dir = "DESC"
		}
		order = fmt.Sprintf(" ORDER BY %s %s", opts.SortBy, dir)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT * FROM %s%s%s LIMIT ? OFFSET ?`, table, where, order)
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// CountRows counts rows in a table, honoring the same search filter as
// TableData so pagination totals line up with the filtered page.
func (db *DB) CountRows(table string, search string) (int, error) {
	if !ValidIdentifier(table) {
		return 0, fmt.Errorf("invalid table name: %q", table)
	}

	cols, err := db.TableInfo(table)
	if err != nil {
		return 0, err
	}

	where, args := searchClause(cols, search)

	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, table, where)
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// DistinctValues returns up to 500 distinct non-null values of a column.
func (db *DB) DistinctValues(table, column string) ([]any, error) {
	if !ValidIdentifier(table) || !ValidIdentifier(column) {
		return nil, fmt.Errorf("invalid identifier: %q.%q", table, column)
	}
	if _, err := db.TableInfo(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %s FROM %s
		WHERE %s IS NOT NULL
		ORDER BY %s
		LIMIT 500
	`, column, table, column, column)

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distinct value: %w", err)
		}
		values = append(values, normalizeValue(v))
	}
	return values, rows.Err()
}

// InsertRow inserts a row built from the given column/value map and returns
// the new row ID. Column names are validated against the table's real schema,
// not just the identifier pattern.
func (db *DB) InsertRow(table string, values map[string]any) (int64, error) {
	cols, err := db.TableInfo(table)
	if err != nil {
		return 0, err
	}
	known := columnSet(cols)

	var names []string
	var placeholders []string
	var args []any
	for name, value := range values {
		if !known[name] {
			return 0, fmt.Errorf("unknown column %q in table %s", name, table)
		}
		names = append(names, name)
		placeholders = append(placeholders, "?")
		args = append(args, value)
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("no columns to insert")
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))

	result, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return result.LastInsertId()
}

// UpdateRow updates a row by ID. Returns ErrNoRows if no row matched.
func (db *DB) UpdateRow(table string, id int64, values map[string]any) error {
	cols, err := db.TableInfo(table)
	if err != nil {
		return err
	}
	known := columnSet(cols)

	var sets []string
	var args []any
	for name, value := range values {
		if !known[name] {
			return fmt.Errorf("unknown column %q in table %s", name, table)
		}
		sets = append(sets, name+" = ?")
		args = append(args, value)
	}
	if len(sets) == 0 {
		return fmt.Errorf("no columns to update")
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(sets, ", "))
	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
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

// DeleteRow deletes a row by ID. Returns ErrNoRows if no row matched.
func (db *DB) DeleteRow(table string, id int64) error {
	if !ValidIdentifier(table) {
		return fmt.Errorf("invalid table name: %q", table)
	}
	if _, err := db.TableInfo(table); err != nil {
		return err
	}

	result, err := db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
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

// GetRow fetches a single row by ID.
func (db *DB) GetRow(table string, id int64) (map[string]any, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	if _, err := db.TableInfo(table); err != nil {
		return nil, err
	}

	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch row from %s: %w", table, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNoRows
	}
	return result[0], nil
}

// searchClause builds a WHERE fragment matching the search term against all
// TEXT-ish columns with LIKE. Empty search yields no clause.
func searchClause(cols []ColumnInfo, search string) (string, []any) {
	if search == "" {
		return "", nil
	}

	var likes []string
	var args []any
	pattern := "%" + search + "%"
	for _, c := range cols {
		typ := strings.ToUpper(c.Type)
		if strings.Contains(typ, "CHAR") || strings.Contains(typ, "TEXT") || typ == "" {
			likes = append(likes, c.Name+" LIKE ?")
			args = append(args, pattern)
		}
	}
	if len(likes) == 0 {
		// No searchable columns; match nothing rather than everything
		return " WHERE 1 = 0", nil
	}
	return " WHERE (" + strings.Join(likes, " OR ") + ")", args
}

func columnSet(cols []ColumnInfo) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c.Name] = true
	}
	return set
}

// scanRows converts a generic result set into maps keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// normalizeValue makes driver values JSON-friendly ([]byte -> string).
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
