package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Column is one column of the chunk table, as declared in configuration.
type Column struct {
	Name string
	Type string
}

// Schema describes the chunk table: its name and its declared columns.
// Init always adds an auto-incrementing id primary key, so id must not
// appear in Columns.
type Schema struct {
	Table   string
	Columns []Column
}

// Column names and types end up interpolated into SQL, so both are held
// to strict patterns before any statement is built.
var (
	identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
	varcharPattern    = regexp.MustCompile(`^varchar(\(\d+\))?$`)
	vectorPattern     = regexp.MustCompile(`^vector\((\d+)\)$`)
)

// tableInfo is the validated, normalized form of a Schema.
type tableInfo struct {
	table   string
	columns []Column // types lowercased and trimmed
	textCol string   // column holding chunk text
	vecCol  string   // column holding the embedding
}

// resolveSchema validates a Schema against the embedding dimension and
// identifies the text and vector columns Ingest and Retrieve operate on.
// Unknown column types are rejected here rather than surfacing later as
// a database error.
func resolveSchema(sc Schema, dim int32) (tableInfo, error) {
	info := tableInfo{table: strings.TrimSpace(sc.Table)}

	if !identifierPattern.MatchString(info.table) {
		return tableInfo{}, fmt.Errorf("invalid table name %q", sc.Table)
	}
	if len(sc.Columns) == 0 {
		return tableInfo{}, fmt.Errorf("schema has no columns")
	}

	seen := make(map[string]bool, len(sc.Columns)+1)
	seen["id"] = true // reserved for the primary key
	for _, col := range sc.Columns {
		name := strings.TrimSpace(col.Name)
		if !identifierPattern.MatchString(name) {
			return tableInfo{}, fmt.Errorf("invalid column name %q", col.Name)
		}
		if seen[name] {
			return tableInfo{}, fmt.Errorf("duplicate or reserved column name %q", name)
		}
		seen[name] = true

		typ := strings.ToLower(strings.TrimSpace(col.Type))
		switch {
		case typ == "text" || varcharPattern.MatchString(typ):
			if info.textCol != "" {
				return tableInfo{}, fmt.Errorf("schema declares more than one text column (%q and %q)", info.textCol, name)
			}
			info.textCol = name

		case vectorPattern.MatchString(typ):
			if info.vecCol != "" {
				return tableInfo{}, fmt.Errorf("schema declares more than one vector column (%q and %q)", info.vecCol, name)
			}
			width, err := strconv.Atoi(vectorPattern.FindStringSubmatch(typ)[1])
			if err != nil || width <= 0 {
				return tableInfo{}, fmt.Errorf("invalid vector width in type %q", col.Type)
			}
			if int32(width) != dim {
				return tableInfo{}, fmt.Errorf("vector column %q has width %d, embedding dimension is %d", name, width, dim)
			}
			info.vecCol = name

		default:
			return tableInfo{}, fmt.Errorf("unsupported type %q for column %q (want text, varchar or vector(n))", col.Type, name)
		}

		info.columns = append(info.columns, Column{Name: name, Type: typ})
	}

	if info.textCol == "" {
		return tableInfo{}, fmt.Errorf("schema has no text column")
	}
	if info.vecCol == "" {
		return tableInfo{}, fmt.Errorf("schema has no vector column")
	}
	return info, nil
}

// createTableSQL builds the CREATE TABLE statement for the validated
// schema. The id primary key comes first, followed by the declared
// columns in configuration order.
func (t tableInfo) createTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (id SERIAL PRIMARY KEY", t.table)
	for _, col := range t.columns {
		fmt.Fprintf(&b, ", %s %s", col.Name, col.Type)
	}
	b.WriteString(")")
	return b.String()
}

func (t tableInfo) dropTableSQL() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", t.table)
}

func (t tableInfo) insertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2)", t.table, t.textCol, t.vecCol)
}

// retrieveSQL ranks rows by L2 distance ascending, with id as the
// tie-break so equally distant chunks come back in insertion order.
func (t tableInfo) retrieveSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s <-> $1, id LIMIT $2", t.textCol, t.table, t.vecCol)
}

func (t tableInfo) countSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", t.table)
}
