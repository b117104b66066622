package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrNotReadOnly is returned when a raw statement fails read-only validation.
// The check runs before any connection is touched.
var ErrNotReadOnly = errors.New("query is not read-only")

// deniedKeyword matches write/DDL keywords as whole words anywhere in the
// statement, case-insensitively. This is a deliberately blunt second layer on
// top of the prefix check; a read-only database role remains the real fence.
var deniedKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|create|alter|truncate|grant|revoke)\b`)

// ValidateReadOnly enforces read-only intent in two layers: the trimmed
// statement must start with SELECT or WITH, and none of the denied keywords
// may appear anywhere in the original text.
func ValidateReadOnly(query string) error {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if trimmed == "" {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return fmt.Errorf("%w: only SELECT and WITH statements are allowed", ErrNotReadOnly)
	}
	if m := deniedKeyword.FindString(query); m != "" {
		return fmt.Errorf("%w: statement contains forbidden keyword %s", ErrNotReadOnly, strings.ToUpper(m))
	}
	return nil
}

// ExecuteRaw validates the statement, executes it verbatim (it is
// user-authored SQL, so no bind parameters), and measures wall-clock time.
// Column types are inferred from the first returned row; zero rows yield an
// empty column list.
func (c *conn) ExecuteRaw(ctx context.Context, query string) (*RawQueryResult, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := c.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &RawQueryResult{
		Rows:    make([]map[string]any, 0),
		Columns: make([]RawColumn, 0, len(names)),
	}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	result.ExecutionTime = float64(time.Since(start).Microseconds()) / 1000.0

	if len(result.Rows) > 0 {
		first := result.Rows[0]
		for _, name := range names {
			result.Columns = append(result.Columns, RawColumn{
				Name: name,
				Type: inferType(first[name]),
			})
		}
	}

	return result, nil
}

// inferType classifies a scanned value into a coarse display type.
func inferType(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "numeric"
	case time.Time:
		return "timestamp"
	case string:
		if looksLikeJSON(val) {
			return "json"
		}
		return "text"
	default:
		return "text"
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}
