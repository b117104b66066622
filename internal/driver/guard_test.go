package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		allowed bool
	}{
		{"plain select", "select * from t", true},
		{"uppercase select", "SELECT id, name FROM users", true},
		{"leading whitespace", "   \n\tSELECT 1", true},
		{"cte", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", true},
		{"column name containing keyword", "SELECT created_at, updates FROM audit", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"insert", "INSERT INTO t VALUES (1)", false},
		{"update", "update t set x = 1", false},
		{"delete", "DELETE FROM t", false},
		{"explain", "EXPLAIN SELECT * FROM t", false},
		{"show", "SHOW TABLES", false},
		{"piggybacked drop", "SELECT 1; DROP TABLE x", false},
		{"keyword in literal", "SELECT 'drop table x'", false},
		{"truncate", "TRUNCATE TABLE t", false},
		{"grant", "GRANT ALL ON t TO u", false},
		{"create via cte prefix", "WITH x AS (SELECT 1) CREATE TABLE y (id int)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReadOnly(tt.query)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNotReadOnly)
			}
		})
	}
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"bool", true, "boolean"},
		{"int64", int64(42), "integer"},
		{"float", 3.14, "numeric"},
		{"plain text", "hello", "text"},
		{"json object", `{"a": 1}`, "json"},
		{"json array", `[1, 2, 3]`, "json"},
		{"brace but not json", "{not json", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferType(tt.in))
		})
	}
}
