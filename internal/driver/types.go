package driver

// Provider identifies a supported SQL dialect.
type Provider string

const (
	ProviderPostgres Provider = "postgresql"
	ProviderMySQL    Provider = "mysql"
	ProviderMariaDB  Provider = "mariadb"
)

// DefaultPort returns the conventional port for a provider.
func DefaultPort(p Provider) int {
	if p == ProviderPostgres {
		return 5432
	}
	return 3306
}

// Config is the resolved connection target handed to a driver. When an SSH
// tunnel is in play the host and port already point at the local forwarder.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSL      bool
}

// ForeignKey points a column at the (schema, table, column) it references.
type ForeignKey struct {
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnInfo describes one column of an introspected table.
type ColumnInfo struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	Nullable     bool        `json:"nullable"`
	PrimaryKey   bool        `json:"primaryKey"`
	DefaultValue *string     `json:"defaultValue,omitempty"`
	ForeignKey   *ForeignKey `json:"foreignKey,omitempty"`
}

// TableSchema is one table with its columns in catalog ordinal order.
type TableSchema struct {
	Name    string       `json:"name"`
	Schema  string       `json:"schema"`
	Columns []ColumnInfo `json:"columns"`
}

// TableInfo is a base-table listing entry. EstimatedRows comes from catalog
// statistics, not COUNT(*), so it is approximate.
type TableInfo struct {
	Name          string `json:"name"`
	Schema        string `json:"schema"`
	EstimatedRows int64  `json:"estimatedRows"`
}

// Operator is a comparison operator accepted in query filters.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
)

// SortDirection orders a sorted column.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// QueryFilter restricts rows on a single column. Values travel as strings and
// are bound as parameters, never interpolated.
type QueryFilter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// QueryParams describes one paginated table read.
type QueryParams struct {
	Table         string        `json:"table"`
	Schema        string        `json:"schema,omitempty"`
	Page          int           `json:"page"`
	PageSize      int           `json:"pageSize"`
	SortColumn    string        `json:"sortColumn,omitempty"`
	SortDirection SortDirection `json:"sortDirection,omitempty"`
	Filters       []QueryFilter `json:"filters,omitempty"`
}

// QueryResult is one page of rows. TotalCount is independent of the page, and
// Columns always carries the introspected schema for the queried table so
// callers have types even when the page is empty.
type QueryResult struct {
	Rows       []map[string]any `json:"rows"`
	TotalCount int64            `json:"totalCount"`
	Columns    []ColumnInfo     `json:"columns"`
}

// RawColumn pairs a result column with a type inferred from the first row.
type RawColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RawQueryResult is the outcome of a guarded raw SQL execution.
type RawQueryResult struct {
	Rows          []map[string]any `json:"rows"`
	Columns       []RawColumn      `json:"columns"`
	RowCount      int              `json:"rowCount"`
	ExecutionTime float64          `json:"executionTime"`
	Error         string           `json:"error,omitempty"`
}

// TestConnectionResult reports whether a trivial version query succeeded.
type TestConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Version string `json:"version,omitempty"`
}
