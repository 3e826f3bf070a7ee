package chart

import (
	"strings"

	"github.com/duckmesh/reportdesk/internal/resultset"
)

type SemanticType string

const (
	Temporal    SemanticType = "temporal"
	Categorical SemanticType = "categorical"
	Numeric     SemanticType = "numeric"
)

// ColumnProfile is the semantic bucket of one result column. Index is the
// column's position in the result set.
type ColumnProfile struct {
	Name  string       `json:"name"`
	Type  SemanticType `json:"type"`
	Index int          `json:"index"`
}

// databaseTypes maps normalized warehouse type names to semantic buckets.
// Anything not listed is rejected.
var databaseTypes = map[string]SemanticType{
	"DATE":          Temporal,
	"TIME":          Temporal,
	"TIMETZ":        Temporal,
	"DATETIME":      Temporal,
	"TIMESTAMP":     Temporal,
	"TIMESTAMPTZ":   Temporal,
	"TIMESTAMP_S":   Temporal,
	"TIMESTAMP_MS":  Temporal,
	"TIMESTAMP_NS":  Temporal,
	"TIMESTAMP_NTZ": Temporal,
	"TIMESTAMP_LTZ": Temporal,
	"TIMESTAMP_TZ":  Temporal,

	"TINYINT":          Numeric,
	"SMALLINT":         Numeric,
	"INT":              Numeric,
	"INT2":             Numeric,
	"INT4":             Numeric,
	"INT8":             Numeric,
	"INTEGER":          Numeric,
	"BIGINT":           Numeric,
	"HUGEINT":          Numeric,
	"UTINYINT":         Numeric,
	"USMALLINT":        Numeric,
	"UINTEGER":         Numeric,
	"UBIGINT":          Numeric,
	"UHUGEINT":         Numeric,
	"SERIAL":           Numeric,
	"BIGSERIAL":        Numeric,
	"FLOAT":            Numeric,
	"FLOAT4":           Numeric,
	"FLOAT8":           Numeric,
	"REAL":             Numeric,
	"DOUBLE":           Numeric,
	"DOUBLE PRECISION": Numeric,
	"DECIMAL":          Numeric,
	"NUMERIC":          Numeric,
	"NUMBER":           Numeric,

	"VARCHAR":           Categorical,
	"CHAR":              Categorical,
	"BPCHAR":            Categorical,
	"NCHAR":             Categorical,
	"NVARCHAR":          Categorical,
	"CHARACTER":         Categorical,
	"CHARACTER VARYING": Categorical,
	"TEXT":              Categorical,
	"CITEXT":            Categorical,
	"STRING":            Categorical,
	"NAME":              Categorical,
	"BOOL":              Categorical,
	"BOOLEAN":           Categorical,
	"UUID":              Categorical,
	"ENUM":              Categorical,
}

// Classify buckets every column of rs. It fails on the first column whose
// database type has no mapping.
func Classify(rs resultset.ResultSet) ([]ColumnProfile, error) {
	profiles := make([]ColumnProfile, 0, len(rs.Columns))
	for index, column := range rs.Columns {
		semantic, err := ClassifyType(column.DatabaseType)
		if err != nil {
			return nil, &ClassificationError{Column: column.Name, DatabaseType: column.DatabaseType}
		}
		profiles = append(profiles, ColumnProfile{Name: column.Name, Type: semantic, Index: index})
	}
	return profiles, nil
}

func ClassifyType(databaseType string) (SemanticType, error) {
	normalized, ok := normalizeDatabaseType(databaseType)
	if !ok {
		return "", &ClassificationError{DatabaseType: databaseType}
	}
	semantic, ok := databaseTypes[normalized]
	if !ok {
		return "", &ClassificationError{DatabaseType: databaseType}
	}
	return semantic, nil
}

func normalizeDatabaseType(raw string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" || strings.HasSuffix(normalized, "]") {
		return "", false
	}
	if open := strings.Index(normalized, "("); open >= 0 {
		normalized = strings.TrimSpace(normalized[:open])
	}
	normalized = strings.TrimSuffix(normalized, " WITH TIME ZONE")
	normalized = strings.TrimSuffix(normalized, " WITHOUT TIME ZONE")
	return strings.Join(strings.Fields(normalized), " "), true
}

func profilesOfType(profiles []ColumnProfile, semantic SemanticType) []ColumnProfile {
	out := make([]ColumnProfile, 0, len(profiles))
	for _, profile := range profiles {
		if profile.Type == semantic {
			out = append(out, profile)
		}
	}
	return out
}

func names(profiles []ColumnProfile) []string {
	out := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		out = append(out, profile.Name)
	}
	return out
}
