package export

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/resultset"
)

type leafKind int

const (
	leafString leafKind = iota
	leafDouble
	leafTimestamp
)

type parquetColumn struct {
	name  string
	kind  leafKind
	index int
}

// EncodeParquet writes rs with a schema derived from its column types.
// Temporal columns become millisecond timestamps, numeric columns doubles and
// everything else strings. Every column is optional.
func EncodeParquet(rs resultset.ResultSet) ([]byte, error) {
	if len(rs.Columns) == 0 {
		return nil, fmt.Errorf("result has no columns")
	}

	columns := parquetColumns(rs)
	group := parquet.Group{}
	for _, column := range columns {
		group[column.name] = parquet.Optional(leafNode(column.kind))
	}
	schema := parquet.NewSchema("report", group)

	rows := make([]parquet.Row, 0, len(rs.Rows))
	for rowIndex, values := range rs.Rows {
		row := make(parquet.Row, len(columns))
		for position, column := range columns {
			value, err := parquetValue(column.kind, values[position])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", rowIndex, column.name, err)
			}
			row[column.index] = value.Level(0, definitionLevel(value), column.index)
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// parquetColumns names every result column uniquely and records its leaf
// index. Group fields are ordered by name, so the index is the sorted rank.
func parquetColumns(rs resultset.ResultSet) []parquetColumn {
	columns := make([]parquetColumn, len(rs.Columns))
	taken := map[string]bool{}
	for i, column := range rs.Columns {
		base := column.Name
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		columns[i] = parquetColumn{name: name, kind: kindOf(column.DatabaseType)}
	}

	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.name
	}
	sort.Strings(names)
	rank := make(map[string]int, len(names))
	for i, name := range names {
		rank[name] = i
	}
	for i := range columns {
		columns[i].index = rank[columns[i].name]
	}
	return columns
}

func kindOf(databaseType string) leafKind {
	semantic, err := chart.ClassifyType(databaseType)
	if err != nil {
		return leafString
	}
	switch semantic {
	case chart.Temporal:
		return leafTimestamp
	case chart.Numeric:
		return leafDouble
	}
	return leafString
}

func leafNode(kind leafKind) parquet.Node {
	switch kind {
	case leafDouble:
		return parquet.Leaf(parquet.DoubleType)
	case leafTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	}
	return parquet.String()
}

func parquetValue(kind leafKind, raw any) (parquet.Value, error) {
	raw = cellValue(raw)
	if raw == nil {
		return parquet.NullValue(), nil
	}
	switch kind {
	case leafDouble:
		f, ok := chart.NumericValue(raw)
		if !ok {
			return parquet.Value{}, fmt.Errorf("value %v is not numeric", raw)
		}
		return parquet.DoubleValue(f), nil
	case leafTimestamp:
		t, ok := raw.(time.Time)
		if !ok {
			return parquet.Value{}, fmt.Errorf("value %v is not a timestamp", raw)
		}
		return parquet.Int64Value(t.UnixMilli()), nil
	}
	return parquet.ByteArrayValue([]byte(fmt.Sprint(raw))), nil
}

func definitionLevel(value parquet.Value) int {
	if value.IsNull() {
		return 0
	}
	return 1
}
