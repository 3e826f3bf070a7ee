package resultset

// Column is a named result column with the type reported by the warehouse.
type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type"`
}

// ResultSet is a tabular query result. Rows are positional and aligned with
// Columns.
type ResultSet struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (rs ResultSet) RowCount() int {
	return len(rs.Rows)
}

// Index returns the position of the named column, or -1.
func (rs ResultSet) Index(name string) int {
	for i, column := range rs.Columns {
		if column.Name == name {
			return i
		}
	}
	return -1
}

func (rs ResultSet) HasColumn(name string) bool {
	return rs.Index(name) >= 0
}

// Value returns the value of the named column in row, or nil when either is
// out of range.
func (rs ResultSet) Value(row int, name string) any {
	index := rs.Index(name)
	if index < 0 || row < 0 || row >= len(rs.Rows) || index >= len(rs.Rows[row]) {
		return nil
	}
	return rs.Rows[row][index]
}

func (rs ResultSet) ColumnNames() []string {
	names := make([]string, 0, len(rs.Columns))
	for _, column := range rs.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Clone copies the column and row slices. Cell values are shared; they are
// treated as immutable scalars.
func (rs ResultSet) Clone() ResultSet {
	columns := make([]Column, len(rs.Columns))
	copy(columns, rs.Columns)
	rows := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		cloned := make([]any, len(row))
		copy(cloned, row)
		rows[i] = cloned
	}
	return ResultSet{Columns: columns, Rows: rows}
}
