package chart

import "fmt"

// ClassificationError reports a column whose database type has no semantic
// bucket.
type ClassificationError struct {
	Column       string
	DatabaseType string
}

func (e *ClassificationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("unsupported column type %q", e.DatabaseType)
	}
	return fmt.Sprintf("column %q has unsupported type %q", e.Column, e.DatabaseType)
}

// RenderSpecMismatchError reports a chart spec binding that names a column the
// result set does not have.
type RenderSpecMismatchError struct {
	Column string
	Role   Role
}

func (e *RenderSpecMismatchError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("chart spec references missing column %q", e.Column)
	}
	return fmt.Sprintf("chart spec binds %s to missing column %q", e.Role, e.Column)
}
