package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath places a report export under
// <prefix>/<report id>/date=YYYY-MM-DD/<report id>-<unix millis>.<format>.
func BuildExportPath(prefix, reportID, format string, exportedAt time.Time) (string, error) {
	if err := validatePathComponent(reportID, "report id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(format, "export format"); err != nil {
		return "", err
	}
	ts := exportedAt.UTC()
	return joinPrefix(prefix,
		reportID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%d.%s", reportID, ts.UnixMilli(), format),
	)
}

// BuildExportPrefix is the directory holding every export of one report.
func BuildExportPrefix(prefix, reportID string) (string, error) {
	if err := validatePathComponent(reportID, "report id"); err != nil {
		return "", err
	}
	return joinPrefix(prefix, reportID)
}

// BuildDatasetPath is where the seeder writes a demo table.
func BuildDatasetPath(prefix, tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return joinPrefix(prefix, tableName+".parquet")
}

func joinPrefix(prefix string, parts ...string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		for _, component := range strings.Split(prefix, "/") {
			if err := validatePathComponent(component, "prefix component"); err != nil {
				return "", err
			}
		}
		parts = append([]string{prefix}, parts...)
	}
	return path.Join(parts...), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
