package export

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/duckmesh/reportdesk/internal/report"
	"github.com/duckmesh/reportdesk/internal/resultset"
)

var ErrUnsupportedFormat = errors.New("export: unsupported format")

type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
}

func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// File is one encoded export.
type File struct {
	Name        string
	Format      Format
	ContentType string
	Data        []byte
	Rows        int
}

// Snapshot is the data an export is built from: the report and the result of
// re-running its SQL.
type Snapshot struct {
	Report     report.Report
	Result     resultset.ResultSet
	Truncated  bool
	ExportedAt time.Time
}

func Encode(format Format, snap Snapshot) (File, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatXLSX:
		data, err = EncodeXLSX(snap)
	case FormatParquet:
		data, err = EncodeParquet(snap.Result)
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        fileName(snap.Report, format),
		Format:      format,
		ContentType: format.ContentType(),
		Data:        data,
		Rows:        snap.Result.RowCount(),
	}, nil
}

func fileName(rep report.Report, format Format) string {
	return BaseName(rep.Name) + "." + string(format)
}

// BaseName turns a report name into a download-safe file stem.
func BaseName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	base := strings.Trim(b.String(), "_")
	if base == "" {
		base = "report"
	}
	return base
}

// cellValue turns driver values into types both encoders understand.
func cellValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v
	case []byte:
		return string(v)
	case *big.Int:
		if v == nil {
			return nil
		}
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	return value
}
