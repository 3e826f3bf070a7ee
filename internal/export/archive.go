package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/storage"
)

// Archived describes an export written to the object store.
type Archived struct {
	Key        string    `json:"key"`
	Format     Format    `json:"format"`
	Size       int64     `json:"size"`
	Rows       int       `json:"rows"`
	URL        string    `json:"url,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

type Archiver struct {
	store     storage.ObjectStore
	presigner storage.Presigner
	prefix    string
	expiry    time.Duration
}

// NewArchiver writes exports below prefix. presigner may be nil, in which
// case archived exports carry no download link.
func NewArchiver(store storage.ObjectStore, presigner storage.Presigner, prefix string, expiry time.Duration) *Archiver {
	return &Archiver{store: store, presigner: presigner, prefix: prefix, expiry: expiry}
}

func (a *Archiver) Archive(ctx context.Context, format Format, snap Snapshot) (Archived, error) {
	if snap.ExportedAt.IsZero() {
		snap.ExportedAt = time.Now().UTC()
	}
	file, err := Encode(format, snap)
	if err != nil {
		return Archived{}, err
	}
	key, err := storage.BuildExportPath(a.prefix, snap.Report.ID, string(format), snap.ExportedAt)
	if err != nil {
		return Archived{}, fmt.Errorf("build export path: %w", err)
	}

	info, err := a.store.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), storage.PutOptions{
		ContentType:        file.ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", file.Name),
		Metadata: map[string]string{
			"report-id": snap.Report.ID,
			"rows":      strconv.Itoa(file.Rows),
			"truncated": strconv.FormatBool(snap.Truncated),
		},
	})
	if err != nil {
		return Archived{}, fmt.Errorf("put export %q: %w", key, err)
	}
	observability.ObserveExport(string(format), "archive")

	archived := Archived{
		Key:        key,
		Format:     format,
		Size:       info.Size,
		Rows:       file.Rows,
		ExportedAt: snap.ExportedAt,
	}
	if a.presigner != nil {
		url, err := a.presigner.PresignGet(ctx, key, a.expiry)
		if err != nil {
			return Archived{}, fmt.Errorf("presign export %q: %w", key, err)
		}
		archived.URL = url
	}
	return archived, nil
}

// List returns the archived exports of one report, oldest first.
func (a *Archiver) List(ctx context.Context, reportID string) ([]storage.ObjectInfo, error) {
	prefix, err := storage.BuildExportPrefix(a.prefix, reportID)
	if err != nil {
		return nil, fmt.Errorf("build export prefix: %w", err)
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list exports for %q: %w", reportID, err)
	}
	return objects, nil
}
