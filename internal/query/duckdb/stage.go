package duckdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/duckmesh/reportdesk/internal/storage"
)

var parquetMagic = []byte("PAR1")

// ErrNotParquet is returned when a dataset object is not a parquet file.
var ErrNotParquet = errors.New("dataset object is not parquet")

// stageDataset copies a dataset object into localPath so DuckDB can scan it
// with read_parquet. It returns the number of bytes staged.
func stageDataset(ctx context.Context, store storage.ObjectStore, key, localPath string) (int64, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local parquet file %q: %w", localPath, err)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("write local parquet file %q: %w", localPath, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close local parquet file %q: %w", localPath, closeErr)
	}
	if err := checkParquetMagic(localPath, written); err != nil {
		return 0, fmt.Errorf("object %q: %w", key, err)
	}
	return written, nil
}

// checkParquetMagic looks for the PAR1 marker at both ends of the file.
func checkParquetMagic(path string, size int64) error {
	if size < int64(2*len(parquetMagic)) {
		return ErrNotParquet
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	head := make([]byte, len(parquetMagic))
	if _, err := file.ReadAt(head, 0); err != nil {
		return err
	}
	tail := make([]byte, len(parquetMagic))
	if _, err := file.ReadAt(tail, size-int64(len(parquetMagic))); err != nil {
		return err
	}
	if !bytes.Equal(head, parquetMagic) || !bytes.Equal(tail, parquetMagic) {
		return ErrNotParquet
	}
	return nil
}
