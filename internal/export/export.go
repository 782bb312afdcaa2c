// Package export writes findings in the backend's CSV interchange format,
// optionally compressed.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/scanboard/models"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression values accepted in config and on the command line.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// Header matches the column layout of the backend's /api/export.
var Header = []string{"ID", "Name", "Severity", "Host", "Template ID", "State", "Matched At", "First Seen", "Last Seen"}

// Source streams the server-side export.
type Source interface {
	Export(ctx context.Context, w io.Writer) (int64, error)
}

// ParseCompression validates a compression name. Empty means none.
func ParseCompression(raw string) (string, error) {
	switch c := strings.ToLower(strings.TrimSpace(raw)); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, "gz":
		return CompressionGzip, nil
	case CompressionZstd, "zst":
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q (valid: none, gzip, zstd)", raw)
	}
}

// Extension returns the file suffix for compression, e.g. ".csv.gz".
func Extension(compression string) string {
	switch compression {
	case CompressionGzip:
		return ".csv.gz"
	case CompressionZstd:
		return ".csv.zst"
	default:
		return ".csv"
	}
}

// DefaultFilename is findings-<timestamp> with the right extension.
func DefaultFilename(compression string, now time.Time) string {
	return "findings-" + now.UTC().Format("20060102-150405") + Extension(compression)
}

// NewWriter wraps w with the chosen compressor. Close flushes the compressor
// but does not close w.
func NewWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case "", CompressionNone:
		return nopCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
}

// NewReader is the inverse of NewWriter.
func NewReader(r io.Reader, compression string) (io.ReadCloser, error) {
	switch compression {
	case "", CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
}

// ServerToFile streams the backend export into path. It returns the number
// of uncompressed bytes received. A partial file is removed on failure.
func ServerToFile(ctx context.Context, src Source, path, compression string) (n int64, err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w, err := NewWriter(f, compression)
	if err != nil {
		return 0, err
	}
	n, err = src.Export(ctx, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("flushing export: %w", cerr)
	}
	return n, err
}

// CountRecords reads back an export file and returns the number of data rows
// after the header.
func CountRecords(path, compression string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	r, err := NewReader(f, compression)
	if err != nil {
		return 0, err
	}
	defer r.Close() //nolint:errcheck

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	n := 0
	for {
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading export: %w", err)
		}
		n++
	}
	if n > 0 {
		n--
	}
	return n, nil
}

// WriteCSV writes findings in the same layout as the backend export. It is
// used for exports of a locally filtered view.
func WriteCSV(w io.Writer, list []models.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, f := range list {
		if err := cw.Write(Row(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row renders one finding as a CSV record.
func Row(f models.Finding) []string {
	return []string{
		strconv.FormatInt(f.ID, 10),
		f.Name,
		f.Severity,
		f.Host,
		f.TemplateID,
		string(f.State),
		f.MatchedAt,
		f.FirstSeen.Format(time.RFC3339),
		f.LastSeen.Format(time.RFC3339),
	}
}

// FindingsToFile writes list to path as (optionally compressed) CSV.
func FindingsToFile(path, compression string, list []models.Finding) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	w, err := NewWriter(f, compression)
	if err != nil {
		return err
	}
	if err := WriteCSV(w, list); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
