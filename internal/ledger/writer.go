package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"
)

// Writer is the single append path for one retailer's ledger file. Workers
// hand completed pages to one Writer; the file never has concurrent
// appenders.
type Writer struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
}

// OpenWriter opens (or creates) the ledger at path for appending. The
// header row is written only when the file is new or empty.
func OpenWriter(path string, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	w := &Writer{
		path: path,
		log:  logger.With("component", "ledger"),
		file: f,
		csv:  csv.NewWriter(f),
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat ledger %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := w.csv.Write(Columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write ledger header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write ledger header: %w", err)
		}
	}
	return w, nil
}

// Append durably writes one page's records. Rows reach disk before Append
// returns, so a crash loses at most the page in flight.
func (w *Writer) Append(records []ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range records {
		if err := w.csv.Write(r.row()); err != nil {
			return fmt.Errorf("append to ledger %s: %w", w.path, err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush ledger %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger %s: %w", w.path, err)
	}
	return nil
}

// Path returns the ledger file path.
func (w *Writer) Path() string { return w.path }

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush ledger %s: %w", w.path, err)
	}
	return w.file.Close()
}

// Load reads all records from the ledger at path. A missing file is an
// empty ledger, not an error. Files are decoded as UTF-8 with a latin1
// fallback for ledgers written by older tooling.
func Load(path string) ([]ProductRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode ledger %s: %w", path, err)
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(Columns)

	var out []ProductRecord
	line := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse ledger %s: %w", path, err)
		}
		line++
		if line == 1 && isHeader(row) {
			continue
		}
		rec, err := recordFromRow(row, line)
		if err != nil {
			return nil, fmt.Errorf("parse ledger %s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Backup snapshots the ledger at path into dir as a gzip'd copy named
// after today's date. A missing ledger is a no-op.
func Backup(path, dir string, now time.Time) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory %s: %w", dir, err)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s_%s%s.gz", base[:len(base)-len(ext)], now.Format("2006-01-02"), ext)
	dst := filepath.Join(dir, name)

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup %s: %w", dst, err)
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write backup %s: %w", dst, err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("finish backup %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close backup %s: %w", dst, err)
	}
	return dst, nil
}
