package scrape

import (
	"log/slog"
	"sync"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/extract"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/ledger"
)

// FileLedger binds a CSV ledger file to the coordinator's Ledger
// interface. Reconcile closes the append path first; a reconciled ledger
// is the run's final artifact and takes no further appends.
type FileLedger struct {
	path  string
	floor int64
	log   *slog.Logger

	mu     sync.Mutex
	writer *ledger.Writer
	closed bool
}

// NewFileLedger opens (or creates) the ledger at path. floor is the
// retailer's reconciliation floor for reassigned sequence ids.
func NewFileLedger(path string, floor int64, logger *slog.Logger) (*FileLedger, error) {
	w, err := ledger.OpenWriter(path, logger)
	if err != nil {
		return nil, err
	}
	return &FileLedger{path: path, floor: floor, log: logger, writer: w}, nil
}

// Append implements Ledger.
func (l *FileLedger) Append(records []ledger.ProductRecord) error {
	return l.writer.Append(records)
}

// Reconcile implements Ledger.
func (l *FileLedger) Reconcile() (int, error) {
	if err := l.Close(); err != nil {
		return 0, err
	}
	return ledger.ReconcileFile(l.path, l.floor, extract.NoPromo, l.log)
}

// Path returns the ledger file path.
func (l *FileLedger) Path() string { return l.path }

// Close flushes and closes the underlying writer. Safe to call more than
// once.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.writer.Close()
}
