package ledger

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
)

// Reconcile rebuilds a retailer's ledger rows into a clean set:
//
//  1. Duplicate sequence ids are repaired. The first row keeps the id;
//     later claimants are reassigned fresh ids strictly above
//     max(existing ids, floor) and appended at the end.
//  2. Duplicate (name, price) products collapse to one survivor,
//     preferring a row whose promotion price is not the sentinel, with
//     first-seen order breaking ties.
//
// noPromo is the sentinel marking absence of a promotion. floor is the
// retailer's reconciliation floor. The input slice is not modified.
func Reconcile(records []ProductRecord, floor int64, noPromo string) []ProductRecord {
	repaired := repairSequenceIDs(records, floor)
	return collapseDuplicates(repaired, noPromo)
}

func repairSequenceIDs(records []ProductRecord, floor int64) []ProductRecord {
	next := MaxIndex(records)
	if next < floor {
		next = floor
	}

	seen := make(map[int64]bool, len(records))
	kept := make([]ProductRecord, 0, len(records))
	var displaced []ProductRecord
	for _, r := range records {
		if seen[r.Index] {
			displaced = append(displaced, r)
			continue
		}
		seen[r.Index] = true
		kept = append(kept, r)
	}

	for _, r := range displaced {
		next++
		r.Index = next
		kept = append(kept, r)
	}
	return kept
}

func collapseDuplicates(records []ProductRecord, noPromo string) []ProductRecord {
	type key struct{ name, price string }

	best := make(map[key]int, len(records))
	order := make([]key, 0, len(records))
	for i, r := range records {
		k := key{r.Name, r.Price}
		prev, ok := best[k]
		if !ok {
			best[k] = i
			order = append(order, k)
			continue
		}
		// A genuine promotion beats the sentinel; otherwise the
		// first-seen row stands.
		if records[prev].PromotionPrice == noPromo && r.PromotionPrice != noPromo {
			best[k] = i
		}
	}

	out := make([]ProductRecord, 0, len(order))
	for _, k := range order {
		out = append(out, records[best[k]])
	}
	return out
}

// ReconcileFile reconciles the ledger at path in place. The rebuilt file
// replaces the original atomically; if the existing ledger cannot be
// parsed, the error is returned and the file is left untouched.
func ReconcileFile(path string, floor int64, noPromo string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "reconciler")

	records, err := Load(path)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		log.Info("ledger empty, nothing to reconcile", "path", path)
		return 0, nil
	}

	clean := Reconcile(records, floor, noPromo)
	if err := replaceFile(path, clean); err != nil {
		return 0, err
	}

	log.Info("ledger reconciled",
		"path", path,
		"rows_before", len(records),
		"rows_after", len(clean))
	return len(clean), nil
}

// replaceFile writes records to a sibling temp file and renames it over
// path, so a crash never leaves a partially written ledger visible.
func replaceFile(path string, records []ProductRecord) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	for _, r := range records {
		if err := w.Write(r.row()); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write %s: %w", tmp, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
