package sink

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/ledger"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

// fakeUpserter records batch sizes and fails scripted batches.
type fakeUpserter struct {
	batches   [][]ledger.ProductRecord
	failBatch map[int]bool
	seenCalls int
}

func (f *fakeUpserter) Upsert(_ context.Context, batch []ledger.ProductRecord) error {
	call := f.seenCalls
	f.seenCalls++
	f.batches = append(f.batches, batch)
	if f.failBatch[call] {
		return errors.New("connection reset")
	}
	return nil
}

func mkRecords(ret retailer.Retailer, n int) []ledger.ProductRecord {
	out := make([]ledger.ProductRecord, n)
	for i := range out {
		out[i] = ledger.ProductRecord{
			Index:    int64(i),
			Name:     fmt.Sprintf("Product %d", i),
			Price:    "R10",
			Retailer: ret,
		}
	}
	return out
}

func TestPushBoundedBatches(t *testing.T) {
	up := &fakeUpserter{}
	records := mkRecords(retailer.Checkers, 1250)

	failed := Push(context.Background(), up, records, retailer.Checkers, 500, nil)
	if failed != 0 {
		t.Fatalf("failed batches = %d", failed)
	}
	if len(up.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(up.batches))
	}
	if len(up.batches[0]) != 500 || len(up.batches[1]) != 500 || len(up.batches[2]) != 250 {
		t.Errorf("batch sizes = %d, %d, %d", len(up.batches[0]), len(up.batches[1]), len(up.batches[2]))
	}
}

func TestPushContinuesPastFailedBatch(t *testing.T) {
	up := &fakeUpserter{failBatch: map[int]bool{0: true}}
	records := mkRecords(retailer.Checkers, 1000)

	failed := Push(context.Background(), up, records, retailer.Checkers, 500, nil)
	if failed != 1 {
		t.Fatalf("failed batches = %d, want 1", failed)
	}
	if len(up.batches) != 2 {
		t.Fatalf("a failed batch must not stop the rest, got %d calls", len(up.batches))
	}
}

func TestPushFiltersToRetailerNamespace(t *testing.T) {
	up := &fakeUpserter{}
	mixed := append(mkRecords(retailer.Checkers, 3), mkRecords(retailer.Woolworths, 2)...)

	Push(context.Background(), up, mixed, retailer.Woolworths, 500, nil)
	if len(up.batches) != 1 || len(up.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2 woolworths records, got %+v", up.batches)
	}
	for _, r := range up.batches[0] {
		if r.Retailer != retailer.Woolworths {
			t.Errorf("foreign record pushed: %+v", r)
		}
	}
}

func TestPushEmpty(t *testing.T) {
	up := &fakeUpserter{}
	if failed := Push(context.Background(), up, nil, retailer.Checkers, 500, nil); failed != 0 {
		t.Fatalf("failed = %d", failed)
	}
	if len(up.batches) != 0 {
		t.Fatalf("no batches expected, got %d", len(up.batches))
	}
}
