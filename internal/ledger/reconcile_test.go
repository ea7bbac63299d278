package ledger

import (
	"os"
	"path/filepath"
	"testing"
)

const noPromo = "No promo"

func TestReconcileRepairsDuplicateSequence(t *testing.T) {
	in := []ProductRecord{
		rec(41, "Bread", "R18", noPromo),
		rec(42, "Milk 1L", "R20", noPromo),
		rec(42, "Eggs 18s", "R55", noPromo),
	}

	got := Reconcile(in, 0, noPromo)
	if len(got) != 3 {
		t.Fatalf("no rows should be discarded, got %d", len(got))
	}
	if got[1].Name != "Milk 1L" || got[1].Index != 42 {
		t.Errorf("first claimant should keep the id: %+v", got[1])
	}
	last := got[2]
	if last.Name != "Eggs 18s" || last.Index != 43 {
		t.Errorf("displaced row should move to max+1 at the end: %+v", last)
	}
}

func TestReconcileRespectsFloor(t *testing.T) {
	in := []ProductRecord{
		rec(5, "Milk 1L", "R20", noPromo),
		rec(5, "Bread", "R18", noPromo),
	}

	got := Reconcile(in, 17499, noPromo)
	if got[1].Index != 17500 {
		t.Errorf("reassigned id must sit above the namespace floor, got %d", got[1].Index)
	}
}

func TestReconcileCollapsesDuplicateProducts(t *testing.T) {
	in := []ProductRecord{
		rec(0, "Milk 1L", "R20", noPromo),
		rec(1, "Milk 1L", "R20", "R18"),
	}

	got := Reconcile(in, 0, noPromo)
	if len(got) != 1 {
		t.Fatalf("expected one survivor, got %d", len(got))
	}
	if got[0].PromotionPrice != "R18" {
		t.Errorf("the promoted row should win, got %+v", got[0])
	}
}

func TestReconcileTiesKeepFirstSeen(t *testing.T) {
	a := rec(0, "Bread", "R18", "R15")
	a.ImageURL = "https://img.example/first"
	b := rec(1, "Bread", "R18", "R16")
	b.ImageURL = "https://img.example/second"

	got := Reconcile([]ProductRecord{a, b}, 0, noPromo)
	if len(got) != 1 || got[0].ImageURL != "https://img.example/first" {
		t.Fatalf("two promoted rows should tie to first seen: %+v", got)
	}
}

func TestReconcileSequenceUniqueness(t *testing.T) {
	in := []ProductRecord{
		rec(0, "A", "R1", noPromo),
		rec(0, "B", "R2", noPromo),
		rec(0, "C", "R3", noPromo),
		rec(7, "D", "R4", noPromo),
		rec(7, "E", "R5", "R4"),
	}

	got := Reconcile(in, 0, noPromo)
	seen := make(map[int64]bool)
	for _, r := range got {
		if seen[r.Index] {
			t.Fatalf("duplicate sequence id %d after reconciliation", r.Index)
		}
		seen[r.Index] = true
	}
	if len(got) != 5 {
		t.Errorf("distinct products should all survive, got %d", len(got))
	}
}

func TestReconcileFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	w, err := OpenWriter(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append([]ProductRecord{
		rec(0, "Milk 1L", "R20", noPromo),
		rec(1, "Milk 1L", "R20", "R18"),
		rec(1, "Bread", "R18", noPromo),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	n, err := ReconcileFile(path, 0, noPromo, nil)
	if err != nil {
		t.Fatalf("ReconcileFile: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", n)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load after reconcile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rebuilt ledger has %d rows, want 2", len(got))
	}
	if got[0].Name != "Milk 1L" || got[0].PromotionPrice != "R18" {
		t.Errorf("survivor = %+v", got[0])
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after reconcile")
	}
}

func TestReconcileFileLeavesCorruptLedgerUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")
	corrupt := "index,name,price,promotion_price,retailer,image_url,promotion_valid\ngarbage row\n"
	if err := os.WriteFile(path, []byte(corrupt), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReconcileFile(path, 0, noPromo, nil); err == nil {
		t.Fatal("corrupt ledger should fail reconciliation")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != corrupt {
		t.Error("corrupt ledger was modified by a failed reconciliation")
	}
}
