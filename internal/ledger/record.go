package ledger

import (
	"fmt"
	"strconv"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

// Columns is the ledger schema, in file order. The sequence id column is
// historically named "index".
var Columns = []string{"index", "name", "price", "promotion_price", "retailer", "image_url", "promotion_valid"}

// ProductRecord is one catalog entry at a point in time. Records are
// immutable once appended; corrections are written as new rows and the
// reconciler picks a winner.
type ProductRecord struct {
	Index          int64
	Name           string
	Price          string
	PromotionPrice string
	Retailer       retailer.Retailer
	ImageURL       string
	PromotionValid string
}

func (r ProductRecord) row() []string {
	return []string{
		strconv.FormatInt(r.Index, 10),
		r.Name,
		r.Price,
		r.PromotionPrice,
		string(r.Retailer),
		r.ImageURL,
		r.PromotionValid,
	}
}

func recordFromRow(row []string, line int) (ProductRecord, error) {
	if len(row) != len(Columns) {
		return ProductRecord{}, fmt.Errorf("row %d: %d fields, want %d", line, len(row), len(Columns))
	}
	idx, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return ProductRecord{}, fmt.Errorf("row %d: bad sequence id %q: %w", line, row[0], err)
	}
	return ProductRecord{
		Index:          idx,
		Name:           row[1],
		Price:          row[2],
		PromotionPrice: row[3],
		Retailer:       retailer.Retailer(row[4]),
		ImageURL:       row[5],
		PromotionValid: row[6],
	}, nil
}

func isHeader(row []string) bool {
	if len(row) != len(Columns) {
		return false
	}
	for i, c := range Columns {
		if row[i] != c {
			return false
		}
	}
	return true
}

// MaxIndex returns the highest sequence id among records, or -1 when the
// slice is empty.
func MaxIndex(records []ProductRecord) int64 {
	max := int64(-1)
	for _, r := range records {
		if r.Index > max {
			max = r.Index
		}
	}
	return max
}
