// Package extract turns raw page payloads into normalized product rows.
// Site-specific markup rules live here behind a common contract; the
// coordinator depends only on the Extractor interface and never retries an
// extraction failure, since the same payload reproduces the same failure.
package extract

import (
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
)

// NoPromo is the sentinel marking absence of a promotional price. It is a
// fixed string, distinct from empty: downstream reconciliation keys on it.
const NoPromo = "No promo"

// NoPrice is recorded when a tile carries no parseable price at all.
const NoPrice = "no price available"

// RawProduct carries unnormalized field strings for one catalog entry, in
// document order within its page.
type RawProduct struct {
	Name           string
	Price          string
	PromotionPrice string
	PromotionValid string
	ImageRef       string // external image reference; empty when the site has none
}

// Extractor transforms one raw page payload into zero or more products.
type Extractor interface {
	Extract(p *fetch.Payload) ([]RawProduct, error)
}

// normalize fills defaulted fields so every extractor emits the same shape.
func normalize(rp RawProduct) RawProduct {
	if rp.Price == "" {
		rp.Price = NoPrice
	}
	if rp.PromotionPrice == "" {
		rp.PromotionPrice = NoPromo
	}
	if rp.PromotionValid == "" {
		rp.PromotionValid = " "
	}
	return rp
}
