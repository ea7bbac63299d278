package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
)

// HybrisExtractor parses the item tiles shared by the Checkers and Shoprite
// storefronts. Both sites render the same markup: one .item-product element
// per entry, a struck-through ".before" price when the item is promoted and
// the effective ".now" price, plus an optional validity span.
type HybrisExtractor struct {
	// ImageHost is prepended to relative image references.
	ImageHost string
}

// Extract implements Extractor.
func (e *HybrisExtractor) Extract(p *fetch.Payload) ([]RawProduct, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", p.Page, err)
	}

	tiles := doc.Find(".item-product")
	if tiles.Length() == 0 {
		return nil, fmt.Errorf("page %d: no product tiles in document", p.Page)
	}

	var out []RawProduct
	var bad error
	tiles.EachWithBreak(func(_ int, tile *goquery.Selection) bool {
		name := strings.TrimSpace(tile.Find(".item-product__name").First().Text())
		if name == "" {
			bad = fmt.Errorf("page %d: product tile without a name", p.Page)
			return false
		}

		before := strings.TrimSpace(tile.Find(".before").First().Text())
		now := strings.TrimSpace(tile.Find(".now").First().Text())

		rp := RawProduct{
			Name:           name,
			Price:          pickPrice(before, now),
			PromotionValid: strings.TrimSpace(tile.Find(".item-product__valid").First().Text()),
			ImageRef:       e.imageRef(tile),
		}
		// A struck-through original price means the shown price is the
		// promotion.
		if before != "" && now != "" {
			rp.PromotionPrice = now
		}

		out = append(out, normalize(rp))
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return out, nil
}

// imageRef picks the first real product image, skipping loyalty-badge
// artwork the tiles also carry.
func (e *HybrisExtractor) imageRef(tile *goquery.Selection) string {
	var ref string
	tile.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("data-original-src")
		if !ok || src == "" || strings.Contains(src, "discovery-vitality") {
			return true
		}
		ref = src
		return false
	})
	if ref == "" {
		return ""
	}
	if !strings.HasPrefix(ref, "http") {
		return e.ImageHost + ref
	}
	return ref
}

// pickPrice preserves the source's formatted price string verbatim. The
// original (pre-promotion) price wins when present, then the effective one.
func pickPrice(before, now string) string {
	if hasDigit(before) {
		return before
	}
	if hasDigit(now) {
		return now
	}
	return NoPrice
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
