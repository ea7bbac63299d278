package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
)

// PnPExtractor parses the product-search JSON from the Pick n Pay hybris
// API: a flat products list with formatted prices, optional promotions,
// and a set of image renditions per product.
type PnPExtractor struct{}

type pnpResponse struct {
	Products []struct {
		Name  string `json:"name"`
		Price struct {
			FormattedValue string `json:"formattedValue"`
		} `json:"price"`
		PotentialPromotions []struct {
			PromotionTextMessage string `json:"promotionTextMessage"`
		} `json:"potentialPromotions"`
		Images []struct {
			Format string `json:"format"`
			URL    string `json:"url"`
		} `json:"images"`
	} `json:"products"`
}

// Extract implements Extractor.
func (PnPExtractor) Extract(p *fetch.Payload) ([]RawProduct, error) {
	var resp pnpResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", p.Page, err)
	}
	if resp.Products == nil {
		return nil, fmt.Errorf("page %d: response has no products list", p.Page)
	}

	out := make([]RawProduct, 0, len(resp.Products))
	for _, prod := range resp.Products {
		name := strings.TrimSpace(prod.Name)
		if name == "" {
			continue
		}
		rp := RawProduct{
			Name:  name,
			Price: strings.TrimSpace(prod.Price.FormattedValue),
		}
		if len(prod.PotentialPromotions) > 0 {
			rp.PromotionPrice = strings.TrimSpace(prod.PotentialPromotions[0].PromotionTextMessage)
		}
		for _, img := range prod.Images {
			if img.Format == "carousel" {
				rp.ImageRef = img.URL
				break
			}
		}
		out = append(out, normalize(rp))
	}
	return out, nil
}
