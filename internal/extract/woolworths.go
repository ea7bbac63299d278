package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
)

// WoolworthsExtractor parses the category-search JSON the Woolworths site
// serves. Records sit several wrapper layers deep; each carries display
// attributes, a starting price, and an external image reference.
type WoolworthsExtractor struct{}

type wwResponse struct {
	Contents []struct {
		MainContent []struct {
			Contents []struct {
				Records []wwRecord `json:"records"`
			} `json:"contents"`
		} `json:"mainContent"`
	} `json:"contents"`
}

type wwRecord struct {
	Attributes struct {
		DisplayName string `json:"p_displayName"`
		Promotion   string `json:"PROMOTION"`
		ImageRef    string `json:"p_externalImageReference"`
	} `json:"attributes"`
	StartingPrice struct {
		PL10 json.Number `json:"p_pl10"`
	} `json:"startingPrice"`
}

// Extract implements Extractor.
func (WoolworthsExtractor) Extract(p *fetch.Payload) ([]RawProduct, error) {
	var resp wwResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", p.Page, err)
	}
	records, err := resp.records(p.Page)
	if err != nil {
		return nil, err
	}

	out := make([]RawProduct, 0, len(records))
	for _, rec := range records {
		name := strings.TrimSpace(rec.Attributes.DisplayName)
		if name == "" {
			continue
		}
		// Content cards masquerade as records; they carry no price.
		if strings.HasPrefix(name, "FFF_") {
			continue
		}
		rp := RawProduct{
			Name:           name,
			PromotionPrice: strings.TrimSpace(rec.Attributes.Promotion),
			ImageRef:       strings.TrimSpace(rec.Attributes.ImageRef),
		}
		if s := rec.StartingPrice.PL10.String(); s != "" {
			rp.Price = "R" + s
		}
		out = append(out, normalize(rp))
	}
	return out, nil
}

func (r *wwResponse) records(page int) ([]wwRecord, error) {
	if len(r.Contents) == 0 || len(r.Contents[0].MainContent) == 0 ||
		len(r.Contents[0].MainContent[0].Contents) == 0 {
		return nil, fmt.Errorf("page %d: response missing record container", page)
	}
	return r.Contents[0].MainContent[0].Contents[0].Records, nil
}
