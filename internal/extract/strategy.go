package extract

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

// ForRetailer returns the extraction strategy for one site.
func ForRetailer(r retailer.Retailer) (Extractor, error) {
	switch r {
	case retailer.Checkers:
		return &HybrisExtractor{ImageHost: "https://www.checkers.co.za"}, nil
	case retailer.Shoprite:
		return &HybrisExtractor{ImageHost: "https://www.shoprite.co.za"}, nil
	case retailer.Woolworths:
		return WoolworthsExtractor{}, nil
	case retailer.PickNPay:
		return PnPExtractor{}, nil
	default:
		return nil, fmt.Errorf("no extractor for retailer %q", r)
	}
}

// Builder returns the request builder matching a retailer's pagination
// scheme. baseURL is the listing endpoint from configuration; pageSize must
// match the site's page span for offset-addressed sites.
func Builder(r retailer.Retailer, baseURL string, pageSize int) fetch.RequestBuilder {
	switch r {
	case retailer.Woolworths:
		// Offset-addressed: No is the absolute record offset.
		return func(page int) fetch.Request {
			u := baseURL + "&No=" + strconv.Itoa(page*pageSize) + "&Nrpp=" + strconv.Itoa(pageSize)
			return fetch.Request{URL: u, Header: jsonHeader()}
		}
	case retailer.PickNPay:
		// The search API is a POST with the page number as a query param.
		return func(page int) fetch.Request {
			u := baseURL + "&currentPage=" + strconv.Itoa(page) + "&pageSize=" + strconv.Itoa(pageSize)
			return fetch.Request{Method: http.MethodPost, URL: u, Header: jsonHeader()}
		}
	default:
		// Page-addressed storefronts (Checkers, Shoprite).
		return func(page int) fetch.Request {
			return fetch.Request{URL: baseURL + "&page=" + strconv.Itoa(page)}
		}
	}
}

// ValidateBaseURL rejects obviously broken configuration before a run
// starts rather than on page one.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url %q: unsupported scheme", raw)
	}
	return nil
}

func jsonHeader() http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json, text/plain, */*")
	return h
}
