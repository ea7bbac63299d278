package extract

import (
	"strings"
	"testing"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

const hybrisPage = `
<html><body>
<div class="item-product">
  <h3 class="item-product__name">Full Cream Milk 2L</h3>
  <span class="before">R38.99</span>
  <span class="now">R32.99</span>
  <span class="item-product__valid">Valid until 30 June</span>
  <img data-original-src="https://cdn.discovery-vitality.example/badge.png"/>
  <img data-original-src="/medias/milk-2l.png"/>
</div>
<div class="item-product">
  <h3 class="item-product__name">White Bread 700g</h3>
  <span class="now">R18.99</span>
  <img data-original-src="https://img.example.com/bread.png"/>
</div>
<div class="item-product">
  <h3 class="item-product__name">Gift Card</h3>
</div>
</body></html>`

func TestHybrisExtract(t *testing.T) {
	e := &HybrisExtractor{ImageHost: "https://www.shoprite.co.za"}
	got, err := e.Extract(&fetch.Payload{Retailer: retailer.Shoprite, Page: 2, Body: []byte(hybrisPage)})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 products, got %d", len(got))
	}

	promo := got[0]
	if promo.Name != "Full Cream Milk 2L" {
		t.Errorf("name = %q", promo.Name)
	}
	if promo.Price != "R38.99" {
		t.Errorf("price should prefer the struck-through original, got %q", promo.Price)
	}
	if promo.PromotionPrice != "R32.99" {
		t.Errorf("promotion price = %q", promo.PromotionPrice)
	}
	if promo.PromotionValid != "Valid until 30 June" {
		t.Errorf("promotion validity = %q", promo.PromotionValid)
	}
	if promo.ImageRef != "https://www.shoprite.co.za/medias/milk-2l.png" {
		t.Errorf("relative image ref not resolved against host: %q", promo.ImageRef)
	}

	plain := got[1]
	if plain.Price != "R18.99" {
		t.Errorf("plain price = %q", plain.Price)
	}
	if plain.PromotionPrice != NoPromo {
		t.Errorf("unpromoted item should carry the sentinel, got %q", plain.PromotionPrice)
	}

	bare := got[2]
	if bare.Price != NoPrice {
		t.Errorf("priceless tile should record %q, got %q", NoPrice, bare.Price)
	}
	if bare.ImageRef != "" {
		t.Errorf("tile without images should have empty ref, got %q", bare.ImageRef)
	}
}

func TestHybrisExtractRejectsEmptyDocument(t *testing.T) {
	e := &HybrisExtractor{}
	_, err := e.Extract(&fetch.Payload{Page: 1, Body: []byte("<html><body>maintenance</body></html>")})
	if err == nil {
		t.Fatal("document without tiles should fail extraction")
	}
}

const woolworthsPage = `{
  "contents": [{
    "mainContent": [{
      "contents": [{
        "records": [
          {
            "attributes": {
              "p_displayName": "Free Range Eggs 18s",
              "PROMOTION": "2 for R90",
              "p_externalImageReference": "https://img.woolies.example/eggs.jpg"
            },
            "startingPrice": {"p_pl10": 54.99}
          },
          {
            "attributes": {"p_displayName": "FFF_Water_Content_Card_Wk43"}
          },
          {
            "attributes": {"p_displayName": "Oat Milk 1L"},
            "startingPrice": {"p_pl10": 31}
          }
        ]
      }]
    }]
  }]
}`

func TestWoolworthsExtract(t *testing.T) {
	got, err := WoolworthsExtractor{}.Extract(&fetch.Payload{Retailer: retailer.Woolworths, Page: 0, Body: []byte(woolworthsPage)})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("content cards should be dropped; got %d products", len(got))
	}
	if got[0].Price != "R54.99" {
		t.Errorf("price = %q", got[0].Price)
	}
	if got[0].PromotionPrice != "2 for R90" {
		t.Errorf("promotion = %q", got[0].PromotionPrice)
	}
	if got[1].PromotionPrice != NoPromo {
		t.Errorf("missing promotion should fall back to sentinel, got %q", got[1].PromotionPrice)
	}
}

func TestWoolworthsExtractMissingContainer(t *testing.T) {
	_, err := WoolworthsExtractor{}.Extract(&fetch.Payload{Page: 4, Body: []byte(`{"contents":[]}`)})
	if err == nil || !strings.Contains(err.Error(), "page 4") {
		t.Fatalf("expected container error naming the page, got %v", err)
	}
}

const pnpPage = `{
  "products": [
    {
      "name": "Sunflower Oil 2L",
      "price": {"formattedValue": "R89.99"},
      "potentialPromotions": [{"promotionTextMessage": "Save R10"}],
      "images": [
        {"format": "thumbnail", "url": "https://img.pnp.example/oil-t.jpg"},
        {"format": "carousel", "url": "https://img.pnp.example/oil.jpg"}
      ]
    },
    {
      "name": "Rice 5kg",
      "price": {"formattedValue": "R120.00"},
      "images": []
    }
  ]
}`

func TestPnPExtract(t *testing.T) {
	got, err := PnPExtractor{}.Extract(&fetch.Payload{Retailer: retailer.PickNPay, Page: 1, Body: []byte(pnpPage)})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d", len(got))
	}
	if got[0].ImageRef != "https://img.pnp.example/oil.jpg" {
		t.Errorf("should pick the carousel rendition, got %q", got[0].ImageRef)
	}
	if got[0].PromotionPrice != "Save R10" {
		t.Errorf("promotion = %q", got[0].PromotionPrice)
	}
	if got[1].PromotionPrice != NoPromo {
		t.Errorf("no promotions should yield sentinel, got %q", got[1].PromotionPrice)
	}
}

func TestPnPExtractMalformed(t *testing.T) {
	if _, err := (PnPExtractor{}).Extract(&fetch.Payload{Page: 9, Body: []byte(`<html>`)}); err == nil {
		t.Fatal("HTML handed to the JSON extractor should fail")
	}
	if _, err := (PnPExtractor{}).Extract(&fetch.Payload{Page: 9, Body: []byte(`{}`)}); err == nil {
		t.Fatal("response without a products list should fail")
	}
}

func TestBuilderPagination(t *testing.T) {
	ww := Builder(retailer.Woolworths, "https://example.test/search?cat=Food", 24)
	if got := ww(3).URL; !strings.Contains(got, "No=72") || !strings.Contains(got, "Nrpp=24") {
		t.Errorf("woolworths builder: %q", got)
	}

	pnp := Builder(retailer.PickNPay, "https://example.test/search?q=all", 72)
	req := pnp(2)
	if req.Method != "POST" {
		t.Errorf("pnp requests should POST, got %q", req.Method)
	}
	if !strings.Contains(req.URL, "currentPage=2") {
		t.Errorf("pnp builder: %q", req.URL)
	}

	chk := Builder(retailer.Checkers, "https://example.test/c-2413?q=all", 20)
	if got := chk(7).URL; !strings.HasSuffix(got, "&page=7") {
		t.Errorf("checkers builder: %q", got)
	}
}
