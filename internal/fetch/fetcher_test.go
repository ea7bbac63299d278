package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

func testBuilder(base string) RequestBuilder {
	return func(page int) Request {
		return Request{URL: fmt.Sprintf("%s/listing?page=%d", base, page)}
	}
}

func TestFetchReturnsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "3" {
			t.Errorf("unexpected page param: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, "page body")
	}))
	defer srv.Close()

	f, err := New(Options{Retailer: retailer.Shoprite, Build: testBuilder(srv.URL)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	p, err := f.Fetch(context.Background(), 3)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(p.Body) != "page body" {
		t.Errorf("body = %q", p.Body)
	}
	if p.Page != 3 || p.Retailer != retailer.Shoprite {
		t.Errorf("payload metadata = %+v", p)
	}
}

func TestFetchSetsRotatedIdentity(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Header.Get("User-Agent")]++
		mu.Unlock()
	}))
	defer srv.Close()

	f, err := New(Options{
		Retailer:   retailer.Checkers,
		Build:      testBuilder(srv.URL),
		Identities: []string{"bot-a", "bot-b"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := f.Fetch(context.Background(), i); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}

	for ua := range seen {
		if ua != "bot-a" && ua != "bot-b" {
			t.Errorf("unexpected identity %q", ua)
		}
	}
}

func TestFetchClassification(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusInternalServerError, Transient},
		{http.StatusBadGateway, Transient},
		{http.StatusTooManyRequests, Transient},
		{http.StatusNotFound, Permanent},
		{http.StatusForbidden, Permanent},
	}

	for _, c := range cases {
		status := c.status
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		f, err := New(Options{Retailer: retailer.PickNPay, Build: testBuilder(srv.URL)})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		_, err = f.Fetch(context.Background(), 1)
		srv.Close()

		var fe *Error
		if !errors.As(err, &fe) {
			t.Fatalf("status %d: expected *Error, got %v", c.status, err)
		}
		if fe.Kind != c.want {
			t.Errorf("status %d classified %s, want %s", c.status, fe.Kind, c.want)
		}
		if fe.StatusCode != c.status {
			t.Errorf("status %d recorded as %d", c.status, fe.StatusCode)
		}
	}
}

func TestFetchTransportErrorIsTransient(t *testing.T) {
	// Server that is already closed: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f, err := New(Options{Retailer: retailer.Woolworths, Build: testBuilder(url)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = f.Fetch(context.Background(), 1)
	if !IsTransient(err) {
		t.Errorf("connection refused should classify transient, got %v", err)
	}
}

func TestFetchObservesMinInterval(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
	}))
	defer srv.Close()

	f, err := New(Options{
		Retailer:    retailer.Shoprite,
		Build:       testBuilder(srv.URL),
		MinInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), i); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 40*time.Millisecond {
			t.Errorf("request gap %v below configured interval", gap)
		}
	}
}
