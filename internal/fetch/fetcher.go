// Package fetch issues paginated listing requests against one retail site.
// The fetcher is stateless per call: identity rotation and the minimum
// inter-request interval are the only cross-call effects, and retry policy
// belongs to the coordinator.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

// defaultIdentities is the client-identity pool rotated across task
// attempts. Read-only after startup; safe to share between retailer runs.
var defaultIdentities = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
}

// Payload is one raw page response, handed opaque to the extractor.
type Payload struct {
	Retailer retailer.Retailer
	Page     int
	Body     []byte
}

// PageFetcher is the contract the coordinator depends on.
type PageFetcher interface {
	Fetch(ctx context.Context, page int) (*Payload, error)
}

// Request describes how a retailer's listing endpoint is addressed for a
// given page. Per-site URL shapes vary (query param, path offset, POST
// body), so the site strategy supplies a builder.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// RequestBuilder produces the request for one page of a retailer's catalog.
type RequestBuilder func(page int) Request

// Options configures a Fetcher.
type Options struct {
	Retailer    retailer.Retailer
	Build       RequestBuilder
	MinInterval time.Duration // floor between requests to this retailer
	Timeout     time.Duration
	Identities  []string // override the default identity pool (tests)
	Client      *http.Client
}

// Fetcher issues one network request per (retailer, page) pair. It enforces
// the per-retailer minimum inter-request interval even on the fast path and
// rotates the outbound client identity once per call.
type Fetcher struct {
	ret        retailer.Retailer
	build      RequestBuilder
	client     *http.Client
	limiter    *rate.Limiter
	identities []string

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Fetcher for one retailer.
func New(opts Options) (*Fetcher, error) {
	if opts.Build == nil {
		return nil, fmt.Errorf("fetch: request builder required for %s", opts.Retailer)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	identities := opts.Identities
	if len(identities) == 0 {
		identities = defaultIdentities
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Fetcher{
		ret:        opts.Retailer,
		build:      opts.Build,
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
		identities: identities,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Fetch retrieves one page. The returned error, if any, is a *Error whose
// Kind tells the coordinator whether a retry can help.
func (f *Fetcher) Fetch(ctx context.Context, page int) (*Payload, error) {
	// The interval is a crawl-policy floor, not retry backoff; it is paid
	// before every attempt including the first.
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, Classify(0, err)
	}

	spec := f.build(page)
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return nil, PermanentErr(fmt.Errorf("build request for page %d: %w", page, err))
	}
	for k, vs := range spec.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.pickIdentity())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Classify(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, Classify(resp.StatusCode, nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(0, err)
	}

	return &Payload{Retailer: f.ret, Page: page, Body: raw}, nil
}

func (f *Fetcher) pickIdentity() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identities[f.rng.Intn(len(f.identities))]
}
