package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/logging"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

const (
	uploadAttempts = 5
	defaultBackoff = time.Second
)

// Resolver turns external image references into durable store URLs. A
// product whose image is already in the store is never re-fetched, and a
// failed download or upload degrades to the placeholder URL rather than
// failing the product.
type Resolver struct {
	store       ContentStore
	client      *http.Client
	placeholder string
	log         *slog.Logger
	backoff     time.Duration

	mu       sync.Mutex
	known    map[string]bool // keys present under listed prefixes
	listed   map[string]bool
	resolved map[string]string

	uploaded int
	reused   int
	failed   int
}

// ResolverStats summarizes one run's image activity.
type ResolverStats struct {
	Uploaded int
	Reused   int
	Failed   int
}

// NewResolver creates a resolver backed by store. placeholder is returned
// for products whose image cannot be obtained.
func NewResolver(store ContentStore, client *http.Client, placeholder string, logger *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:       store,
		client:      client,
		placeholder: placeholder,
		log:         logger.With("component", "images"),
		backoff:     defaultBackoff,
		known:       make(map[string]bool),
		listed:      make(map[string]bool),
		resolved:    make(map[string]string),
	}
}

// RemoteKey derives the store key for a product's image. The same
// (retailer, name) pair always maps to the same key, so re-runs address
// the object uploaded before.
func RemoteKey(r retailer.Retailer, name string) string {
	slug := r.Slug()
	return slug + "/" + slug + "_image_" + sanitizeName(name) + ".jpg"
}

// Resolve returns the durable URL for a product image. priorURL is the
// URL recorded by an earlier run, if any; a real prior URL is trusted
// without touching the store.
func (r *Resolver) Resolve(ctx context.Context, ret retailer.Retailer, name, externalRef, priorURL string) string {
	if priorURL != "" && priorURL != r.placeholder {
		r.count(&r.reused)
		return priorURL
	}

	key := RemoteKey(ret, name)
	log := r.log
	if id := logging.CorrelationID(ctx); id != "" {
		log = log.With("correlation_id", id)
	}

	r.mu.Lock()
	if url, ok := r.resolved[key]; ok {
		r.mu.Unlock()
		return url
	}
	r.mu.Unlock()

	exists, err := r.exists(ctx, ret, key)
	if err != nil {
		log.Warn("image existence check failed", "key", key, "error", err)
	}
	if exists {
		return r.done(key, r.store.PublicURL(key), &r.reused)
	}

	if externalRef == "" {
		return r.done(key, r.placeholder, &r.failed)
	}

	data, err := r.download(ctx, externalRef)
	if err != nil {
		log.Warn("image download failed", "key", key, "url", externalRef, "error", err)
		return r.done(key, r.placeholder, &r.failed)
	}

	if err := r.upload(ctx, key, data, contentTypeFor(externalRef)); err != nil {
		log.Warn("image upload failed", "key", key, "error", err)
		return r.done(key, r.placeholder, &r.failed)
	}
	return r.done(key, r.store.PublicURL(key), &r.uploaded)
}

// Stats returns the counters accumulated since the resolver was created.
func (r *Resolver) Stats() ResolverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ResolverStats{Uploaded: r.uploaded, Reused: r.reused, Failed: r.failed}
}

// exists answers from a per-retailer listing loaded once per run. A
// listing failure is treated as "unknown" and the caller falls through to
// an upload, which is safe because uploads are idempotent per key.
func (r *Resolver) exists(ctx context.Context, ret retailer.Retailer, key string) (bool, error) {
	prefix := ret.Slug() + "/"

	r.mu.Lock()
	if r.listed[prefix] {
		known := r.known[key]
		r.mu.Unlock()
		return known, nil
	}
	r.mu.Unlock()

	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.known[k] = true
	}
	r.listed[prefix] = true
	return r.known[key], nil
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// upload retries transient store failures with exponential backoff. An
// "already exists" failure means another worker or run won the race, which
// leaves the store in exactly the state we wanted.
func (r *Resolver) upload(ctx context.Context, key string, data []byte, contentType string) error {
	var lastErr error
	for attempt := 0; attempt < uploadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff * (1 << (attempt - 1))):
			}
		}

		err := r.store.Upload(ctx, key, data, contentType)
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		lastErr = err
		r.log.Debug("image upload attempt failed", "key", key, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("upload %s after %d attempts: %w", key, uploadAttempts, lastErr)
}

func (r *Resolver) done(key, url string, counter *int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[key] = url
	*counter++
	return url
}

func (r *Resolver) count(counter *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*counter++
}

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeName flattens a product name into a stable key fragment:
// accents are transliterated away and every run of non-alphanumeric
// characters collapses to a single underscore.
func sanitizeName(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, c := range folded {
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(c)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

func contentTypeFor(url string) string {
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch {
	case strings.HasSuffix(u, ".png"):
		return "image/png"
	case strings.HasSuffix(u, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(u, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
