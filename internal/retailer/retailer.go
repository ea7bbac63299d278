// Package retailer defines the fixed set of supported retail sites and the
// per-site constants that partition the ledger namespace between them.
package retailer

import (
	"fmt"
	"strings"
)

// Retailer identifies one source site. The set is fixed; a ProductRecord's
// retailer is set once at extraction time and never mutated.
type Retailer string

const (
	Checkers   Retailer = "Checkers"
	PickNPay   Retailer = "Pick n Pay"
	Shoprite   Retailer = "Shoprite"
	Woolworths Retailer = "Woolworths"
)

// All lists every supported retailer in namespace order.
func All() []Retailer {
	return []Retailer{Checkers, PickNPay, Shoprite, Woolworths}
}

// Parse resolves a command-line or config spelling to a Retailer.
// Matching is case-insensitive and accepts the short slug form.
func Parse(s string) (Retailer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checkers":
		return Checkers, nil
	case "pnp", "picknpay", "pick n pay":
		return PickNPay, nil
	case "shoprite":
		return Shoprite, nil
	case "woolworths", "woolies":
		return Woolworths, nil
	default:
		return "", fmt.Errorf("unknown retailer %q", s)
	}
}

// Slug returns the lowercase identifier used for storage prefixes,
// remote image keys, and default ledger file names.
func (r Retailer) Slug() string {
	switch r {
	case PickNPay:
		return "pnp"
	case Woolworths:
		return "woolies"
	default:
		return strings.ToLower(string(r))
	}
}

// NamespaceFloor returns the first sequence id reserved for this retailer.
// Floors keep the four namespaces disjoint inside a shared catalog; they
// match the offsets the ledger was originally seeded with.
func (r Retailer) NamespaceFloor() int64 {
	switch r {
	case Checkers:
		return 0
	case PickNPay:
		return 7500
	case Shoprite:
		return 17500
	case Woolworths:
		return 29000
	default:
		return 0
	}
}

// ReconcileFloor returns the minimum sequence id below which reassigned
// duplicate ids must not fall during reconciliation.
func (r Retailer) ReconcileFloor() int64 {
	if f := r.NamespaceFloor(); f > 0 {
		return f - 1
	}
	return 0
}

// DefaultPageSize returns the number of items one listing page carries on
// the retailer's site. Sequence ids are derived from it, so it must match
// the site's actual pagination.
func (r Retailer) DefaultPageSize() int {
	switch r {
	case PickNPay:
		return 72
	case Woolworths:
		return 24
	default:
		return 20
	}
}

func (r Retailer) String() string { return string(r) }
