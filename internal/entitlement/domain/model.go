package domain

import (
	"errors"
	"time"

	"github.com/voyatra/hybridpay/internal/catalog"
)

// PaymentMethod identifies which payment authority backs an entitlement.
type PaymentMethod string

const (
	PaymentMethodTraditional PaymentMethod = "traditional"
	PaymentMethodCrypto      PaymentMethod = "crypto"
)

// Valid reports whether the method is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodTraditional || m == PaymentMethodCrypto
}

// Entitlements is the canonical snapshot of what the user may access.
// It is owned by the reconciliation manager and handed out by value.
type Entitlements struct {
	Tier          catalog.Tier       `json:"tier"`
	Features      catalog.FeatureSet `json:"features"`
	IsActive      bool               `json:"is_active"`
	PaymentMethod PaymentMethod      `json:"payment_method"`
	LastUpdated   time.Time          `json:"last_updated"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
}

// Clone returns an independent copy, including the feature set.
func (e Entitlements) Clone() Entitlements {
	out := e
	out.Features = e.Features.Clone()
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// TierFor returns the tier this snapshot attributes to the given method,
// or Basic when the method does not back the snapshot. Used as the cache
// fallback when a live provider check fails.
func (e Entitlements) TierFor(method PaymentMethod) catalog.Tier {
	if e.PaymentMethod == method {
		return e.Tier
	}
	return catalog.TierBasic
}

var (
	ErrSnapshotNotFound = errors.New("entitlement snapshot not found")
	ErrStoreIO          = errors.New("entitlement store io failure")
)
