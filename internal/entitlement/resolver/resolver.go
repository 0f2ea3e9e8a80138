// Package resolver merges the tiers reported by the two payment authorities
// into one canonical snapshot. The merge policy lives here and nowhere else.
package resolver

import (
	"time"

	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/entitlement/domain"
)

// Resolve computes the canonical entitlements from both providers' reported
// tiers. Highest tier wins; a tie prefers traditional since it requires no
// further network action. Pure function, no I/O.
func Resolve(traditionalTier, cryptoTier catalog.Tier, now time.Time) domain.Entitlements {
	tier := catalog.Max(traditionalTier, cryptoTier)

	method := domain.PaymentMethodTraditional
	if cryptoTier.Rank() > traditionalTier.Rank() {
		method = domain.PaymentMethodCrypto
	}

	return domain.Entitlements{
		Tier:          tier,
		Features:      catalog.Features(tier),
		IsActive:      tier != catalog.TierBasic,
		PaymentMethod: method,
		LastUpdated:   now,
	}
}
