// Package traditional adapts the app-store billing authority to the common
// provider contract. All vendor protocol detail stays behind the
// BillingAuthority interface.
package traditional

import (
	"context"
	"fmt"
	"sync"

	"github.com/voyatra/hybridpay/internal/catalog"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/provider/domain"
	"go.uber.org/zap"
)

// Entitlement identifiers the billing authority reports on active customers.
var entitlementIDs = map[catalog.Tier]string{
	catalog.TierBasic:   "travel_basic",
	catalog.TierPremium: "travel_premium",
	catalog.TierVIP:     "travel_vip",
}

// AuthorityOffering is an offering as the billing authority lists it.
type AuthorityOffering struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
}

// AuthorityReceipt is the result of a completed billing flow.
type AuthorityReceipt struct {
	Receipt             string   `json:"receipt"`
	ActiveEntitlements  []string `json:"active_entitlements"`
	TransactionID       string   `json:"transaction_id"`
	OriginalTransaction string   `json:"original_transaction,omitempty"`
}

// BillingAuthority is the consumed surface of the traditional billing
// service.
type BillingAuthority interface {
	Configure(ctx context.Context, userID string) error
	ListOfferings(ctx context.Context) ([]AuthorityOffering, error)

	// Purchase blocks until the billing UI flow completes.
	Purchase(ctx context.Context, offeringID string) (*AuthorityReceipt, error)
	CustomerState(ctx context.Context) ([]string, error)
	Restore(ctx context.Context) ([]string, error)
}

type Adapter struct {
	authority BillingAuthority
	userID    string
	log       *zap.Logger

	mu          sync.Mutex
	initialized bool
}

func New(authority BillingAuthority, userID string, log *zap.Logger) *Adapter {
	return &Adapter{
		authority: authority,
		userID:    userID,
		log:       log.Named("provider.traditional"),
	}
}

func (a *Adapter) Method() entitlementdomain.PaymentMethod {
	return entitlementdomain.PaymentMethodTraditional
}

// Initialize configures the authority for the local user. Safe to call more
// than once; only the first call reaches the authority.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if err := a.authority.Configure(ctx, a.userID); err != nil {
		return unavailable("configure", err)
	}
	a.initialized = true
	return nil
}

func (a *Adapter) GetOfferings(ctx context.Context) ([]domain.Offering, error) {
	if err := a.ensureInitialized(); err != nil {
		return nil, err
	}

	listed, err := a.authority.ListOfferings(ctx)
	if err != nil {
		return nil, unavailable("list offerings", err)
	}

	offerings := make([]domain.Offering, 0, len(listed))
	for _, o := range listed {
		tier, duration, ok := productCatalogEntry(o.ProductID)
		if !ok {
			a.log.Debug("skipping offering with unknown product", zap.String("product_id", o.ProductID))
			continue
		}
		plan, _ := catalog.PlanFor(tier)
		offerings = append(offerings, domain.Offering{
			ID:       o.ID,
			Tier:     tier,
			Duration: duration,
			Price:    plan.Traditional[duration].Price,
			Currency: o.Currency,
		})
	}
	return offerings, nil
}

// Purchase runs the billing flow for the requested offering and returns the
// receipt. The receipt still has to pass backend validation before any tier
// is granted.
func (a *Adapter) Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.PurchaseOutcome, error) {
	if err := a.ensureInitialized(); err != nil {
		return nil, err
	}

	offeringID := req.OfferingID
	if offeringID == "" {
		resolved, err := a.findOffering(ctx, req.Tier, req.Duration)
		if err != nil {
			return nil, err
		}
		offeringID = resolved.ID
	}

	receipt, err := a.authority.Purchase(ctx, offeringID)
	if err != nil {
		return nil, unavailable("purchase", err)
	}

	if id := entitlementIDs[req.Tier]; !contains(receipt.ActiveEntitlements, id) {
		// The flow finished but the authority does not report the tier as
		// active; never grant on ambiguous confirmation.
		return nil, fmt.Errorf("%w: purchase completed without entitlement %s", domain.ErrProviderUnavailable, id)
	}

	return &domain.PurchaseOutcome{
		Method:  entitlementdomain.PaymentMethodTraditional,
		Tier:    req.Tier,
		Receipt: receipt.Receipt,
	}, nil
}

// CheckStatus maps the authority's active entitlement identifiers to the
// highest tier they unlock, or Basic if none.
func (a *Adapter) CheckStatus(ctx context.Context) (catalog.Tier, error) {
	if err := a.ensureInitialized(); err != nil {
		return catalog.TierBasic, err
	}

	active, err := a.authority.CustomerState(ctx)
	if err != nil {
		return catalog.TierBasic, unavailable("customer state", err)
	}
	return highestTier(active), nil
}

// Restore replays prior purchases with the authority.
func (a *Adapter) Restore(ctx context.Context) (bool, error) {
	if err := a.ensureInitialized(); err != nil {
		return false, err
	}

	active, err := a.authority.Restore(ctx)
	if err != nil {
		return false, unavailable("restore", err)
	}
	return highestTier(active) != catalog.TierBasic, nil
}

func (a *Adapter) ensureInitialized() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

func (a *Adapter) findOffering(ctx context.Context, tier catalog.Tier, duration catalog.Duration) (domain.Offering, error) {
	offerings, err := a.GetOfferings(ctx)
	if err != nil {
		return domain.Offering{}, err
	}
	for _, o := range offerings {
		if o.Tier == tier && o.Duration == duration {
			return o, nil
		}
	}
	return domain.Offering{}, domain.ErrOfferingNotFound
}

func highestTier(activeEntitlements []string) catalog.Tier {
	best := catalog.TierBasic
	for tier, id := range entitlementIDs {
		if tier == catalog.TierBasic {
			continue
		}
		if contains(activeEntitlements, id) {
			best = catalog.Max(best, tier)
		}
	}
	return best
}

func productCatalogEntry(productID string) (catalog.Tier, catalog.Duration, bool) {
	for _, tier := range catalog.Tiers() {
		plan, _ := catalog.PlanFor(tier)
		for duration, price := range plan.Traditional {
			if price.ProductID == productID {
				return tier, duration, true
			}
		}
	}
	return "", "", false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, op, err)
}
