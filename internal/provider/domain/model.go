package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voyatra/hybridpay/internal/catalog"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
)

// Offering is a purchasable package as reported by an authority.
type Offering struct {
	ID       string           `json:"id"`
	Tier     catalog.Tier     `json:"tier"`
	Duration catalog.Duration `json:"duration"`
	Price    decimal.Decimal  `json:"price"`
	Currency string           `json:"currency"`
}

// OrderStatus is the lifecycle status of a crypto purchase order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// PurchaseOrder tracks one crypto purchase from widget launch to settlement.
// It lives only for the duration of the attempt; only its effect on the
// entitlement snapshot persists.
type PurchaseOrder struct {
	OrderID         string
	Tier            catalog.Tier
	Duration        catalog.Duration
	CryptoAmount    decimal.Decimal
	CryptoCurrency  string
	WalletAddress   string
	TransactionHash string
	Status          OrderStatus
	CreatedAt       time.Time
}

// PurchaseRequest asks a provider to start a purchase.
type PurchaseRequest struct {
	OfferingID    string
	Tier          catalog.Tier
	Duration      catalog.Duration
	WalletAddress string
}

// PurchaseOutcome is what a provider's purchase call produced. Traditional
// purchases carry a receipt and are done; crypto purchases carry a pending
// order whose settlement arrives asynchronously.
type PurchaseOutcome struct {
	Method  entitlementdomain.PaymentMethod
	Tier    catalog.Tier
	Receipt string
	Order   *PurchaseOrder
}

// Settlement is the on-chain confirmation of a crypto order.
type Settlement struct {
	OrderID         string
	TransactionHash string
	Status          OrderStatus
}

// Provider is the common capability contract over both payment authorities.
type Provider interface {
	Method() entitlementdomain.PaymentMethod

	// Initialize is idempotent and must be called before any other operation.
	Initialize(ctx context.Context) error
	GetOfferings(ctx context.Context) ([]Offering, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseOutcome, error)

	// CheckStatus returns the tier the authority currently believes is
	// active, or Basic if none.
	CheckStatus(ctx context.Context) (catalog.Tier, error)

	// Restore re-synchronizes local state with the authority's records.
	Restore(ctx context.Context) (bool, error)
}

// SettlementAwaiter is implemented by providers whose purchases settle
// asynchronously.
type SettlementAwaiter interface {
	// AwaitSettlement blocks until the order settles, the window elapses
	// (ErrSettlementTimeout) or the context is cancelled.
	AwaitSettlement(ctx context.Context, orderID string, window time.Duration) (*Settlement, error)

	// ReportSettlement feeds an externally delivered settlement signal to a
	// waiting attempt. It reports whether anything was waiting on the order.
	ReportSettlement(s Settlement) bool
}
