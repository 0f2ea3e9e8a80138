// Package eventbus fans purchase lifecycle and entitlement-change events out
// to subscribers.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/voyatra/hybridpay/internal/catalog"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Kind names an event stream.
type Kind string

const (
	KindPurchaseStarted     Kind = "purchase_started"
	KindPurchaseCompleted   Kind = "purchase_completed"
	KindPurchaseFailed      Kind = "purchase_failed"
	KindEntitlementsUpdated Kind = "entitlements_updated"
)

// PurchaseStarted is emitted when an attempt acquires its lock.
type PurchaseStarted struct {
	Method entitlementdomain.PaymentMethod `json:"method"`
	Tier   catalog.Tier                    `json:"tier"`
}

// PurchaseCompleted is emitted once a validated purchase is committed.
type PurchaseCompleted struct {
	Method        entitlementdomain.PaymentMethod `json:"method"`
	Tier          catalog.Tier                    `json:"tier"`
	TransactionID string                          `json:"transaction_id"`
}

// PurchaseFailed is emitted when an attempt ends without granting anything.
type PurchaseFailed struct {
	Method entitlementdomain.PaymentMethod `json:"method"`
	Tier   catalog.Tier                    `json:"tier"`
	Reason string                          `json:"reason"`
}

// EntitlementsUpdated carries the new canonical snapshot.
type EntitlementsUpdated struct {
	Entitlements entitlementdomain.Entitlements `json:"entitlements"`
}

// Event pairs a kind with its payload.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine; they see all events of their kind in emission order.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	kind  Kind
	token uuid.UUID
}

// Bus is a concurrency-safe observer list. Subscribing and unsubscribing are
// safe from any point, including from inside a handler.
type Bus struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[Kind]map[uuid.UUID]Handler
}

// Module provides the event bus.
var Module = fx.Provide(New)

func New(log *zap.Logger) *Bus {
	return &Bus{
		log:      log.Named("eventbus"),
		handlers: make(map[Kind]map[uuid.UUID]Handler),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uuid.UUID]Handler)
	}
	token := uuid.New()
	b.handlers[kind][token] = h
	return Subscription{kind: kind, token: token}
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers[sub.kind], sub.token)
}

// Publish delivers the event to every subscriber of its kind. Delivery order
// across subscribers is unspecified. The handler map is snapshotted before
// dispatch so handlers may subscribe or unsubscribe reentrantly.
func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.handlers[kind]))
	for _, h := range b.handlers[kind] {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	ev := Event{Kind: kind, Payload: payload}
	for _, h := range snapshot {
		h(ev)
	}

	b.log.Debug("event published", zap.String("kind", string(kind)), zap.Int("subscribers", len(snapshot)))
}
