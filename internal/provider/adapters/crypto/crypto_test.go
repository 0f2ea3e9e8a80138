package crypto

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/clock"
	"github.com/voyatra/hybridpay/internal/provider/domain"
	"go.uber.org/zap"
)

type fakeOnRamp struct {
	mu        sync.Mutex
	launched  []WidgetRequest
	orderID   string
	status    *domain.Settlement
	statusErr error
	launchErr error
}

func (f *fakeOnRamp) LaunchWidget(ctx context.Context, req WidgetRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return "", f.launchErr
	}
	f.launched = append(f.launched, req)
	return f.orderID, nil
}

func (f *fakeOnRamp) OrderStatus(ctx context.Context, orderID string) (*domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status != nil {
		return f.status, nil
	}
	return &domain.Settlement{OrderID: orderID, Status: domain.OrderStatusPending}, nil
}

type fakeBackend struct {
	tier catalog.Tier
	err  error
}

func (f *fakeBackend) WalletEntitlements(ctx context.Context, wallet string) (catalog.Tier, error) {
	return f.tier, f.err
}

func newTestAdapter(t *testing.T, onramp *fakeOnRamp, backend *fakeBackend, clk clock.Clock) *Adapter {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	a := New(onramp, backend, clk, node, Config{
		WalletAddress: "0xabc",
		Network:       "avalanche",
		Currency:      "AVAX",
		PollInterval:  time.Hour, // tests drive settlement explicitly
	}, zap.NewNop())
	require.NoError(t, a.Initialize(context.Background()))
	return a
}

func TestPurchase_LaunchesWidgetAndReturnsPendingOrder(t *testing.T) {
	onramp := &fakeOnRamp{orderID: "ord_1"}
	a := newTestAdapter(t, onramp, &fakeBackend{tier: catalog.TierBasic}, clock.NewSystemClock())

	outcome, err := a.Purchase(context.Background(), domain.PurchaseRequest{
		Tier:     catalog.TierPremium,
		Duration: catalog.DurationMonthly,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Order)

	assert.Equal(t, "ord_1", outcome.Order.OrderID)
	assert.Equal(t, domain.OrderStatusPending, outcome.Order.Status)
	assert.Equal(t, "0xabc", outcome.Order.WalletAddress)
	assert.Equal(t, "AVAX", outcome.Order.CryptoCurrency)
	assert.Equal(t, "1.25", outcome.Order.CryptoAmount.String())

	require.Len(t, onramp.launched, 1)
	assert.Equal(t, "avalanche", onramp.launched[0].Network)
	assert.NotEmpty(t, onramp.launched[0].PartnerOrderID)
}

func TestPurchase_RequiresInitialize(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	a := New(&fakeOnRamp{orderID: "ord_1"}, &fakeBackend{}, clock.NewSystemClock(), node, Config{}, zap.NewNop())

	_, err = a.Purchase(context.Background(), domain.PurchaseRequest{
		Tier:     catalog.TierPremium,
		Duration: catalog.DurationMonthly,
	})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestAwaitSettlement_ReportedSettlementCompletes(t *testing.T) {
	onramp := &fakeOnRamp{orderID: "ord_1"}
	a := newTestAdapter(t, onramp, &fakeBackend{}, clock.NewSystemClock())

	_, err := a.Purchase(context.Background(), domain.PurchaseRequest{
		Tier:     catalog.TierPremium,
		Duration: catalog.DurationMonthly,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	var settlement *domain.Settlement
	var waitErr error
	go func() {
		defer close(done)
		settlement, waitErr = a.AwaitSettlement(context.Background(), "ord_1", time.Minute)
	}()

	require.Eventually(t, func() bool {
		return a.ReportSettlement(domain.Settlement{
			OrderID:         "ord_1",
			TransactionHash: "0xdead",
			Status:          domain.OrderStatusCompleted,
		})
	}, time.Second, 5*time.Millisecond)

	<-done
	require.NoError(t, waitErr)
	assert.Equal(t, "0xdead", settlement.TransactionHash)
}

func TestAwaitSettlement_TimesOutWithoutSignal(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	onramp := &fakeOnRamp{orderID: "ord_1"}
	a := newTestAdapter(t, onramp, &fakeBackend{}, fc)

	_, err := a.Purchase(context.Background(), domain.PurchaseRequest{
		Tier:     catalog.TierPremium,
		Duration: catalog.DurationMonthly,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := a.AwaitSettlement(context.Background(), "ord_1", 15*time.Minute)
		done <- err
	}()

	// Wait for the attempt to register its waiter before advancing time.
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, ok := a.waiters["ord_1"]
		return ok
	}, time.Second, 5*time.Millisecond)

	fc.Advance(15 * time.Minute)

	assert.ErrorIs(t, <-done, domain.ErrSettlementTimeout)
}

func TestAwaitSettlement_FailedOrder(t *testing.T) {
	onramp := &fakeOnRamp{orderID: "ord_1"}
	a := newTestAdapter(t, onramp, &fakeBackend{}, clock.NewSystemClock())

	_, err := a.Purchase(context.Background(), domain.PurchaseRequest{
		Tier:     catalog.TierVIP,
		Duration: catalog.DurationYearly,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := a.AwaitSettlement(context.Background(), "ord_1", time.Minute)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return a.ReportSettlement(domain.Settlement{
			OrderID: "ord_1",
			Status:  domain.OrderStatusFailed,
		})
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, <-done, domain.ErrProviderUnavailable)
}

func TestAwaitSettlement_UnknownOrder(t *testing.T) {
	a := newTestAdapter(t, &fakeOnRamp{orderID: "ord_1"}, &fakeBackend{}, clock.NewSystemClock())

	_, err := a.AwaitSettlement(context.Background(), "missing", time.Minute)
	assert.ErrorIs(t, err, domain.ErrUnknownOrder)
}

func TestAwaitSettlement_PollPicksUpCompletion(t *testing.T) {
	onramp := &fakeOnRamp{orderID: "ord_1"}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	a := New(onramp, &fakeBackend{}, clock.NewSystemClock(), node, Config{
		WalletAddress: "0xabc",
		Network:       "avalanche",
		PollInterval:  5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, a.Initialize(context.Background()))

	_, err = a.Purchase(context.Background(), domain.PurchaseRequest{
		Tier:     catalog.TierPremium,
		Duration: catalog.DurationMonthly,
	})
	require.NoError(t, err)

	onramp.mu.Lock()
	onramp.status = &domain.Settlement{
		OrderID:         "ord_1",
		TransactionHash: "0xpolled",
		Status:          domain.OrderStatusCompleted,
	}
	onramp.mu.Unlock()

	settlement, err := a.AwaitSettlement(context.Background(), "ord_1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "0xpolled", settlement.TransactionHash)
}

func TestCheckStatus_BackendUnreachable(t *testing.T) {
	a := newTestAdapter(t, &fakeOnRamp{}, &fakeBackend{err: errors.New("down")}, clock.NewSystemClock())

	_, err := a.CheckStatus(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestRestore_ReportsValidatedWalletTier(t *testing.T) {
	a := newTestAdapter(t, &fakeOnRamp{}, &fakeBackend{tier: catalog.TierPremium}, clock.NewSystemClock())

	ok, err := a.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	a2 := newTestAdapter(t, &fakeOnRamp{}, &fakeBackend{tier: catalog.TierBasic}, clock.NewSystemClock())
	ok, err = a2.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
