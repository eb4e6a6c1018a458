package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeOracle struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeOracle) set(price string) {
	f.mu.Lock()
	f.price = dec(price)
	f.err = nil
	f.mu.Unlock()
}

func (f *fakeOracle) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeOracle) LastPrice(_ context.Context, symbol string) (domain.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Ticker{}, f.err
	}
	return domain.Ticker{Symbol: symbol, Last: f.price, At: time.Now()}, nil
}

type fakeGuard struct{ until time.Time }

func (g *fakeGuard) UnblockTime(context.Context) (time.Time, error) { return g.until, nil }
func (g *fakeGuard) Block(_ context.Context, until time.Time) error {
	if until.After(g.until) {
		g.until = until
	}
	return nil
}

type fakeScheduler struct {
	mu    sync.Mutex
	timer map[string]time.Time
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{timer: make(map[string]time.Time)} }

func (s *fakeScheduler) Schedule(id string, at time.Time) {
	s.mu.Lock()
	s.timer[id] = at
	s.mu.Unlock()
}

func (s *fakeScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timer[id]
	delete(s.timer, id)
	return ok
}

func (s *fakeScheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timer[id]
	return ok
}

func (s *fakeScheduler) at(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.timer[id]
	return at, ok
}

type fakeBus struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBus) StreamAppend(context.Context, string, []byte) error       { return nil }

type failingNotifications struct{}

func (failingNotifications) Create(context.Context, domain.Notification) error {
	return errors.New("notifications down")
}

func (failingNotifications) ListByUser(context.Context, string, domain.ListOpts) ([]domain.Notification, error) {
	return nil, nil
}

type failingMailer struct{ calls int }

func (m *failingMailer) SendOrderSettled(context.Context, domain.User, domain.BinaryOrder) error {
	m.calls++
	return errors.New("smtp down")
}

type harness struct {
	store  *memory.Store
	oracle *fakeOracle
	guard  *fakeGuard
	sched  *fakeScheduler
	bus    *fakeBus
	svc    *BinaryOrderService
}

func newHarness(t *testing.T, deps DispatcherDeps) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		store:  memory.New(),
		oracle: &fakeOracle{price: dec("100")},
		guard:  &fakeGuard{},
		sched:  newFakeScheduler(),
		bus:    &fakeBus{},
	}
	require.NoError(t, h.store.Markets().Upsert(ctx, domain.Market{
		Currency: "BTC", Pair: "USDT",
		MinAmount: dec("1"), MaxAmount: dec("1000"),
		Enabled: true,
	}))
	h.store.PutWallet(domain.Wallet{ID: "w1", UserID: "u1", Currency: "USDT", Balance: dec("1000")})
	h.store.PutUser(domain.User{ID: "u1", Email: "u1@example.com"})

	if deps.Bus == nil {
		deps.Bus = h.bus
	}
	if deps.Notifications == nil {
		deps.Notifications = h.store.Notifications()
	}
	if deps.Users == nil {
		deps.Users = h.store.Users()
	}
	h.svc = NewBinaryOrderService(BinaryOrderDeps{
		Tx:         h.store,
		Orders:     h.store.Orders(),
		Markets:    h.store.Markets(),
		Oracle:     h.oracle,
		Guard:      h.guard,
		Scheduler:  h.sched,
		Dispatcher: NewDispatcher(deps, discard()),
	}, BinaryOrderConfig{
		Enabled:       true,
		ProfitPercent: dec("87"),
		RetryDelay:    time.Minute,
		MaxDuration:   24 * time.Hour,
	}, discard())
	return h
}

func (h *harness) balance(t *testing.T) string {
	t.Helper()
	w, ok := h.store.Wallet("w1")
	require.True(t, ok)
	return w.Balance.String()
}

func (h *harness) create(t *testing.T, side domain.OrderSide, amount string) domain.BinaryOrder {
	t.Helper()
	o, err := h.svc.Create(context.Background(), CreateOrderInput{
		UserID: "u1", Currency: "BTC", Pair: "USDT",
		Amount: dec(amount), Side: side, Type: domain.OrderTypeRiseFall,
		ClosedAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	return o
}

func TestEndToEnd_RiseOrderWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})

	o := h.create(t, domain.OrderSideRise, "50")
	assert.Equal(t, "950", h.balance(t))
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Equal(t, "100", o.Price.String())
	_, armed := h.sched.at(o.ID)
	assert.True(t, armed)

	txn, err := h.store.Ledger().FindTransactionByReference(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, "50", txn.Amount.String())

	h.oracle.set("110")
	settled, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, settled.Status)
	assert.Equal(t, "110", settled.ClosePrice.Decimal.String())
	assert.Equal(t, "1043.5", h.balance(t))

	txn, err = h.store.Ledger().FindTransactionByReference(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)

	notes, err := h.store.Notifications().ListByUser(ctx, "u1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	require.NotEmpty(t, h.bus.channels)
	last := h.bus.payloads[len(h.bus.payloads)-1]
	var evt OrderEvent
	require.NoError(t, json.Unmarshal(last, &evt))
	assert.Equal(t, EventOrderCompleted, evt.Type)
	assert.Equal(t, "ch:binary_order:BTC/USDT", h.bus.channels[len(h.bus.channels)-1])
}

func TestSettle_CreditsByOutcome(t *testing.T) {
	cases := []struct {
		name   string
		side   domain.OrderSide
		close  string
		status domain.OrderStatus
		want   string
	}{
		{"win", domain.OrderSideFall, "90", domain.OrderStatusWin, "1087"},
		{"loss", domain.OrderSideRise, "90", domain.OrderStatusLoss, "900"},
		{"draw", domain.OrderSideRise, "100", domain.OrderStatusDraw, "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, DispatcherDeps{})
			o := h.create(t, tc.side, "100")
			assert.Equal(t, "900", h.balance(t))

			h.oracle.set(tc.close)
			settled, err := h.svc.Settle(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, settled.Status)
			assert.Equal(t, tc.want, h.balance(t))
		})
	}
}

func TestSettle_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "100")

	h.oracle.set("120")
	_, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "1087", h.balance(t))

	again, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, again.Status)
	assert.Equal(t, "1087", h.balance(t))
}

func TestSettle_ConcurrentCallsCreditOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "100")
	h.oracle.set("120")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Settle(ctx, o.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, "1087", h.balance(t))
}

func TestSettle_AfterCancelIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "100")

	_, err := h.svc.Cancel(ctx, "u1", o.ID, nil)
	require.NoError(t, err)
	after := h.balance(t)

	h.oracle.set("500")
	settled, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, settled.Status)
	assert.Equal(t, after, h.balance(t))
}

func TestSettleScheduled_ThrottledReschedules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "100")

	h.guard.until = time.Now().Add(10 * time.Minute)
	before := time.Now()
	h.svc.SettleScheduled(ctx, o.ID)

	at, ok := h.sched.at(o.ID)
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(time.Minute), at, 5*time.Second)

	stored, err := h.store.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, "900", h.balance(t))
}

func TestSettleScheduled_OracleDownReschedules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "100")
	h.sched.Cancel(o.ID)

	h.oracle.fail(domain.ErrPriceUnavailable)
	h.svc.SettleScheduled(ctx, o.ID)
	_, ok := h.sched.at(o.ID)
	assert.True(t, ok)

	h.oracle.set("120")
	h.svc.SettleScheduled(ctx, o.ID)
	stored, err := h.store.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, stored.Status)
}

func TestSettleScheduled_RetryBackoffSurvivesReconcile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	h.svc.cfg.RetryDelay = 5 * time.Minute
	o := h.create(t, domain.OrderSideRise, "100")

	h.guard.until = time.Now().Add(10 * time.Minute)
	h.svc.SettleScheduled(ctx, o.ID)
	retryAt, ok := h.sched.at(o.ID)
	require.True(t, ok)
	require.True(t, retryAt.After(o.ClosedAt))

	n, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	at, ok := h.sched.at(o.ID)
	require.True(t, ok)
	assert.True(t, at.Equal(retryAt), "reconcile moved the retry from %s to %s", retryAt, at)
}

type countingAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *countingAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	return nil
}

func (a *countingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e == "settlement_failed" {
			n++
		}
	}
	return n
}

func TestSettleScheduled_AlertsOncePerFailingOrder(t *testing.T) {
	ctx := context.Background()
	alerts := &countingAlerter{}
	h := newHarness(t, DispatcherDeps{Alerts: alerts})
	o := h.create(t, domain.OrderSideRise, "100")

	h.guard.until = time.Now().Add(10 * time.Minute)
	for range 3 {
		h.svc.SettleScheduled(ctx, o.ID)
	}
	assert.Zero(t, alerts.count(), "throttling is not alerted")

	h.guard.until = time.Time{}
	h.oracle.fail(domain.ErrPriceUnavailable)
	for range 3 {
		h.svc.SettleScheduled(ctx, o.ID)
	}
	assert.Equal(t, 1, alerts.count())

	h.oracle.set("120")
	h.svc.SettleScheduled(ctx, o.ID)
	stored, err := h.store.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, stored.Status)

	other := h.create(t, domain.OrderSideRise, "100")
	h.oracle.fail(domain.ErrPriceUnavailable)
	h.svc.SettleScheduled(ctx, other.ID)
	assert.Equal(t, 2, alerts.count())
}

func TestSettle_NotificationFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	mailer := &failingMailer{}
	h := newHarness(t, DispatcherDeps{Notifications: failingNotifications{}, Mailer: mailer})
	o := h.create(t, domain.OrderSideRise, "100")

	h.oracle.set("120")
	settled, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, settled.Status)
	assert.Equal(t, "1087", h.balance(t))
	assert.Equal(t, 1, mailer.calls)
}

func TestCreate_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	h.store.PutWallet(domain.Wallet{ID: "w1", UserID: "u1", Currency: "USDT", Balance: dec("10")})

	_, err := h.svc.Create(ctx, CreateOrderInput{
		UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("50"),
		Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall,
		ClosedAt: time.Now().Add(time.Minute),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, "10", h.balance(t))

	pending, err := h.store.Orders().ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreate_Validation(t *testing.T) {
	future := time.Now().Add(time.Minute)
	cases := []struct {
		name string
		in   CreateOrderInput
		want error
	}{
		{"no user", CreateOrderInput{Currency: "BTC", Pair: "USDT", Amount: dec("5"), Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall, ClosedAt: future}, domain.ErrUnauthorized},
		{"bad side", CreateOrderInput{UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("5"), Side: "UP", Type: domain.OrderTypeRiseFall, ClosedAt: future}, domain.ErrInvalidOrder},
		{"past expiry", CreateOrderInput{UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("5"), Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall, ClosedAt: time.Now().Add(-time.Second)}, domain.ErrInvalidOrder},
		{"unknown market", CreateOrderInput{UserID: "u1", Currency: "DOGE", Pair: "USDT", Amount: dec("5"), Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall, ClosedAt: future}, domain.ErrInvalidOrder},
		{"below min", CreateOrderInput{UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("0.5"), Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall, ClosedAt: future}, domain.ErrInvalidAmount},
		{"above max", CreateOrderInput{UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("1001"), Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall, ClosedAt: future}, domain.ErrInvalidAmount},
		{"no wallet", CreateOrderInput{UserID: "u2", Currency: "BTC", Pair: "USDT", Amount: dec("5"), Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall, ClosedAt: future}, domain.ErrWalletNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, DispatcherDeps{})
			_, err := h.svc.Create(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreate_DisabledAndThrottled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	in := CreateOrderInput{
		UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("5"),
		Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall,
		ClosedAt: time.Now().Add(time.Minute),
	}

	h.guard.until = time.Now().Add(time.Minute)
	_, err := h.svc.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrThrottled)
	assert.Zero(t, h.oracle.calls)

	h.svc.cfg.Enabled = false
	_, err = h.svc.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrFeatureDisabled)
	assert.Equal(t, "1000", h.balance(t))
}

func TestCreate_DemoLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o, err := h.svc.Create(ctx, CreateOrderInput{
		UserID: "u1", Currency: "BTC", Pair: "USDT", Amount: dec("50"),
		Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall,
		ClosedAt: time.Now().Add(time.Minute), IsDemo: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", h.balance(t))
	_, err = h.store.Ledger().FindTransactionByReference(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	h.oracle.set("150")
	settled, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, settled.Status)
	assert.Equal(t, "1000", h.balance(t))
}

func TestCancel_PercentageOverridesDirection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "200")
	assert.Equal(t, "800", h.balance(t))

	// Price moved in the user's favour; the percentage still wins.
	h.oracle.set("150")
	pct := dec("-25")
	canceled, err := h.svc.Cancel(ctx, "u1", o.ID, &pct)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, canceled.Status)
	assert.Equal(t, "150", canceled.ClosePrice.Decimal.String())
	assert.Equal(t, "950", h.balance(t))

	_, err = h.store.Ledger().FindTransactionByReference(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	_, armed := h.sched.at(o.ID)
	assert.False(t, armed)
}

func TestCancel_DirectionalCredit(t *testing.T) {
	cases := []struct {
		name    string
		current string
		want    string
	}{
		{"winning", "110", "1087"},
		{"flat", "100", "1000"},
		{"losing", "90", "913"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, DispatcherDeps{})
			o := h.create(t, domain.OrderSideRise, "100")
			h.oracle.set(tc.current)
			_, err := h.svc.Cancel(context.Background(), "u1", o.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, h.balance(t))
		})
	}
}

func TestCancel_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "100")

	_, err := h.svc.Cancel(ctx, "someone-else", o.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.Cancel(ctx, "u1", "missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pct := dec("150")
	calls := h.oracle.calls
	_, err = h.svc.Cancel(ctx, "u1", o.ID, &pct)
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)
	assert.Equal(t, calls, h.oracle.calls, "rejected before the price lookup")

	h.guard.until = time.Now().Add(time.Minute)
	_, err = h.svc.Cancel(ctx, "u1", o.ID, nil)
	assert.ErrorIs(t, err, domain.ErrThrottled)
	h.guard.until = time.Time{}

	_, err = h.svc.Cancel(ctx, "u1", o.ID, nil)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, "u1", o.ID, nil)
	assert.ErrorIs(t, err, domain.ErrOrderClosed)
}

func TestReconcile_SchedulesPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	a := h.create(t, domain.OrderSideRise, "10")
	b := h.create(t, domain.OrderSideFall, "10")

	h.sched = newFakeScheduler()
	h.svc.SetScheduler(h.sched)
	n, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	at, ok := h.sched.at(a.ID)
	require.True(t, ok)
	assert.True(t, at.Equal(a.ClosedAt))
	_, ok = h.sched.at(b.ID)
	assert.True(t, ok)
}

func TestGetAndList_ScopedToUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	o := h.create(t, domain.OrderSideRise, "10")

	got, err := h.svc.Get(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = h.svc.Get(ctx, "u2", o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := h.svc.List(ctx, "u1", domain.OrderFilter{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = h.svc.List(ctx, "u1", domain.OrderFilter{Status: "BOGUS"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

func TestSettle_SkipsWhenAnotherInstanceHoldsLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DispatcherDeps{})
	locks := &fakeLocks{held: make(map[string]bool)}
	h.svc.locks = locks
	h.svc.cfg.LockTTL = 30 * time.Second

	o := h.create(t, domain.OrderSideRise, "100")
	h.oracle.set("120")
	locks.held["lock:settle:"+o.ID] = true
	calls := h.oracle.calls

	_, err := h.svc.Settle(ctx, o.ID)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, "900", h.balance(t))
	assert.Equal(t, calls, h.oracle.calls)

	h.sched.Cancel(o.ID)
	h.svc.SettleScheduled(ctx, o.ID)
	_, rearmed := h.sched.at(o.ID)
	assert.True(t, rearmed)

	delete(locks.held, "lock:settle:"+o.ID)
	settled, err := h.svc.Settle(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, settled.Status)
	assert.Equal(t, "1087", h.balance(t))
	assert.Empty(t, locks.held)
}
