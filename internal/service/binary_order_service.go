package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Scheduler arms one-shot settlement timers keyed by order id. Has reports
// an id that is armed or whose callback is still running.
type Scheduler interface {
	Schedule(id string, at time.Time)
	Cancel(id string) bool
	Has(id string) bool
}

// BinaryOrderConfig holds the tunable parameters of the order lifecycle.
type BinaryOrderConfig struct {
	Enabled       bool
	ProfitPercent decimal.Decimal
	RetryDelay    time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	LockTTL       time.Duration
}

// CreateOrderInput carries a user's order request.
type CreateOrderInput struct {
	UserID   string
	Currency string
	Pair     string
	Amount   decimal.Decimal
	Side     domain.OrderSide
	Type     domain.OrderType
	ClosedAt time.Time
	IsDemo   bool
}

// BinaryOrderService owns the binary order lifecycle: placement with stake
// debit, settlement at expiry and early cancellation. Ledger changes happen
// inside a single transaction; notifications happen after commit.
type BinaryOrderService struct {
	tx         domain.TxManager
	orders     domain.BinaryOrderStore
	markets    domain.MarketStore
	oracle     domain.PriceOracle
	guard      domain.BanGuard
	locks      domain.LockManager
	sched      Scheduler
	dispatcher *Dispatcher
	cfg        BinaryOrderConfig
	now        func() time.Time
	logger     *slog.Logger

	// failing holds ids already reported to operators; cleared on success.
	failing sync.Map
}

// BinaryOrderDeps groups the BinaryOrderService collaborators. Guard, Locks
// and Dispatcher may be nil.
type BinaryOrderDeps struct {
	Tx         domain.TxManager
	Orders     domain.BinaryOrderStore
	Markets    domain.MarketStore
	Oracle     domain.PriceOracle
	Guard      domain.BanGuard
	Locks      domain.LockManager
	Scheduler  Scheduler
	Dispatcher *Dispatcher
}

// NewBinaryOrderService creates a BinaryOrderService.
func NewBinaryOrderService(deps BinaryOrderDeps, cfg BinaryOrderConfig, logger *slog.Logger) *BinaryOrderService {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Minute
	}
	return &BinaryOrderService{
		tx:         deps.Tx,
		orders:     deps.Orders,
		markets:    deps.Markets,
		oracle:     deps.Oracle,
		guard:      deps.Guard,
		locks:      deps.Locks,
		sched:      deps.Scheduler,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "binary_order_service")),
	}
}

// SetScheduler attaches the scheduler after construction. The scheduler's
// callback is usually a method of the service itself.
func (s *BinaryOrderService) SetScheduler(sched Scheduler) {
	s.sched = sched
}

// Create validates the request, debits the stake from the user's SPOT wallet
// in the pair currency, persists the order with its PENDING transaction and
// arms the settlement timer.
func (s *BinaryOrderService) Create(ctx context.Context, in CreateOrderInput) (domain.BinaryOrder, error) {
	if !s.cfg.Enabled {
		return domain.BinaryOrder{}, domain.ErrFeatureDisabled
	}
	if in.UserID == "" {
		return domain.BinaryOrder{}, domain.ErrUnauthorized
	}
	if !in.Side.Valid() || !in.Type.Valid() || in.Currency == "" || in.Pair == "" {
		return domain.BinaryOrder{}, domain.ErrInvalidOrder
	}
	now := s.now()
	if err := s.checkExpiry(now, in.ClosedAt); err != nil {
		return domain.BinaryOrder{}, err
	}

	market, err := s.markets.Get(ctx, in.Currency, in.Pair)
	switch {
	case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrNotFound):
		return domain.BinaryOrder{}, fmt.Errorf("%w: unknown market %s/%s", domain.ErrInvalidOrder, in.Currency, in.Pair)
	case err != nil:
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: load market: %w", err)
	case !market.Enabled:
		return domain.BinaryOrder{}, fmt.Errorf("%w: market %s is disabled", domain.ErrInvalidOrder, market.Symbol())
	}
	if !market.AcceptsAmount(in.Amount) {
		return domain.BinaryOrder{}, domain.ErrInvalidAmount
	}

	if err := s.checkGuard(ctx); err != nil {
		return domain.BinaryOrder{}, err
	}
	tk, err := s.oracle.LastPrice(ctx, market.Symbol())
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: entry price: %w", err)
	}

	profit := s.cfg.ProfitPercent
	if market.ProfitPercent.IsPositive() {
		profit = market.ProfitPercent
	}

	order := domain.BinaryOrder{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Currency:      in.Currency,
		Pair:          in.Pair,
		Side:          in.Side,
		Type:          in.Type,
		Amount:        in.Amount,
		Price:         tk.Last,
		ProfitPercent: profit,
		Status:        domain.OrderStatusPending,
		IsDemo:        in.IsDemo,
		CreatedAt:     now,
		ClosedAt:      in.ClosedAt.UTC(),
		UpdatedAt:     now,
	}

	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		if !order.IsDemo {
			wallet, err := tx.Ledger().FindWallet(ctx, order.UserID, order.Pair, domain.WalletTypeSpot)
			if err != nil {
				return err
			}
			balance := wallet.Balance.Sub(order.Amount)
			if balance.IsNegative() {
				return domain.ErrInsufficientBalance
			}
			if err := tx.Ledger().UpdateWalletBalance(ctx, wallet.ID, balance); err != nil {
				return err
			}
			if err := tx.Orders().Create(ctx, order); err != nil {
				return err
			}
			return tx.Ledger().CreateTransaction(ctx, domain.Transaction{
				ID:          uuid.NewString(),
				UserID:      order.UserID,
				WalletID:    wallet.ID,
				Type:        domain.TransactionTypeBinaryOrder,
				Status:      domain.TransactionStatusPending,
				Amount:      order.Amount,
				Fee:         decimal.Zero,
				Description: fmt.Sprintf("Binary %s order on %s", order.Side, order.Symbol()),
				ReferenceID: order.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: create: %w", err)
	}

	s.sched.Schedule(order.ID, order.ClosedAt)
	s.logger.InfoContext(ctx, "binary order created",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol()),
		slog.String("side", string(order.Side)),
		slog.String("amount", order.Amount.String()),
		slog.String("price", order.Price.String()),
		slog.Bool("demo", order.IsDemo),
		slog.Time("closed_at", order.ClosedAt),
	)
	if s.dispatcher != nil {
		s.dispatcher.OrderCreated(ctx, order)
	}
	return order, nil
}

// Settle resolves a PENDING order against the current price, completes its
// transaction and credits the wallet. Settling an order that is no longer
// PENDING is a no-op.
func (s *BinaryOrderService) Settle(ctx context.Context, id string) (domain.BinaryOrder, error) {
	if s.locks != nil && s.cfg.LockTTL > 0 {
		unlock, err := s.locks.Acquire(ctx, "lock:settle:"+id, s.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: settle %s: %w", id, err)
		case err != nil:
			s.logger.WarnContext(ctx, "settle lock unavailable, continuing",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		default:
			defer unlock()
		}
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: settle %s: %w", id, err)
	}
	if order.Status != domain.OrderStatusPending {
		return order, nil
	}

	if err := s.checkGuard(ctx); err != nil {
		return domain.BinaryOrder{}, err
	}
	tk, err := s.oracle.LastPrice(ctx, order.Symbol())
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: close price: %w", err)
	}

	var settled domain.BinaryOrder
	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		current, err := tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusPending {
			settled = current
			return domain.ErrOrderClosed
		}
		outcome := domain.DetermineOutcome(current, tk.Last)
		if err := tx.Orders().Close(ctx, id, outcome, tk.Last); err != nil {
			return err
		}
		settled = current
		settled.Status = outcome
		settled.ClosePrice = decimal.NewNullDecimal(tk.Last)
		settled.UpdatedAt = s.now()

		if current.IsDemo {
			return nil
		}
		txn, err := tx.Ledger().FindTransactionByReference(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Ledger().UpdateTransactionStatus(ctx, txn.ID, domain.TransactionStatusCompleted); err != nil {
			return err
		}
		credit := domain.SettlementCredit(current, outcome)
		if !credit.IsPositive() {
			return nil
		}
		wallet, err := tx.Ledger().FindWallet(ctx, current.UserID, current.Pair, domain.WalletTypeSpot)
		if err != nil {
			return err
		}
		return tx.Ledger().UpdateWalletBalance(ctx, wallet.ID, wallet.Balance.Add(credit))
	})
	if errors.Is(err, domain.ErrOrderClosed) {
		return settled, nil
	}
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: settle %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "binary order settled",
		slog.String("order_id", id),
		slog.String("status", string(settled.Status)),
		slog.String("entry", settled.Price.String()),
		slog.String("close", tk.Last.String()),
	)
	if s.dispatcher != nil {
		s.dispatcher.OrderSettled(ctx, settled)
	}
	return settled, nil
}

// SettleScheduled is the scheduler callback. Failed settlements are retried
// after the configured delay; the order stays PENDING meanwhile.
func (s *BinaryOrderService) SettleScheduled(ctx context.Context, id string) {
	_, err := s.Settle(ctx, id)
	if err == nil {
		s.failing.Delete(id)
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		s.failing.Delete(id)
		s.logger.WarnContext(ctx, "scheduled order vanished", slog.String("order_id", id))
		return
	}
	retryAt := s.now().Add(s.cfg.RetryDelay)
	s.logger.ErrorContext(ctx, "settlement failed, rescheduling",
		slog.String("order_id", id),
		slog.Time("retry_at", retryAt),
		slog.String("error", err.Error()),
	)
	s.sched.Schedule(id, retryAt)
	if s.shouldAlert(id, err) {
		s.dispatcher.SettlementFailed(ctx, id, err)
	}
}

// shouldAlert reports the first failure per order. Provider throttling and
// a lock held elsewhere clear on their own and are only logged.
func (s *BinaryOrderService) shouldAlert(id string, err error) bool {
	if s.dispatcher == nil {
		return false
	}
	if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrThrottled) || errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	_, seen := s.failing.LoadOrStore(id, struct{}{})
	return !seen
}

// Cancel closes a PENDING order early. With a percentage the user receives
// the stake minus |percentage|% of it; without one the credit follows the
// direction of the current price.
func (s *BinaryOrderService) Cancel(ctx context.Context, userID, id string, percentage *decimal.Decimal) (domain.BinaryOrder, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: cancel %s: %w", id, err)
	}
	if order.UserID != userID {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: cancel %s: %w", id, domain.ErrNotFound)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.BinaryOrder{}, domain.ErrOrderClosed
	}
	if err := domain.ValidatePercentage(percentage); err != nil {
		return domain.BinaryOrder{}, err
	}

	if err := s.checkGuard(ctx); err != nil {
		return domain.BinaryOrder{}, err
	}
	tk, err := s.oracle.LastPrice(ctx, order.Symbol())
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: cancel price: %w", err)
	}

	var canceled domain.BinaryOrder
	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		current, err := tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusPending {
			return domain.ErrOrderClosed
		}
		if !current.IsDemo {
			credit, err := domain.CancellationCredit(current, tk.Last, percentage)
			if err != nil {
				return err
			}
			txn, err := tx.Ledger().FindTransactionByReference(ctx, id)
			if err != nil {
				return err
			}
			wallet, err := tx.Ledger().FindWallet(ctx, current.UserID, current.Pair, domain.WalletTypeSpot)
			if err != nil {
				return err
			}
			balance := wallet.Balance.Add(credit)
			if balance.IsNegative() {
				return domain.ErrInsufficientBalance
			}
			if err := tx.Ledger().UpdateWalletBalance(ctx, wallet.ID, balance); err != nil {
				return err
			}
			if err := tx.Ledger().DeleteTransaction(ctx, txn.ID); err != nil {
				return err
			}
		}
		if err := tx.Orders().Close(ctx, id, domain.OrderStatusCanceled, tk.Last); err != nil {
			return err
		}
		canceled = current
		canceled.Status = domain.OrderStatusCanceled
		canceled.ClosePrice = decimal.NewNullDecimal(tk.Last)
		canceled.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: cancel %s: %w", id, err)
	}

	s.sched.Cancel(id)
	s.logger.InfoContext(ctx, "binary order canceled",
		slog.String("order_id", id),
		slog.String("close", tk.Last.String()),
	)
	if s.dispatcher != nil {
		s.dispatcher.OrderCanceled(ctx, canceled)
	}
	return canceled, nil
}

// Get returns one of the user's orders.
func (s *BinaryOrderService) Get(ctx context.Context, userID, id string) (domain.BinaryOrder, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: get %s: %w", id, err)
	}
	if order.UserID != userID {
		return domain.BinaryOrder{}, fmt.Errorf("binary_order_service: get %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

// List returns the user's orders, newest first.
func (s *BinaryOrderService) List(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.BinaryOrder, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidOrder
	}
	orders, err := s.orders.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("binary_order_service: list: %w", err)
	}
	return orders, nil
}

// Reconcile arms a timer for every PENDING order the scheduler does not
// already hold. Orders whose expiry has passed fire immediately. Held ids
// keep their timer, so a retry backoff or an in-flight settlement is left
// alone. It runs at startup and periodically so that orders created by
// another instance, or orphaned by a crash, get settled.
func (s *BinaryOrderService) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.orders.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("binary_order_service: reconcile: %w", err)
	}
	armed := 0
	for _, o := range pending {
		if s.sched.Has(o.ID) {
			continue
		}
		s.sched.Schedule(o.ID, o.ClosedAt)
		armed++
	}
	if armed > 0 {
		s.logger.InfoContext(ctx, "reconciled pending orders",
			slog.Int("pending", len(pending)),
			slog.Int("armed", armed),
		)
	}
	return len(pending), nil
}

func (s *BinaryOrderService) checkExpiry(now, closedAt time.Time) error {
	if closedAt.IsZero() || !closedAt.After(now) {
		return fmt.Errorf("%w: closedAt must be in the future", domain.ErrInvalidOrder)
	}
	d := closedAt.Sub(now)
	if s.cfg.MinDuration > 0 && d < s.cfg.MinDuration {
		return fmt.Errorf("%w: duration below %s", domain.ErrInvalidOrder, s.cfg.MinDuration)
	}
	if s.cfg.MaxDuration > 0 && d > s.cfg.MaxDuration {
		return fmt.Errorf("%w: duration above %s", domain.ErrInvalidOrder, s.cfg.MaxDuration)
	}
	return nil
}

// checkGuard fails open when the guard store is unreachable.
func (s *BinaryOrderService) checkGuard(ctx context.Context) error {
	if s.guard == nil {
		return nil
	}
	until, err := s.guard.UnblockTime(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "ban guard unavailable", slog.String("error", err.Error()))
		return nil
	}
	if domain.IsBlocked(until, s.now()) {
		return fmt.Errorf("%w until %s", domain.ErrThrottled, until.Format(time.RFC3339))
	}
	return nil
}
