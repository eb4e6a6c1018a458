package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// OrderStream is the durable event log of order lifecycle events.
const OrderStream = "stream:binary_order"

// OrderChannel is the pub/sub channel for order events on symbol.
func OrderChannel(symbol string) string {
	return "ch:binary_order:" + symbol
}

// OrderEvent is published on OrderChannel and appended to OrderStream.
type OrderEvent struct {
	Type  string    `json:"type"`
	Order OrderView `json:"order"`
}

// Event types.
const (
	EventOrderCreated   = "ORDER_CREATED"
	EventOrderCompleted = "ORDER_COMPLETED"
	EventOrderCanceled  = "ORDER_CANCELED"
)

// OrderMailer sends settlement e-mails.
type OrderMailer interface {
	SendOrderSettled(ctx context.Context, user domain.User, order domain.BinaryOrder) error
}

// Alerter sends operator alerts filtered by event name.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Dispatcher performs side effects that must never undo a committed ledger
// change. None of its methods return an error: failures are logged.
// Every dependency is optional.
type Dispatcher struct {
	bus           domain.SignalBus
	notifications domain.NotificationStore
	users         domain.UserStore
	mailer        OrderMailer
	alerts        Alerter
	audit         domain.AuditStore
	timeout       time.Duration
	logger        *slog.Logger
}

// DispatcherDeps groups the Dispatcher collaborators.
type DispatcherDeps struct {
	Bus           domain.SignalBus
	Notifications domain.NotificationStore
	Users         domain.UserStore
	Mailer        OrderMailer
	Alerts        Alerter
	Audit         domain.AuditStore
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps DispatcherDeps, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:           deps.Bus,
		notifications: deps.Notifications,
		users:         deps.Users,
		mailer:        deps.Mailer,
		alerts:        deps.Alerts,
		audit:         deps.Audit,
		timeout:       10 * time.Second,
		logger:        logger.With(slog.String("component", "dispatcher")),
	}
}

// OrderCreated announces a newly placed order.
func (d *Dispatcher) OrderCreated(ctx context.Context, o domain.BinaryOrder) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	d.publish(ctx, EventOrderCreated, o)
	d.record(ctx, "order_created", o)
}

// OrderSettled pushes the completion event, e-mails the user, creates an
// inbox notification and alerts operators.
func (d *Dispatcher) OrderSettled(ctx context.Context, o domain.BinaryOrder) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	d.publish(ctx, EventOrderCompleted, o)

	title := fmt.Sprintf("Binary order %s", o.Status)
	message := fmt.Sprintf("Your %s order on %s closed at %s with result %s.",
		o.Side, o.Symbol(), o.ClosePrice.Decimal, o.Status)
	d.notifyUser(ctx, o.UserID, title, message)
	d.email(ctx, o)

	if d.alerts != nil {
		err := d.alerts.Notify(ctx, "order_settled", title,
			fmt.Sprintf("order %s user %s %s %s stake %s", o.ID, o.UserID, o.Symbol(), o.Status, o.Amount))
		d.warn(ctx, "operator alert failed", o.ID, err)
	}
	d.record(ctx, "order_settled", o)
}

// OrderCanceled announces an early close.
func (d *Dispatcher) OrderCanceled(ctx context.Context, o domain.BinaryOrder) {
	ctx, cancel := d.detach(ctx)
	defer cancel()

	d.publish(ctx, EventOrderCanceled, o)
	d.notifyUser(ctx, o.UserID, "Binary order canceled",
		fmt.Sprintf("Your %s order on %s was closed early at %s.", o.Side, o.Symbol(), o.ClosePrice.Decimal))
	d.record(ctx, "order_cancelled", o)
}

// SettlementFailed alerts operators about a settlement attempt that will be
// retried.
func (d *Dispatcher) SettlementFailed(ctx context.Context, orderID string, cause error) {
	if d.alerts == nil {
		return
	}
	ctx, cancel := d.detach(ctx)
	defer cancel()
	err := d.alerts.Notify(ctx, "settlement_failed", "Settlement failed",
		fmt.Sprintf("order %s: %v", orderID, cause))
	d.warn(ctx, "operator alert failed", orderID, err)
}

func (d *Dispatcher) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
}

func (d *Dispatcher) publish(ctx context.Context, typ string, o domain.BinaryOrder) {
	if d.bus == nil {
		return
	}
	payload, err := json.Marshal(OrderEvent{Type: typ, Order: NewOrderView(o)})
	if err != nil {
		d.warn(ctx, "marshal order event failed", o.ID, err)
		return
	}
	d.warn(ctx, "publish order event failed", o.ID, d.bus.Publish(ctx, OrderChannel(o.Symbol()), payload))
	d.warn(ctx, "append order event failed", o.ID, d.bus.StreamAppend(ctx, OrderStream, payload))
}

func (d *Dispatcher) notifyUser(ctx context.Context, userID, title, message string) {
	if d.notifications == nil {
		return
	}
	err := d.notifications.Create(ctx, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      domain.NotificationTypeOrder,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	d.warn(ctx, "create notification failed", userID, err)
}

func (d *Dispatcher) email(ctx context.Context, o domain.BinaryOrder) {
	if d.mailer == nil || d.users == nil {
		return
	}
	user, err := d.users.GetByID(ctx, o.UserID)
	if err != nil {
		d.warn(ctx, "load user for e-mail failed", o.ID, err)
		return
	}
	d.warn(ctx, "settlement e-mail failed", o.ID, d.mailer.SendOrderSettled(ctx, user, o))
}

func (d *Dispatcher) record(ctx context.Context, event string, o domain.BinaryOrder) {
	if d.audit == nil {
		return
	}
	detail := map[string]any{
		"order_id": o.ID,
		"user_id":  o.UserID,
		"symbol":   o.Symbol(),
		"side":     string(o.Side),
		"amount":   o.Amount.String(),
		"status":   string(o.Status),
		"is_demo":  o.IsDemo,
	}
	if o.ClosePrice.Valid {
		detail["close_price"] = o.ClosePrice.Decimal.String()
	}
	d.warn(ctx, "audit log failed", o.ID, d.audit.Log(ctx, event, detail))
}

func (d *Dispatcher) warn(ctx context.Context, msg, ref string, err error) {
	if err == nil {
		return
	}
	d.logger.WarnContext(ctx, msg,
		slog.String("ref", ref),
		slog.String("error", err.Error()),
	)
}
