package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vibe-drinks/models"
	"vibe-drinks/realtime"
	"vibe-drinks/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Publisher receives lifecycle events after they are persisted.
type Publisher interface {
	Publish(event string, payload any)
}

// OrderRepository is the part of the store the order service writes through.
type OrderRepository interface {
	store.OrderStore
	GetMotoboy(ctx context.Context, id string) (*models.Motoboy, error)
}

// OrderService is the single authority for order creation and lifecycle
// changes. It holds no per-order lock: writes are guarded by the status the
// caller read, and a lost race is reported as an invalid transition.
type OrderService struct {
	repo   OrderRepository
	events Publisher
	log    *slog.Logger
	now    func() time.Time
}

func NewOrderService(repo OrderRepository, events Publisher, log *slog.Logger) *OrderService {
	return &OrderService{
		repo:   repo,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

type actorKey struct{}

// WithActor tags ctx with the user driving a change, for the status history.
func WithActor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, userID)
}

func actorFrom(ctx context.Context) *string {
	if id, ok := ctx.Value(actorKey{}).(string); ok {
		return &id
	}
	return nil
}

// Create validates the input, snapshots items, computes totals and stores
// the order. Checkout orders start pending; point-of-sale orders start
// accepted since staff are creating them in person.
func (s *OrderService) Create(ctx context.Context, in models.CreateOrderInput) (*models.Order, error) {
	if !in.OrderType.IsValid() {
		return nil, invalid("orderType", "must be delivery or counter")
	}
	if !in.PaymentMethod.IsValid() {
		return nil, invalid("paymentMethod", "unknown payment method")
	}
	if len(in.Items) == 0 {
		return nil, invalid("items", "order has no items")
	}
	if in.Discount.IsNegative() {
		return nil, invalid("discount", "must not be negative")
	}

	now := s.now()
	o := &models.Order{
		UserID:        in.UserID,
		AddressID:     in.AddressID,
		OrderType:     in.OrderType,
		Discount:      in.Discount.Round(2),
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
		CreatedAt:     now,
		Items:         make([]models.OrderItem, 0, len(in.Items)),
	}

	subtotal := decimal.Zero
	for i, it := range in.Items {
		if it.ProductName == "" {
			return nil, invalid(fmt.Sprintf("items[%d].productName", i), "required")
		}
		if it.ProductID != nil {
			if _, err := uuid.Parse(*it.ProductID); err != nil {
				return nil, invalid(fmt.Sprintf("items[%d].productId", i), "must be a uuid")
			}
		}
		if it.Quantity <= 0 {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if it.UnitPrice.IsNegative() {
			return nil, invalid(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
		}
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		o.Items = append(o.Items, models.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.Round(2),
			TotalPrice:  line,
		})
		subtotal = subtotal.Add(line)
	}
	o.Subtotal = subtotal
	if o.Discount.GreaterThan(o.Subtotal) {
		return nil, invalid("discount", "exceeds subtotal")
	}

	switch in.OrderType {
	case models.OrderTypeDelivery:
		if in.DeliveryFee == nil {
			return nil, ErrDeliveryUnresolved
		}
		if in.DeliveryFee.IsNegative() {
			return nil, invalid("deliveryFee", "must not be negative")
		}
		o.DeliveryFee = in.DeliveryFee.Round(2)
		if in.DeliveryDistance != nil {
			d := *in.DeliveryDistance
			o.DeliveryDistance = &d
		}
	case models.OrderTypeCounter:
		o.DeliveryFee = decimal.Zero
	}
	o.Total = models.ComputeTotal(o.Subtotal, o.Discount, o.DeliveryFee)

	if in.ChangeFor != nil {
		if in.PaymentMethod != models.PaymentCash {
			return nil, invalid("changeFor", "only allowed for cash payments")
		}
		if in.ChangeFor.LessThan(o.Total) {
			return nil, invalid("changeFor", "must be at least the order total")
		}
		c := in.ChangeFor.Round(2)
		o.ChangeFor = &c
	}

	o.Status = models.StatusPending
	if in.Source == models.SourcePOS {
		o.Status = models.StatusAccepted
		o.AcceptedAt = &now
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created", "orderID", o.ID, "status", o.Status, "type", o.OrderType, "total", o.Total.StringFixed(2))
	s.events.Publish(realtime.EventOrderCreated, realtime.OrderCreatedPayload{
		OrderID: o.ID,
		Status:  o.Status,
	})
	return o, nil
}

// maxGuardRetries bounds how often Transition re-reads an order whose status
// moved under it but still allows the requested target.
const maxGuardRetries = 3

// Transition moves an order to status to. Duplicate or out-of-order requests
// are rejected with *InvalidTransitionError; nothing is written or published.
func (s *OrderService) Transition(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	for attempt := 0; ; attempt++ {
		o, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load order %s: %w", id, err)
		}

		prev := o.Status
		at := s.now()
		if err := ApplyTransition(o, to, at); err != nil {
			return nil, err
		}

		err = s.repo.ApplyStatusChange(ctx, id, store.StatusChange{
			From:    prev,
			To:      to,
			At:      at,
			ActorID: actorFrom(ctx),
		})
		if errors.Is(err, store.ErrStaleStatus) && attempt+1 < maxGuardRetries {
			s.log.Debug("order status moved during transition, re-reading", "orderID", id, "from", prev, "to", to)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update order %s: %w", id, err)
		}

		s.log.Info("order status changed", "orderID", id, "from", prev, "to", to)
		s.events.Publish(realtime.EventOrderStatusChanged, realtime.OrderStatusChangedPayload{
			OrderID:        id,
			Status:         to,
			PreviousStatus: prev,
		})
		return o, nil
	}
}

// Assign hands a ready order to a courier: status, motoboy and dispatchedAt
// are written together.
func (s *OrderService) Assign(ctx context.Context, id, motoboyID string) (*models.Order, error) {
	if motoboyID == "" {
		return nil, invalid("motoboyId", "required")
	}

	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	if o.Status != models.StatusReady {
		return nil, newInvalidTransition(o.Status, models.StatusDispatched)
	}

	m, err := s.repo.GetMotoboy(ctx, motoboyID)
	if err != nil {
		return nil, fmt.Errorf("load motoboy %s: %w", motoboyID, err)
	}
	if !m.Active {
		return nil, ErrMotoboyInactive
	}

	at := s.now()
	if err := ApplyTransition(o, models.StatusDispatched, at); err != nil {
		return nil, err
	}
	o.MotoboyID = &m.ID

	err = s.repo.ApplyStatusChange(ctx, id, store.StatusChange{
		From:      models.StatusReady,
		To:        models.StatusDispatched,
		At:        at,
		MotoboyID: &m.ID,
		ActorID:   actorFrom(ctx),
	})
	if errors.Is(err, store.ErrStaleStatus) {
		fresh, ferr := s.repo.GetOrder(ctx, id)
		if ferr != nil {
			return nil, fmt.Errorf("load order %s: %w", id, ferr)
		}
		return nil, newInvalidTransition(fresh.Status, models.StatusDispatched)
	}
	if err != nil {
		return nil, fmt.Errorf("assign order %s: %w", id, err)
	}

	s.log.Info("order assigned", "orderID", id, "motoboyID", m.ID)
	s.events.Publish(realtime.EventOrderStatusChanged, realtime.OrderStatusChangedPayload{
		OrderID:        id,
		Status:         models.StatusDispatched,
		PreviousStatus: models.StatusReady,
	})
	s.events.Publish(realtime.EventOrderAssigned, realtime.OrderAssignedPayload{
		OrderID:   id,
		MotoboyID: m.ID,
		Status:    models.StatusDispatched,
	})
	return o, nil
}

// AdjustDeliveryFee is the one manual correction an order may receive after
// creation. The original fee is kept and the total recomputed.
func (s *OrderService) AdjustDeliveryFee(ctx context.Context, id string, fee decimal.Decimal) (*models.Order, error) {
	if fee.IsNegative() {
		return nil, invalid("deliveryFee", "must not be negative")
	}
	fee = fee.Round(2)

	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	if o.OrderType != models.OrderTypeDelivery || o.Status.IsTerminal() {
		return nil, ErrFeeNotAdjustable
	}
	if o.DeliveryFeeAdjusted {
		return nil, ErrFeeAlreadyAdjusted
	}

	original := o.DeliveryFee
	total := models.ComputeTotal(o.Subtotal, o.Discount, fee)
	err = s.repo.AdjustDeliveryFee(ctx, id, store.FeeChange{Fee: fee, Original: original, Total: total})
	if errors.Is(err, store.ErrStaleStatus) {
		return nil, ErrFeeAlreadyAdjusted
	}
	if err != nil {
		return nil, fmt.Errorf("adjust delivery fee %s: %w", id, err)
	}

	o.OriginalDeliveryFee = &original
	o.DeliveryFee = fee
	o.DeliveryFeeAdjusted = true
	o.Total = total

	s.log.Info("delivery fee adjusted", "orderID", id,
		"from", original.StringFixed(2), "to", fee.StringFixed(2), "total", total.StringFixed(2))
	s.events.Publish(realtime.EventOrderUpdated, realtime.OrderUpdatedPayload{OrderID: id})
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, nil
}

// List recomputes a view straight from the store; there is no cached index.
func (s *OrderService) List(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	for _, st := range f.Statuses {
		if !st.IsValid() {
			return nil, invalid("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	orders, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
