package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a row from the orders table together with its item snapshots.
type Order struct {
	ID        string      `json:"id"`
	UserID    *string     `json:"userId"`
	AddressID *string     `json:"addressId"`
	MotoboyID *string     `json:"motoboyId"`
	Status    OrderStatus `json:"status"`
	OrderType OrderType   `json:"orderType"`

	Subtotal            decimal.Decimal  `json:"subtotal"`
	Discount            decimal.Decimal  `json:"discount"`
	DeliveryFee         decimal.Decimal  `json:"deliveryFee"`
	OriginalDeliveryFee *decimal.Decimal `json:"originalDeliveryFee"`
	DeliveryFeeAdjusted bool             `json:"deliveryFeeAdjusted"`
	Total               decimal.Decimal  `json:"total"`
	DeliveryDistance    *float64         `json:"deliveryDistance"` // km, nil for counter orders

	PaymentMethod PaymentMethod    `json:"paymentMethod"`
	ChangeFor     *decimal.Decimal `json:"changeFor"`
	Notes         string           `json:"notes"`

	Items []OrderItem `json:"items"`

	CreatedAt    time.Time  `json:"createdAt"`
	AcceptedAt   *time.Time `json:"acceptedAt"`
	PreparingAt  *time.Time `json:"preparingAt"`
	ReadyAt      *time.Time `json:"readyAt"`
	DispatchedAt *time.Time `json:"dispatchedAt"`
	DeliveredAt  *time.Time `json:"deliveredAt"`
	CancelledAt  *time.Time `json:"cancelledAt"`
}

// OrderItem is a denormalized snapshot of a product taken at order time.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	ProductID   *string         `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

// ComputeTotal returns subtotal - discount + deliveryFee.
func ComputeTotal(subtotal, discount, deliveryFee decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(deliveryFee).Round(2)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	c := *o
	c.UserID = cloneString(o.UserID)
	c.AddressID = cloneString(o.AddressID)
	c.MotoboyID = cloneString(o.MotoboyID)
	c.OriginalDeliveryFee = cloneDecimal(o.OriginalDeliveryFee)
	c.ChangeFor = cloneDecimal(o.ChangeFor)
	if o.DeliveryDistance != nil {
		d := *o.DeliveryDistance
		c.DeliveryDistance = &d
	}
	c.AcceptedAt = cloneTime(o.AcceptedAt)
	c.PreparingAt = cloneTime(o.PreparingAt)
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.DispatchedAt = cloneTime(o.DispatchedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	if o.Items != nil {
		c.Items = make([]OrderItem, len(o.Items))
		for i, it := range o.Items {
			it.ProductID = cloneString(it.ProductID)
			c.Items[i] = it
		}
	}
	return &c
}

// StampFor returns a pointer to the lifecycle timestamp recorded when the
// order enters status s, or nil for pending (covered by CreatedAt).
func (o *Order) StampFor(s OrderStatus) **time.Time {
	switch s {
	case StatusAccepted:
		return &o.AcceptedAt
	case StatusPreparing:
		return &o.PreparingAt
	case StatusReady:
		return &o.ReadyAt
	case StatusDispatched:
		return &o.DispatchedAt
	case StatusDelivered:
		return &o.DeliveredAt
	case StatusCancelled:
		return &o.CancelledAt
	default:
		return nil
	}
}

// CreateOrderInput is what checkout and the point of sale send to create an order.
type CreateOrderInput struct {
	Source           OrderSource
	UserID           *string
	AddressID        *string
	OrderType        OrderType
	Items            []OrderItemInput
	Discount         decimal.Decimal
	DeliveryFee      *decimal.Decimal // nil when the delivery quote did not resolve
	DeliveryDistance *float64
	PaymentMethod    PaymentMethod
	ChangeFor        *decimal.Decimal
	Notes            string
}

type OrderItemInput struct {
	ProductID   *string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type OrderSource string

const (
	SourceCheckout OrderSource = "checkout"
	SourcePOS      OrderSource = "pos"
)

// OrderFilter narrows ListOrders; zero fields are ignored.
type OrderFilter struct {
	Statuses  []OrderStatus
	UserID    string
	MotoboyID string
	Limit     int
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
