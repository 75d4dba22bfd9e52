package models

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAccepted   OrderStatus = "accepted"
	StatusPreparing  OrderStatus = "preparing"
	StatusReady      OrderStatus = "ready"
	StatusDispatched OrderStatus = "dispatched"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// AllStatuses lists every persisted status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusAccepted,
	StatusPreparing,
	StatusReady,
	StatusDispatched,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady,
		StatusDispatched, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeCounter  OrderType = "counter"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeDelivery || t == OrderTypeCounter
}

type PaymentMethod string

const (
	PaymentPix        PaymentMethod = "pix"
	PaymentCash       PaymentMethod = "cash"
	PaymentCardPOS    PaymentMethod = "card_pos"
	PaymentCardDebit  PaymentMethod = "card_debit"
	PaymentCardCredit PaymentMethod = "card_credit"
)

func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentPix, PaymentCash, PaymentCardPOS, PaymentCardDebit, PaymentCardCredit:
		return true
	default:
		return false
	}
}
