package store

import (
	"context"
	"errors"
	"time"

	"vibe-drinks/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (a user's whatsapp) is taken.
	ErrDuplicate = errors.New("already exists")
	// ErrStaleStatus means a guarded write found the order in a different
	// status than the caller read; another request won the race.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// StatusChange is one guarded lifecycle write: status, its timestamp and,
// for courier assignment, the motoboy, all in a single statement.
type StatusChange struct {
	From      models.OrderStatus
	To        models.OrderStatus
	At        time.Time
	MotoboyID *string
	ActorID   *string
}

// FeeChange replaces the delivery fee once, keeping the original amount.
type FeeChange struct {
	Fee      decimal.Decimal
	Original decimal.Decimal
	Total    decimal.Decimal
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	ApplyStatusChange(ctx context.Context, id string, ch StatusChange) error
	AdjustDeliveryFee(ctx context.Context, id string, ch FeeChange) error
}

type MotoboyStore interface {
	CreateMotoboy(ctx context.Context, m *models.Motoboy) error
	GetMotoboy(ctx context.Context, id string) (*models.Motoboy, error)
	GetMotoboyByUserID(ctx context.Context, userID string) (*models.Motoboy, error)
	GetMotoboyByWhatsapp(ctx context.Context, whatsapp string) (*models.Motoboy, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByWhatsapp(ctx context.Context, whatsapp string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type AddressStore interface {
	SaveAddress(ctx context.Context, a *models.Address) error
	GetAddress(ctx context.Context, id string) (*models.Address, error)
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
}

// Store bundles every repository the service needs.
type Store interface {
	OrderStore
	MotoboyStore
	UserStore
	AddressStore
}
