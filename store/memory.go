package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"vibe-drinks/models"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by `serve -memory`.
type Memory struct {
	mu        sync.RWMutex
	orders    map[string]*models.Order
	motoboys  map[string]*models.Motoboy
	users     map[string]*models.User
	addresses map[string]*models.Address
	history   []HistoryEntry
}

// HistoryEntry mirrors a row of order_status_history.
type HistoryEntry struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
	ActorID *string
	At      time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]*models.Order),
		motoboys:  make(map[string]*models.Motoboy),
		users:     make(map[string]*models.User),
		addresses: make(map[string]*models.Address),
	}
}

func (m *Memory) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.NewString()
		}
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) ListOrders(_ context.Context, f models.OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []models.Order
	for _, o := range m.orders {
		if !matches(o, f) {
			continue
		}
		res = append(res, *o.Clone())
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func matches(o *models.Order, f models.OrderFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && (o.UserID == nil || *o.UserID != f.UserID) {
		return false
	}
	if f.MotoboyID != "" && (o.MotoboyID == nil || *o.MotoboyID != f.MotoboyID) {
		return false
	}
	return true
}

func (m *Memory) ApplyStatusChange(_ context.Context, id string, ch StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != ch.From {
		return ErrStaleStatus
	}
	o.Status = ch.To
	if stamp := o.StampFor(ch.To); stamp != nil && *stamp == nil {
		at := ch.At
		*stamp = &at
	}
	if ch.MotoboyID != nil {
		v := *ch.MotoboyID
		o.MotoboyID = &v
	}
	m.history = append(m.history, HistoryEntry{OrderID: id, From: ch.From, To: ch.To, ActorID: ch.ActorID, At: ch.At})
	return nil
}

func (m *Memory) AdjustDeliveryFee(_ context.Context, id string, ch FeeChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.DeliveryFeeAdjusted {
		return ErrStaleStatus
	}
	orig := ch.Original
	o.OriginalDeliveryFee = &orig
	o.DeliveryFee = ch.Fee
	o.Total = ch.Total
	o.DeliveryFeeAdjusted = true
	return nil
}

// History returns the recorded transitions for one order, oldest first.
func (m *Memory) History(orderID string) []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []HistoryEntry
	for _, h := range m.history {
		if h.OrderID == orderID {
			res = append(res, h)
		}
	}
	return res
}

func (m *Memory) CreateMotoboy(_ context.Context, mb *models.Motoboy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mb.ID == "" {
		mb.ID = uuid.NewString()
	}
	if mb.CreatedAt.IsZero() {
		mb.CreatedAt = time.Now()
	}
	mb.Whatsapp = models.NormalizeWhatsapp(mb.Whatsapp)
	c := *mb
	m.motoboys[mb.ID] = &c
	return nil
}

func (m *Memory) GetMotoboy(_ context.Context, id string) (*models.Motoboy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mb, ok := m.motoboys[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *mb
	return &c, nil
}

func (m *Memory) GetMotoboyByUserID(_ context.Context, userID string) (*models.Motoboy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mb := range m.motoboys {
		if mb.UserID != nil && *mb.UserID == userID {
			c := *mb
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetMotoboyByWhatsapp(_ context.Context, whatsapp string) (*models.Motoboy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	phone := models.NormalizeWhatsapp(whatsapp)
	for _, mb := range m.motoboys {
		if mb.Whatsapp == phone {
			c := *mb
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Whatsapp = models.NormalizeWhatsapp(u.Whatsapp)
	for _, other := range m.users {
		if other.Whatsapp == u.Whatsapp {
			return ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *Memory) GetUserByWhatsapp(_ context.Context, whatsapp string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	phone := models.NormalizeWhatsapp(whatsapp)
	for _, u := range m.users {
		if u.Whatsapp == phone {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *Memory) SaveAddress(_ context.Context, a *models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.IsDefault {
		for _, other := range m.addresses {
			if other.UserID == a.UserID && other.ID != a.ID {
				other.IsDefault = false
			}
		}
	}
	c := *a
	m.addresses[a.ID] = &c
	return nil
}

func (m *Memory) GetAddress(_ context.Context, id string) (*models.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.addresses[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *Memory) ListAddresses(_ context.Context, userID string) ([]models.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []models.Address
	for _, a := range m.addresses {
		if a.UserID == userID {
			res = append(res, *a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].IsDefault != res[j].IsDefault {
			return res[i].IsDefault
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}
