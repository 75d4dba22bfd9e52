package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibe-drinks/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const uniqueViolation = "23505"

// stampColumns maps a status to the lifecycle column stamped on entry.
var stampColumns = map[models.OrderStatus]string{
	models.StatusAccepted:   "accepted_at",
	models.StatusPreparing:  "preparing_at",
	models.StatusReady:      "ready_at",
	models.StatusDispatched: "dispatched_at",
	models.StatusDelivered:  "delivered_at",
	models.StatusCancelled:  "cancelled_at",
}

const orderColumns = `
	id::text, user_id::text, address_id::text, motoboy_id::text,
	status, order_type,
	subtotal, discount, delivery_fee, original_delivery_fee, delivery_fee_adjusted, total,
	delivery_distance, payment_method, change_for, notes,
	created_at, accepted_at, preparing_at, ready_at, dispatched_at, delivered_at, cancelled_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o         models.Order
		original  decimal.NullDecimal
		changeFor decimal.NullDecimal
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.AddressID, &o.MotoboyID,
		&o.Status, &o.OrderType,
		&o.Subtotal, &o.Discount, &o.DeliveryFee, &original, &o.DeliveryFeeAdjusted, &o.Total,
		&o.DeliveryDistance, &o.PaymentMethod, &changeFor, &o.Notes,
		&o.CreatedAt, &o.AcceptedAt, &o.PreparingAt, &o.ReadyAt, &o.DispatchedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if original.Valid {
		o.OriginalDeliveryFee = &original.Decimal
	}
	if changeFor.Valid {
		o.ChangeFor = &changeFor.Decimal
	}
	return &o, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, address_id, status, order_type,
			subtotal, discount, delivery_fee, total, delivery_distance,
			payment_method, change_for, notes, created_at, accepted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.UserID, o.AddressID, o.Status, o.OrderType,
		o.Subtotal, o.Discount, o.DeliveryFee, o.Total, o.DeliveryDistance,
		o.PaymentMethod, nullDecimal(o.ChangeFor), o.Notes, o.CreatedAt, o.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("insert item %q: %w", it.ProductName, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	o, err := scanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	items, err := p.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id::text = $%d", len(args)))
	}
	if f.MotoboyID != "" {
		args = append(args, f.MotoboyID)
		where = append(where, fmt.Sprintf("motoboy_id::text = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		res []models.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return res, nil
	}

	items, err := p.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Items = items[res[i].ID]
	}
	return res, nil
}

func (p *Postgres) loadItems(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, order_id::text, product_id::text, product_name, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id::text = ANY($1)
		ORDER BY order_id, product_name`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]models.OrderItem, len(orderIDs))
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		res[it.OrderID] = append(res[it.OrderID], it)
	}
	return res, rows.Err()
}

// ApplyStatusChange updates status, its timestamp and the courier in one
// guarded UPDATE and records the history row in the same transaction.
func (p *Postgres) ApplyStatusChange(ctx context.Context, id string, ch StatusChange) error {
	col, ok := stampColumns[ch.To]
	if !ok {
		return fmt.Errorf("no lifecycle column for status %q", ch.To)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET
			status = $1,
			`+col+` = COALESCE(`+col+`, $2),
			motoboy_id = COALESCE($3::uuid, motoboy_id)
		WHERE id = $4 AND status = $5`,
		ch.To, ch.At, ch.MotoboyID, id, ch.From,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleStatus
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, ch.From, ch.To, ch.ActorID, ch.At,
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) AdjustDeliveryFee(ctx context.Context, id string, ch FeeChange) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE orders SET
			original_delivery_fee = $1,
			delivery_fee = $2,
			total = $3,
			delivery_fee_adjusted = true
		WHERE id = $4 AND delivery_fee_adjusted = false`,
		ch.Original, ch.Fee, ch.Total, id,
	)
	if err != nil {
		return fmt.Errorf("adjust delivery fee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

const motoboyColumns = `id::text, user_id::text, name, whatsapp, active, created_at`

func scanMotoboy(row pgx.Row) (*models.Motoboy, error) {
	var m models.Motoboy
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Whatsapp, &m.Active, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (p *Postgres) CreateMotoboy(ctx context.Context, m *models.Motoboy) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.Whatsapp = models.NormalizeWhatsapp(m.Whatsapp)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO motoboys (id, user_id, name, whatsapp, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.Name, m.Whatsapp, m.Active, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create motoboy: %w", err)
	}
	return nil
}

func (p *Postgres) GetMotoboy(ctx context.Context, id string) (*models.Motoboy, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanMotoboy(p.pool.QueryRow(ctx, `SELECT `+motoboyColumns+` FROM motoboys WHERE id = $1`, id))
}

func (p *Postgres) GetMotoboyByUserID(ctx context.Context, userID string) (*models.Motoboy, error) {
	return scanMotoboy(p.pool.QueryRow(ctx, `SELECT `+motoboyColumns+` FROM motoboys WHERE user_id::text = $1`, userID))
}

// GetMotoboyByWhatsapp returns the oldest courier registered under the phone;
// the column is not unique.
func (p *Postgres) GetMotoboyByWhatsapp(ctx context.Context, whatsapp string) (*models.Motoboy, error) {
	return scanMotoboy(p.pool.QueryRow(ctx, `
		SELECT `+motoboyColumns+` FROM motoboys
		WHERE whatsapp = $1
		ORDER BY created_at
		LIMIT 1`,
		models.NormalizeWhatsapp(whatsapp),
	))
}

func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.Whatsapp = models.NormalizeWhatsapp(u.Whatsapp)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, name, whatsapp, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Whatsapp, u.Role, u.PasswordHash, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *Postgres) GetUserByWhatsapp(ctx context.Context, whatsapp string) (*models.User, error) {
	var u models.User
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, name, whatsapp, role, password_hash, created_at
		FROM users WHERE whatsapp = $1`,
		models.NormalizeWhatsapp(whatsapp),
	).Scan(&u.ID, &u.Name, &u.Whatsapp, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAddress upserts the address; a default address clears the user's
// other defaults in the same transaction.
func (p *Postgres) SaveAddress(ctx context.Context, a *models.Address) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.IsDefault {
		if _, err := tx.Exec(ctx, `
			UPDATE addresses SET is_default = false
			WHERE user_id = $1 AND id <> $2 AND is_default`,
			a.UserID, a.ID,
		); err != nil {
			return fmt.Errorf("clear defaults: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO addresses (id, user_id, street, number, complement, neighborhood, city, state, zip_code, is_default, lat, lng, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			street = EXCLUDED.street,
			number = EXCLUDED.number,
			complement = EXCLUDED.complement,
			neighborhood = EXCLUDED.neighborhood,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip_code = EXCLUDED.zip_code,
			is_default = EXCLUDED.is_default,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng`,
		a.ID, a.UserID, a.Street, a.Number, a.Complement, a.Neighborhood, a.City, a.State, a.ZipCode,
		a.IsDefault, a.Lat, a.Lng, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save address: %w", err)
	}
	return tx.Commit(ctx)
}

const addressColumns = `id::text, user_id::text, street, number, complement, neighborhood, city, state, zip_code, is_default, lat, lng, created_at`

func scanAddress(row pgx.Row) (*models.Address, error) {
	var a models.Address
	err := row.Scan(&a.ID, &a.UserID, &a.Street, &a.Number, &a.Complement, &a.Neighborhood,
		&a.City, &a.State, &a.ZipCode, &a.IsDefault, &a.Lat, &a.Lng, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) GetAddress(ctx context.Context, id string) (*models.Address, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := scanAddress(p.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func (p *Postgres) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE user_id::text = $1
		ORDER BY is_default DESC, created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var res []models.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
