package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/orderpipe/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			price_cents INTEGER NOT NULL,
			stock INTEGER NOT NULL DEFAULT 0,
			track_stock INTEGER NOT NULL DEFAULT 1,
			weight_grams INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS stock_reservations (
			order_id TEXT NOT NULL,
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (order_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS coupons (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			value INTEGER NOT NULL DEFAULT 0,
			min_subtotal_cents INTEGER NOT NULL DEFAULT 0,
			max_discount_cents INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			expires_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			push_token TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS admins (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			subtotal_cents INTEGER NOT NULL DEFAULT 0,
			discount_cents INTEGER NOT NULL DEFAULT 0,
			shipping_cents INTEGER NOT NULL DEFAULT 0,
			total_cents INTEGER NOT NULL DEFAULT 0,
			coupon_code TEXT NOT NULL DEFAULT '',
			ship_name TEXT NOT NULL DEFAULT '',
			ship_email TEXT NOT NULL DEFAULT '',
			ship_phone TEXT NOT NULL DEFAULT '',
			ship_street TEXT NOT NULL DEFAULT '',
			ship_city TEXT NOT NULL DEFAULT '',
			ship_state TEXT NOT NULL DEFAULT '',
			ship_postal_code TEXT NOT NULL DEFAULT '',
			ship_country TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			unit_price_cents INTEGER NOT NULL,
			line_total_cents INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_events (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			note TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			channel TEXT NOT NULL,
			recipient_type TEXT NOT NULL,
			recipient_id TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			sent_at DATETIME,
			failed_at DATETIME,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS inbox_entries (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			notification_id TEXT NOT NULL REFERENCES notifications(id),
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			read_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			queue TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			next_run_at DATETIME,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status)`,
		`CREATE INDEX IF NOT EXISTS idx_inbox_customer ON inbox_entries(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(queue, status, next_run_at) WHERE status IN ('pending', 'retrying')`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_target ON jobs(target_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Products ---

func (s *SQLiteStorage) CreateProduct(ctx context.Context, p *models.Product) error {
	track := 0
	if p.TrackStock {
		track = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, sku, price_cents, stock, track_stock, weight_grams, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SKU, p.PriceCents, p.Stock, track, p.WeightGrams, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	var p models.Product
	var track int
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.PriceCents, &p.Stock, &track, &p.WeightGrams, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TrackStock = track == 1
	return &p, nil
}

func (s *SQLiteStorage) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, sku, price_cents, stock, track_stock, weight_grams, created_at, updated_at FROM products WHERE id = ?`, id)
	p, err := s.scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStorage) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, sku, price_cents, stock, track_stock, weight_grams, created_at, updated_at FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// --- Stock reservations ---

func (s *SQLiteStorage) ReserveStock(ctx context.Context, orderID, productID string, quantity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Already reserved for this order: confirm, don't decrement again.
	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM stock_reservations WHERE order_id = ? AND product_id = ?`,
		orderID, productID,
	).Scan(&existing)
	if err == nil {
		return tx.Commit()
	}
	if err != sql.ErrNoRows {
		return err
	}

	// Conditional decrement so concurrent orders cannot oversell.
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
		quantity, time.Now().UTC(), productID, quantity,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stock_reservations (order_id, product_id, quantity, created_at) VALUES (?, ?, ?, ?)`,
		orderID, productID, quantity, time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) ReleaseReservations(ctx context.Context, orderID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock + COALESCE(
			(SELECT quantity FROM stock_reservations WHERE order_id = ? AND product_id = products.id), 0),
			updated_at = ?
		 WHERE id IN (SELECT product_id FROM stock_reservations WHERE order_id = ?)`,
		orderID, time.Now().UTC(), orderID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM stock_reservations WHERE order_id = ?`, orderID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) GetReservations(ctx context.Context, orderID string) ([]models.StockReservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, product_id, quantity, created_at FROM stock_reservations WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.StockReservation
	for rows.Next() {
		var r models.StockReservation
		if err := rows.Scan(&r.OrderID, &r.ProductID, &r.Quantity, &r.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// --- Coupons ---

func (s *SQLiteStorage) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	active := 0
	if c.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coupons (id, code, type, value, min_subtotal_cents, max_discount_cents, active, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.Type, c.Value, c.MinSubtotalCents, c.MaxDiscountCents, active, c.ExpiresAt, c.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanCoupon(row interface{ Scan(...interface{}) error }) (*models.Coupon, error) {
	var c models.Coupon
	var active int
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MinSubtotalCents, &c.MaxDiscountCents, &active, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Active = active == 1
	return &c, nil
}

func (s *SQLiteStorage) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, type, value, min_subtotal_cents, max_discount_cents, active, expires_at, created_at FROM coupons WHERE code = ?`, code)
	c, err := s.scanCoupon(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStorage) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, type, value, min_subtotal_cents, max_discount_cents, active, expires_at, created_at FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		c, err := s.scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

// --- Recipient directory ---

func (s *SQLiteStorage) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, email, phone, push_token, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.PushToken, c.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, push_token, created_at FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.PushToken, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (s *SQLiteStorage) CreateAdmin(ctx context.Context, a *models.Admin) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (id, name, email, phone) VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.Email, a.Phone,
	)
	return err
}

func (s *SQLiteStorage) GetAdmin(ctx context.Context, id string) (*models.Admin, error) {
	var a models.Admin
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone FROM admins WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &a, err
}

// --- Orders ---

func (s *SQLiteStorage) CreateOrder(ctx context.Context, o *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, number, customer_id, status, payment_status,
			subtotal_cents, discount_cents, shipping_cents, total_cents, coupon_code,
			ship_name, ship_email, ship_phone, ship_street, ship_city, ship_state, ship_postal_code, ship_country,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Number, o.CustomerID, o.Status, o.PaymentStatus,
		o.SubtotalCents, o.DiscountCents, o.ShippingCents, o.TotalCents, o.CouponCode,
		o.ShippingAddress.Name, o.ShippingAddress.Email, o.ShippingAddress.Phone,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, item := range o.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents, line_total_cents)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, o.ID, item.ProductID, item.Quantity, item.UnitPriceCents, item.LineTotalCents,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.SubtotalCents, &o.DiscountCents, &o.ShippingCents, &o.TotalCents, &o.CouponCode,
		&o.ShippingAddress.Name, &o.ShippingAddress.Email, &o.ShippingAddress.Phone,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const orderColumns = `id, number, customer_id, status, payment_status,
	subtotal_cents, discount_cents, shipping_cents, total_cents, coupon_code,
	ship_name, ship_email, ship_phone, ship_street, ship_city, ship_state, ship_postal_code, ship_country,
	created_at, updated_at`

func (s *SQLiteStorage) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := s.scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price_cents, line_total_cents FROM order_items WHERE order_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (s *SQLiteStorage) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStorage) GetOrderStatus(ctx context.Context, id string) (models.OrderStatus, error) {
	var status models.OrderStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&status)
	return status, err
}

func (s *SQLiteStorage) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, note string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if note == "" {
		return nil
	}
	return s.AppendOrderEvent(ctx, id, note)
}

func (s *SQLiteStorage) UpdateOrderPayment(ctx context.Context, id string, status models.PaymentStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) UpdateOrderAmounts(ctx context.Context, id string, discountCents, shippingCents, totalCents int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET discount_cents = ?, shipping_cents = ?, total_cents = ?, updated_at = ? WHERE id = ?`,
		discountCents, shippingCents, totalCents, time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) AppendOrderEvent(ctx context.Context, orderID, note string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_events (id, order_id, note, created_at) VALUES (?, ?, ?, ?)`,
		models.NewID("evt"), orderID, note, time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStorage) ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, note, created_at FROM order_events WHERE order_id = ? ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.OrderEvent
	for rows.Next() {
		var e models.OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Notifications ---

func (s *SQLiteStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, kind, channel, recipient_type, recipient_id, contact_email, contact_phone,
			title, content, status, attempt_count, sent_at, failed_at, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Kind, n.Channel, n.RecipientType, n.RecipientID, n.ContactEmail, n.ContactPhone,
		n.Title, n.Content, n.Status, n.AttemptCount, n.SentAt, n.FailedAt, n.Error, n.CreatedAt, n.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanNotification(row interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.Kind, &n.Channel, &n.RecipientType, &n.RecipientID, &n.ContactEmail, &n.ContactPhone,
		&n.Title, &n.Content, &n.Status, &n.AttemptCount, &n.SentAt, &n.FailedAt, &n.Error, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

const notificationColumns = `id, kind, channel, recipient_type, recipient_id, contact_email, contact_phone,
	title, content, status, attempt_count, sent_at, failed_at, error, created_at, updated_at`

func (s *SQLiteStorage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := s.scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (s *SQLiteStorage) ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		n, err := s.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func (s *SQLiteStorage) MarkNotificationSent(ctx context.Context, id string, attempt int) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, attempt_count = ?, sent_at = ?, error = '', updated_at = ? WHERE id = ?`,
		models.NotificationSent, attempt, now, now, id,
	)
	return err
}

func (s *SQLiteStorage) MarkNotificationFailed(ctx context.Context, id string, attempt int, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, attempt_count = ?, failed_at = ?, error = ?, updated_at = ? WHERE id = ?`,
		models.NotificationFailed, attempt, now, errMsg, now, id,
	)
	return err
}

func (s *SQLiteStorage) CreateInboxEntry(ctx context.Context, e *models.InboxEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbox_entries (id, customer_id, notification_id, title, content, read_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CustomerID, e.NotificationID, e.Title, e.Content, e.ReadAt, e.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) ListInbox(ctx context.Context, customerID string) ([]models.InboxEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, notification_id, title, content, read_at, created_at
		 FROM inbox_entries WHERE customer_id = ? ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.InboxEntry
	for rows.Next() {
		var e models.InboxEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.NotificationID, &e.Title, &e.Content, &e.ReadAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Jobs ---

func (s *SQLiteStorage) CreateJob(ctx context.Context, j *models.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, target_id, queue, status, attempt_count, next_run_at, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Kind, j.TargetID, j.Queue, j.Status, j.AttemptCount, j.NextRunAt, j.LastError, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, target_id, queue, status, attempt_count, next_run_at, last_error, created_at, updated_at FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Kind, &j.TargetID, &j.Queue, &j.Status, &j.AttemptCount, &j.NextRunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &j, err
}

// ClaimDueJobs marks due jobs as running inside one transaction so a job is
// owned by at most one worker at a time.
func (s *SQLiteStorage) ClaimDueJobs(ctx context.Context, queue string, limit int) ([]models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, target_id, queue, status, attempt_count, next_run_at, last_error, created_at, updated_at
		 FROM jobs
		 WHERE queue = ? AND status IN ('pending', 'retrying') AND (next_run_at IS NULL OR next_run_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		queue, now, limit)
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.Kind, &j.TargetID, &j.Queue, &j.Status, &j.AttemptCount, &j.NextRunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range jobs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			models.JobRunning, now, jobs[i].ID,
		); err != nil {
			return nil, err
		}
		jobs[i].Status = models.JobRunning
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *SQLiteStorage) HasActiveJob(ctx context.Context, targetID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE target_id = ? AND status IN ('pending', 'running', 'retrying')`,
		targetID,
	).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStorage) UpdateJob(ctx context.Context, j *models.Job) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempt_count = ?, next_run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		j.Status, j.AttemptCount, j.NextRunAt, j.LastError, time.Now().UTC(), j.ID,
	)
	return err
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&stats.TotalOrders)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = 'confirmed'`).Scan(&stats.ConfirmedOrders)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = 'failed'`).Scan(&stats.FailedOrders)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status IN ('pending', 'processing')`).Scan(&stats.PendingOrders)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&stats.TotalNotifications)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE status = 'sent'`).Scan(&stats.SentNotifications)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE status = 'failed'`).Scan(&stats.FailedNotifications)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status IN ('pending', 'retrying', 'running')`).Scan(&stats.QueuedJobs)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'failed'`).Scan(&stats.FailedJobs)

	return stats, nil
}
