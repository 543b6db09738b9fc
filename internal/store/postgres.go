package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/jogardn/order-store/pkg/models"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	selectOrderColumns = `id, customer_name, email, total, status, created_at, updated_at`
	selectItemColumns  = `id, order_id, product_name, quantity, unit_price`
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore keeps orders in the orders and order_items tables. It works
// with both the lib/pq ("postgres") and pgx ("pgx") drivers.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
	now    func() time.Time
}

// Open creates the connection pool. It does not wait for the server; see
// WaitForDatabase.
func Open(driver, dsn string, pool PoolConfig, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return NewPostgresStore(db, logger), nil
}

func NewPostgresStore(db *sqlx.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WaitForDatabase pings until the server answers or attempts run out.
func (s *PostgresStore) WaitForDatabase(ctx context.Context, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.db.PingContext(ctx); err == nil {
			s.logger.Info("Database connection established")
			return nil
		}
		s.logger.WithField("attempt", i+1).Info("Waiting for database...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			customer_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			total DOUBLE PRECISION NOT NULL,
			status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'PROCESSING', 'SHIPPED', 'CANCELLED')),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_name VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price DOUBLE PRECISION NOT NULL CHECK (unit_price >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order

	err := s.withTx(ctx, readOnly, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &orders,
			`SELECT `+selectOrderColumns+` FROM orders ORDER BY created_at, id`); err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		ids := make([]string, len(orders))
		for i := range orders {
			ids[i] = orders[i].ID
		}
		query, args, err := sqlx.In(
			`SELECT `+selectItemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY id`, ids)
		if err != nil {
			return err
		}

		var items []models.LineItem
		if err := tx.SelectContext(ctx, &items, tx.Rebind(query), args...); err != nil {
			return err
		}

		byOrder := make(map[string][]models.LineItem, len(orders))
		for _, item := range items {
			byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
		}
		for i := range orders {
			orders[i].Items = byOrder[orders[i].ID]
			finish(&orders[i])
		}
		return nil
	})
	if err != nil {
		return nil, internalError("list orders", err)
	}

	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Order, error) {
	var order *models.Order

	err := s.withTx(ctx, readOnly, func(tx *sqlx.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, internalError("get order", err)
	}
	return order, nil
}

func (s *PostgresStore) Create(ctx context.Context, in models.OrderInput) (*models.Order, error) {
	order, err := buildOrder(in, normalize(s.now()))
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, customer_name, email, total, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, order.CustomerName, order.Email, order.Total, order.Status,
			order.CreatedAt, order.UpdatedAt); err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			if err := tx.QueryRowxContext(ctx,
				`INSERT INTO order_items (order_id, product_name, quantity, unit_price)
				VALUES ($1, $2, $3, $4) RETURNING id`,
				order.ID, item.ProductName, item.Quantity, item.UnitPrice).Scan(&item.ID); err != nil {
				return fmt.Errorf("failed to insert item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, internalError("create order", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"items_count": len(order.Items),
	}).Debug("Order persisted")

	return order, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*StatusChange, error) {
	status, err := checkStatusUpdate(upd)
	if err != nil {
		return nil, err
	}

	change := &StatusChange{ID: id, Status: status}
	err = s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var prev time.Time
		if err := tx.GetContext(ctx, &prev,
			`SELECT updated_at FROM orders WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		change.UpdatedAt = nextUpdatedAt(prev.UTC(), normalize(s.now()))
		_, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
			status, change.UpdatedAt, id)
		return err
	})
	if err != nil {
		return nil, internalError("update order status", err)
	}
	return change, nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, id string, upd models.OrderUpdate) (*models.Order, error) {
	status, err := checkUpdate(upd)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}

		applyUpdate(order, upd, status, normalize(s.now()))
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET customer_name = $1, email = $2, total = $3, status = $4, updated_at = $5
			WHERE id = $6`,
			order.CustomerName, order.Email, order.Total, order.Status, order.UpdatedAt, id)
		return err
	})
	if err != nil {
		return nil, internalError("update order", err)
	}
	return order, nil
}

// Delete removes the items and then the order in one transaction. The
// foreign key cascades as well; the explicit delete keeps the behavior
// independent of how the schema was created.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	return internalError("delete order", err)
}

var readOnly = &sql.TxOptions{ReadOnly: true}

func (s *PostgresStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func loadOrder(ctx context.Context, tx *sqlx.Tx, id string, forUpdate bool) (*models.Order, error) {
	query := `SELECT ` + selectOrderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order := &models.Order{}
	if err := tx.GetContext(ctx, order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := tx.SelectContext(ctx, &order.Items,
		`SELECT `+selectItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, id); err != nil {
		return nil, err
	}

	finish(order)
	return order, nil
}

// finish normalizes values read back from the database.
func finish(order *models.Order) {
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if order.Items == nil {
		order.Items = []models.LineItem{}
	}
}
