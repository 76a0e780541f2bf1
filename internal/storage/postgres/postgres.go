package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/product"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &PostgresStorage{db: db}

	if err := s.db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            price BIGINT NOT NULL CHECK (price >= 0),
            currency TEXT NOT NULL DEFAULT 'NGN',
            available BOOLEAN NOT NULL DEFAULT TRUE,
            stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            items JSONB NOT NULL,
            total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
            currency TEXT NOT NULL,
            shipping JSONB NOT NULL,
            payment_provider TEXT NOT NULL,
            payment_status TEXT NOT NULL,
            status TEXT NOT NULL,
            reference TEXT UNIQUE NOT NULL,
            inventory_settled BOOLEAN NOT NULL DEFAULT FALSE,
            paid_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS orders_payment_status_idx ON orders (payment_status)`,
		`CREATE TABLE IF NOT EXISTS transactions (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            reference TEXT UNIQUE NOT NULL,
            amount BIGINT NOT NULL CHECK (amount >= 0),
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            provider TEXT NOT NULL,
            meta JSONB,
            provider_response JSONB,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id)`,
		`CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status, created_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) FindProductByID(ctx context.Context, id string) (*product.Product, error) {
	const q = `SELECT id, name, price, currency, available, stock, updated_at FROM products WHERE id = $1`
	var p product.Product
	err := s.db.QueryRowContext(ctx, q, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Available, &p.Stock, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, o *order.Order, t *transaction.Transaction) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("marshal shipping: %w", err)
	}
	meta, err := marshalMap(t.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	const qOrder = `
        INSERT INTO orders (id, user_id, items, total_amount, currency, shipping, payment_provider,
                            payment_status, status, reference, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	if _, err := tx.ExecContext(ctx, qOrder,
		o.ID, o.UserID, items, o.TotalAmount, o.Currency, shipping, o.PaymentProvider,
		o.PaymentStatus, o.Status, o.Reference, o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return mapInsertErr(err)
	}

	const qTx = `
        INSERT INTO transactions (id, user_id, reference, amount, currency, status, provider, meta, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := tx.ExecContext(ctx, qTx,
		t.ID, t.UserID, t.Reference, t.Amount, t.Currency, t.Status, t.Provider, meta, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return mapInsertErr(err)
	}
	return tx.Commit()
}

const orderColumns = `id, user_id, items, total_amount, currency, shipping, payment_provider,
            payment_status, status, reference, inventory_settled, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o        order.Order
		items    []byte
		shipping []byte
		paidAt   sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.UserID, &items, &o.TotalAmount, &o.Currency, &shipping, &o.PaymentProvider,
		&o.PaymentStatus, &o.Status, &o.Reference, &o.InventorySettled, &paidAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func (s *PostgresStorage) FindOrderByReference(ctx context.Context, reference string) (*order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE reference = $1`
	o, err := scanOrder(s.db.QueryRowContext(ctx, q, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return o, err
}

func (s *PostgresStorage) ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const transactionColumns = `id, user_id, reference, amount, currency, status, provider, meta, provider_response, created_at, updated_at`

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var (
		t        transaction.Transaction
		meta     []byte
		response []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Reference, &t.Amount, &t.Currency, &t.Status, &t.Provider,
		&meta, &response, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &t.ProviderResponse); err != nil {
			return nil, fmt.Errorf("decode provider response: %w", err)
		}
	}
	return &t, nil
}

func (s *PostgresStorage) FindTransactionByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	t, err := scanTransaction(s.db.QueryRowContext(ctx, q, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return t, err
}

func (s *PostgresStorage) ListPendingTransactions(ctx context.Context, provider order.Provider, olderThan time.Time, limit int) ([]transaction.Transaction, error) {
	q := `SELECT ` + transactionColumns + `
        FROM transactions
        WHERE status = 'pending' AND provider = $1 AND created_at < $2
        ORDER BY created_at
        LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, provider, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CommitTerminal(ctx context.Context, reference string, status transaction.Status, providerResponse map[string]any, settle storage.SettleFunc) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("commit terminal: %q is not a terminal status", status)
	}
	response, err := marshalMap(providerResponse)
	if err != nil {
		return false, fmt.Errorf("marshal provider response: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
        UPDATE transactions
        SET status = $1, provider_response = $2, updated_at = $3
        WHERE reference = $4 AND status = 'pending'`,
		status, response, now, reference,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	var row *sql.Row
	if status == transaction.StatusSuccess {
		row = tx.QueryRowContext(ctx, `
            UPDATE orders
            SET payment_status = 'paid', status = 'processing', paid_at = $1, updated_at = $1
            WHERE reference = $2 AND payment_status = 'pending'
            RETURNING `+orderColumns, now, reference)
	} else {
		row = tx.QueryRowContext(ctx, `
            UPDATE orders
            SET payment_status = 'failed', updated_at = $1
            WHERE reference = $2 AND payment_status = 'pending'
            RETURNING `+orderColumns, now, reference)
	}
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("commit terminal %s: order is not pending while its transaction is", reference)
	}
	if err != nil {
		return false, err
	}

	if settle != nil && status == transaction.StatusSuccess {
		if err := settle(ctx, &stockWriter{tx: tx}, o); err != nil {
			return false, fmt.Errorf("settle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *PostgresStorage) Refund(ctx context.Context, reference string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE orders
        SET payment_status = 'refunded', updated_at = $1
        WHERE reference = $2 AND payment_status = 'paid'`,
		time.Now().UTC(), reference,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type stockWriter struct {
	tx *sql.Tx
}

func (w *stockWriter) MarkInventorySettled(ctx context.Context, orderID string) (bool, error) {
	res, err := w.tx.ExecContext(ctx,
		`UPDATE orders SET inventory_settled = TRUE WHERE id = $1 AND inventory_settled = FALSE`, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *stockWriter) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	var stock int
	err := w.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	take := min(qty, stock)
	if take <= 0 {
		return 0, nil
	}
	if _, err := w.tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2`, take, productID); err != nil {
		return 0, err
	}
	return take, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicateReference
	}
	return err
}
