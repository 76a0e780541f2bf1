// Package ledger is the single source of truth for settlement state. It
// builds orders and their payment transactions, freezes totals and references,
// and forwards terminal commits to the storage layer.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"

	"github.com/google/uuid"
)

const maxReferenceAttempts = 3

var ErrEmptyOrder = errors.New("order has no items")

type OrderInput struct {
	UserID   string
	Items    []order.Item
	Shipping order.Shipping
	Provider order.Provider
	Currency string
}

type Ledger struct {
	repo storage.LedgerRepository
	now  func() time.Time
}

func New(repo storage.LedgerRepository) *Ledger {
	return &Ledger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CreateOrder freezes the total and reference of a new order and stores it
// together with its pending transaction. A reference collision regenerates
// the reference; it is never reused.
func (l *Ledger) CreateOrder(ctx context.Context, in OrderInput) (*order.Order, *transaction.Transaction, error) {
	if len(in.Items) == 0 {
		return nil, nil, ErrEmptyOrder
	}
	for attempt := 1; ; attempt++ {
		now := l.now()
		ref, err := NewReference(now)
		if err != nil {
			return nil, nil, fmt.Errorf("generate reference: %w", err)
		}
		o := &order.Order{
			ID:              uuid.NewString(),
			UserID:          in.UserID,
			Items:           append([]order.Item(nil), in.Items...),
			TotalAmount:     order.Total(in.Items),
			Currency:        in.Currency,
			Shipping:        in.Shipping,
			PaymentProvider: in.Provider,
			PaymentStatus:   order.PaymentPending,
			Status:          order.StatusPending,
			Reference:       ref,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		tx := NewTransaction(o)

		err = l.repo.CreateOrder(ctx, o, tx)
		if errors.Is(err, storage.ErrDuplicateReference) && attempt < maxReferenceAttempts {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("create order: %w", err)
		}
		return o, tx, nil
	}
}

// NewTransaction builds the pending ledger entry that mirrors o. Meta only
// carries non-sensitive fields.
func NewTransaction(o *order.Order) *transaction.Transaction {
	return &transaction.Transaction{
		ID:        uuid.NewString(),
		UserID:    o.UserID,
		Reference: o.Reference,
		Amount:    o.TotalAmount,
		Currency:  o.Currency,
		Status:    transaction.StatusPending,
		Provider:  o.PaymentProvider,
		Meta: map[string]any{
			"orderId":   o.ID,
			"itemCount": len(o.Items),
			"city":      o.Shipping.City,
			"country":   o.Shipping.Country,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// FindByReference returns the order and transaction sharing ref.
func (l *Ledger) FindByReference(ctx context.Context, ref string) (*order.Order, *transaction.Transaction, error) {
	tx, err := l.repo.FindTransactionByReference(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	o, err := l.repo.FindOrderByReference(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return o, tx, nil
}

// FindByReferenceForUser is FindByReference restricted to userID's records.
// Somebody else's reference reads as storage.ErrNotFound.
func (l *Ledger) FindByReferenceForUser(ctx context.Context, ref, userID string) (*order.Order, *transaction.Transaction, error) {
	o, tx, err := l.FindByReference(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if tx.UserID != userID || o.UserID != userID {
		return nil, nil, storage.ErrNotFound
	}
	return o, tx, nil
}

// CommitTerminal reports whether this call moved ref out of pending.
func (l *Ledger) CommitTerminal(ctx context.Context, ref string, status transaction.Status, providerResponse map[string]any, settle storage.SettleFunc) (bool, error) {
	return l.repo.CommitTerminal(ctx, ref, status, providerResponse, settle)
}

func (l *Ledger) Refund(ctx context.Context, ref string) (bool, error) {
	return l.repo.Refund(ctx, ref)
}

func (l *Ledger) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	return l.repo.ListOrdersByUser(ctx, userID)
}

func (l *Ledger) ListPending(ctx context.Context, provider order.Provider, olderThan time.Time, limit int) ([]transaction.Transaction, error) {
	return l.repo.ListPendingTransactions(ctx, provider, olderThan, limit)
}
