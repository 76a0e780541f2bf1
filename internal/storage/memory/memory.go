// Package memory keeps the ledger and catalog in process memory. It honours
// the same atomicity contract as the Postgres store by running every commit
// under one mutex.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/product"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"
)

type Storage struct {
	mu           sync.RWMutex
	products     map[string]*product.Product
	orders       map[string]*order.Order // by reference
	transactions map[string]*transaction.Transaction
}

func New() *Storage {
	return &Storage{
		products:     make(map[string]*product.Product),
		orders:       make(map[string]*order.Order),
		transactions: make(map[string]*transaction.Transaction),
	}
}

func (s *Storage) Ping(ctx context.Context) error { return nil }
func (s *Storage) Close() error                   { return nil }

// PutProduct inserts or replaces a catalog entry.
func (s *Storage) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *Storage) FindProductByID(ctx context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Storage) CreateOrder(ctx context.Context, o *order.Order, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.Reference]; ok {
		return storage.ErrDuplicateReference
	}
	if _, ok := s.transactions[t.Reference]; ok {
		return storage.ErrDuplicateReference
	}
	s.orders[o.Reference] = cloneOrder(o)
	s.transactions[t.Reference] = cloneTransaction(t)
	return nil
}

func (s *Storage) FindOrderByReference(ctx context.Context, reference string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[reference]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Storage) FindTransactionByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[reference]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (s *Storage) ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Storage) ListPendingTransactions(ctx context.Context, provider order.Provider, olderThan time.Time, limit int) ([]transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []transaction.Transaction
	for _, t := range s.transactions {
		if t.Status == transaction.StatusPending && t.Provider == provider && t.CreatedAt.Before(olderThan) {
			out = append(out, *cloneTransaction(t))
		}
	}
	slices.SortFunc(out, func(a, b transaction.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) CommitTerminal(ctx context.Context, reference string, status transaction.Status, providerResponse map[string]any, settle storage.SettleFunc) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("commit terminal: %q is not a terminal status", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[reference]
	if !ok || t.Status != transaction.StatusPending {
		return false, nil
	}
	o, ok := s.orders[reference]
	if !ok || o.PaymentStatus != order.PaymentPending {
		return false, fmt.Errorf("commit terminal %s: order is not pending while its transaction is", reference)
	}

	// Work on copies so a failing settle leaves nothing behind.
	nextTx := cloneTransaction(t)
	nextOrder := cloneOrder(o)
	now := time.Now().UTC()
	nextTx.Status = status
	nextTx.ProviderResponse = maps.Clone(providerResponse)
	nextTx.UpdatedAt = now
	nextOrder.UpdatedAt = now
	if status == transaction.StatusSuccess {
		nextOrder.PaymentStatus = order.PaymentPaid
		nextOrder.Status = order.StatusProcessing
		nextOrder.PaidAt = &now
	} else {
		nextOrder.PaymentStatus = order.PaymentFailed
	}

	stock := &stockWriter{s: s, order: nextOrder, pending: map[string]int{}}
	if settle != nil && status == transaction.StatusSuccess {
		if err := settle(ctx, stock, cloneOrder(nextOrder)); err != nil {
			return false, fmt.Errorf("settle: %w", err)
		}
	}

	for id, qty := range stock.pending {
		s.products[id].Stock -= qty
	}
	s.transactions[reference] = nextTx
	s.orders[reference] = nextOrder
	return true, nil
}

func (s *Storage) Refund(ctx context.Context, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[reference]
	if !ok || o.PaymentStatus != order.PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = order.PaymentRefunded
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

// stockWriter buffers decrements until the commit is applied. Callers already
// hold s.mu.
type stockWriter struct {
	s       *Storage
	order   *order.Order
	pending map[string]int
}

func (w *stockWriter) MarkInventorySettled(ctx context.Context, orderID string) (bool, error) {
	if w.order.ID != orderID || w.order.InventorySettled {
		return false, nil
	}
	w.order.InventorySettled = true
	return true, nil
}

func (w *stockWriter) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	p, ok := w.s.products[productID]
	if !ok {
		return 0, nil
	}
	take := min(qty, p.Stock-w.pending[productID])
	if take <= 0 {
		return 0, nil
	}
	w.pending[productID] += take
	return take, nil
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}

func cloneTransaction(t *transaction.Transaction) *transaction.Transaction {
	cp := *t
	cp.Meta = maps.Clone(t.Meta)
	cp.ProviderResponse = maps.Clone(t.ProviderResponse)
	return &cp
}
