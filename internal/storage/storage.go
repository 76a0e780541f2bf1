package storage

import (
	"context"
	"errors"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/product"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateReference = errors.New("duplicate reference")
)

// ProductRepository is the read side of the catalog.
type ProductRepository interface {
	FindProductByID(ctx context.Context, id string) (*product.Product, error)
}

// StockWriter mutates stock inside a settlement commit. Implementations are
// only handed out by LedgerRepository.CommitTerminal.
type StockWriter interface {
	// MarkInventorySettled flips the order's settlement marker and reports
	// whether this call flipped it.
	MarkInventorySettled(ctx context.Context, orderID string) (bool, error)
	// DecrementStock removes up to qty units and returns how many were removed.
	// Stock never goes below zero.
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
}

// SettleFunc runs inside the same unit of work as a successful terminal
// transition, and only when the calling commit caused the transition.
type SettleFunc func(ctx context.Context, stock StockWriter, o *order.Order) error

// LedgerRepository stores orders and their payment transactions.
type LedgerRepository interface {
	// CreateOrder persists the order and its pending transaction together.
	CreateOrder(ctx context.Context, o *order.Order, tx *transaction.Transaction) error
	FindOrderByReference(ctx context.Context, reference string) (*order.Order, error)
	FindTransactionByReference(ctx context.Context, reference string) (*transaction.Transaction, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error)
	ListPendingTransactions(ctx context.Context, provider order.Provider, olderThan time.Time, limit int) ([]transaction.Transaction, error)
	// CommitTerminal moves a pending transaction and its order to the terminal
	// state. It returns false without error when the transaction is not pending.
	CommitTerminal(ctx context.Context, reference string, status transaction.Status, providerResponse map[string]any, settle SettleFunc) (bool, error)
	// Refund moves a paid order to refunded, reporting whether it did.
	Refund(ctx context.Context, reference string) (bool, error)
}

// Storage combines every repository.
type Storage interface {
	ProductRepository
	LedgerRepository

	Ping(ctx context.Context) error
	Close() error
}
