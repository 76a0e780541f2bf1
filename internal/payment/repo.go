package payment

import (
	"context"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/ledger"
	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"
)

// Ledger is the settlement record the engine drives. *ledger.Ledger
// implements it.
type Ledger interface {
	CreateOrder(ctx context.Context, in ledger.OrderInput) (*order.Order, *transaction.Transaction, error)
	FindByReference(ctx context.Context, ref string) (*order.Order, *transaction.Transaction, error)
	FindByReferenceForUser(ctx context.Context, ref, userID string) (*order.Order, *transaction.Transaction, error)
	CommitTerminal(ctx context.Context, ref string, status transaction.Status, providerResponse map[string]any, settle storage.SettleFunc) (bool, error)
	Refund(ctx context.Context, ref string) (bool, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
	ListPending(ctx context.Context, provider order.Provider, olderThan time.Time, limit int) ([]transaction.Transaction, error)
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}
