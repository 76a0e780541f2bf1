package transaction

import (
	"time"

	"github.com/antonminaichev/shop-settlement/internal/types/order"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Transaction struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"-"`
	Reference        string         `db:"reference" json:"reference"`
	Amount           int64          `db:"amount" json:"amount"`
	Currency         string         `db:"currency" json:"currency"`
	Status           Status         `db:"status" json:"status"`
	Provider         order.Provider `db:"provider" json:"provider"`
	Meta             map[string]any `db:"meta" json:"meta,omitempty"`
	ProviderResponse map[string]any `db:"provider_response" json:"providerResponse,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}
