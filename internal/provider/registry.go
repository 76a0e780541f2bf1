package provider

import (
	"context"

	"github.com/antonminaichev/shop-settlement/internal/types/order"
)

type Initializer interface {
	Initialize(ctx context.Context, req InitRequest) (*InitResult, error)
}

type Verifier interface {
	Verify(ctx context.Context, reference string) (*Transaction, error)
}

// Method describes what a payment method can do. Gateway methods carry Init
// and Verify; manual transfers only carry customer instructions and are
// settled by webhook or admin confirmation.
type Method struct {
	Provider     order.Provider
	Init         Initializer
	Verify       Verifier
	Instructions string
}

func (m Method) Manual() bool { return m.Init == nil }

type Registry map[order.Provider]Method

// NewRegistry wires the gateway and the two manual transfer methods.
func NewRegistry(gateway *Paystack, bankInstructions, opayInstructions string) Registry {
	r := Registry{
		order.ProviderBankTransfer: {Provider: order.ProviderBankTransfer, Instructions: bankInstructions},
		order.ProviderOpayTransfer: {Provider: order.ProviderOpayTransfer, Instructions: opayInstructions},
	}
	if gateway != nil {
		r[order.ProviderPaystack] = Method{Provider: order.ProviderPaystack, Init: gateway, Verify: gateway}
	}
	return r
}

func (r Registry) Lookup(p order.Provider) (Method, bool) {
	m, ok := r[p]
	return m, ok
}
