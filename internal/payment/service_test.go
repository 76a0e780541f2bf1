package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/events"
	"github.com/antonminaichev/shop-settlement/internal/ledger"
	"github.com/antonminaichev/shop-settlement/internal/provider"
	"github.com/antonminaichev/shop-settlement/internal/storage/memory"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/product"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu          sync.Mutex
	initErr     error
	verifyFn    func(ref string) (*provider.Transaction, error)
	initCalls   int
	verifyCalls int
}

func (g *stubGateway) Initialize(ctx context.Context, req provider.InitRequest) (*provider.InitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &provider.InitResult{AuthorizationURL: "https://checkout.paystack.com/" + req.Reference, AccessCode: "code"}, nil
}

func (g *stubGateway) Verify(ctx context.Context, ref string) (*provider.Transaction, error) {
	g.mu.Lock()
	g.verifyCalls++
	fn := g.verifyFn
	g.mu.Unlock()
	return fn(ref)
}

func (g *stubGateway) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls, g.verifyCalls
}

func charge(status string, amount int64, currency string) func(ref string) (*provider.Transaction, error) {
	return func(ref string) (*provider.Transaction, error) {
		return &provider.Transaction{Reference: ref, Status: status, Amount: amount, Currency: currency, Channel: "card"}, nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memIdempotency struct {
	mu     sync.Mutex
	locks  map[string]bool
	values map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{locks: map[string]bool{}, values: map[string]string{}}
}

func (m *memIdempotency) TryLock(ctx context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[scope+key] {
		return false, nil
	}
	m.locks[scope+key] = true
	return true, nil
}

func (m *memIdempotency) Unlock(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, scope+key)
	return nil
}

func (m *memIdempotency) Remember(ctx context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[scope+key] = value
	return nil
}

func (m *memIdempotency) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[scope+key]
	return v, ok, nil
}

type fixture struct {
	svc   *Service
	store *memory.Storage
	gw    *stubGateway
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.PutProduct(product.Product{ID: "p1", Name: "Tee", Price: 50000, Currency: "NGN", Available: true, Stock: 10})
	store.PutProduct(product.Product{ID: "p2", Name: "Cap", Price: 25000, Currency: "NGN", Available: true, Stock: 5})
	store.PutProduct(product.Product{ID: "p3", Name: "Retired", Price: 1000, Currency: "NGN", Available: false, Stock: 5})

	gw := &stubGateway{verifyFn: charge("success", 150000, "NGN")}
	methods := provider.Registry{
		order.ProviderPaystack:     {Provider: order.ProviderPaystack, Init: gw, Verify: gw},
		order.ProviderBankTransfer: {Provider: order.ProviderBankTransfer, Instructions: "Bank: Test | Account: 0000000000"},
		order.ProviderOpayTransfer: {Provider: order.ProviderOpayTransfer, Instructions: "OPay: 0000000000"},
	}
	pub := &recordingPublisher{}
	svc := NewService(Deps{
		Ledger:    ledger.New(store),
		Catalog:   store,
		Methods:   methods,
		Publisher: pub,
	}, Config{CallbackURL: "https://shop.example.com/payment/callback"})
	return &fixture{svc: svc, store: store, gw: gw, pub: pub}
}

func cartRequest(p order.Provider) CheckoutRequest {
	return CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: "p1", Quantity: 2, Size: "M"},
			{ProductID: "p2", Quantity: 2, Size: "L"},
		},
		Shipping: order.Shipping{
			FullName:     "Ada Obi",
			Email:        "ada@example.com",
			Phone:        "+2348000000000",
			AddressLine1: "1 Marina",
			City:         "Lagos",
			State:        "Lagos",
			Country:      "NG",
		},
		Provider: p,
	}
}

func (f *fixture) checkout(t *testing.T, p order.Provider) *CheckoutResult {
	t.Helper()
	res, err := f.svc.Checkout(context.Background(), "user-1", cartRequest(p), "")
	require.NoError(t, err)
	return res
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.FindProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) state(t *testing.T, ref string) (*order.Order, *transaction.Transaction) {
	t.Helper()
	o, err := f.store.FindOrderByReference(context.Background(), ref)
	require.NoError(t, err)
	tx, err := f.store.FindTransactionByReference(context.Background(), ref)
	require.NoError(t, err)
	return o, tx
}

func TestCheckoutGateway(t *testing.T) {
	f := newFixture(t)
	res := f.checkout(t, order.ProviderPaystack)

	assert.Equal(t, int64(150000), res.Amount)
	assert.Equal(t, "NGN", res.Currency)
	assert.Equal(t, order.ProviderPaystack, res.Provider)
	assert.Equal(t, "https://checkout.paystack.com/"+res.Reference, res.AuthorizationURL)
	assert.Empty(t, res.Instructions)
	assert.True(t, ledger.ValidReference(res.Reference))

	o, tx := f.state(t, res.Reference)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestCheckoutManualProvider(t *testing.T) {
	f := newFixture(t)
	res := f.checkout(t, order.ProviderBankTransfer)

	assert.Equal(t, "Bank: Test | Account: 0000000000", res.Instructions)
	assert.Empty(t, res.AuthorizationURL)
	initCalls, _ := f.gw.calls()
	assert.Zero(t, initCalls)
}

func TestCheckoutValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CheckoutRequest)
		want   error
	}{
		{"empty cart", func(r *CheckoutRequest) { r.Items = nil }, ErrEmptyCart},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }, ErrInvalidQuantity},
		{"missing size", func(r *CheckoutRequest) { r.Items[0].Size = "" }, ErrMissingSize},
		{"unknown provider", func(r *CheckoutRequest) { r.Provider = "crypto" }, ErrInvalidProvider},
		{"missing email", func(r *CheckoutRequest) { r.Shipping.Email = "" }, ErrMissingShipping},
		{"unknown product", func(r *CheckoutRequest) { r.Items[0].ProductID = "nope" }, ErrProductNotFound},
		{"unavailable product", func(r *CheckoutRequest) { r.Items[0].ProductID = "p3" }, ErrProductUnavailable},
		{"insufficient stock", func(r *CheckoutRequest) { r.Items[1].Quantity = 6 }, ErrInsufficientStock},
		{"insufficient across lines", func(r *CheckoutRequest) {
			r.Items = append(r.Items, CheckoutItem{ProductID: "p2", Quantity: 4, Size: "S"})
		}, ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := cartRequest(order.ProviderPaystack)
			tt.mutate(&req)

			_, err := f.svc.Checkout(context.Background(), "user-1", req, "")
			assert.ErrorIs(t, err, tt.want)

			orders, err := f.svc.ListOrders(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestCheckoutInitFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.gw.initErr = &provider.Error{Op: "initialize", StatusCode: 503, Message: "service unavailable"}

	_, err := f.svc.Checkout(context.Background(), "user-1", cartRequest(order.ProviderPaystack), "")
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)

	orders, err := f.svc.ListOrders(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o, tx := f.state(t, orders[0].Reference)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.Equal(t, 10, f.stock(t, "p1"))

	res, err := f.svc.Verify(context.Background(), "user-1", o.Reference)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	idem := newMemIdempotency()
	f.svc.idem = idem
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, "user-1", cartRequest(order.ProviderPaystack), "key-1")
	require.NoError(t, err)
	again, err := f.svc.Checkout(ctx, "user-1", cartRequest(order.ProviderPaystack), "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.Reference, again.Reference)

	orders, err := f.svc.ListOrders(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Locked but not yet remembered: a request is still in flight.
	idem.locks["checkout:user-1"+"key-2"] = true
	_, err = f.svc.Checkout(ctx, "user-1", cartRequest(order.ProviderPaystack), "key-2")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestCheckoutIdempotencyReleasedOnFailure(t *testing.T) {
	f := newFixture(t)
	idem := newMemIdempotency()
	f.svc.idem = idem
	f.gw.initErr = &provider.Error{Op: "initialize", Message: "boom"}

	_, err := f.svc.Checkout(context.Background(), "user-1", cartRequest(order.ProviderPaystack), "key-1")
	require.Error(t, err)
	assert.Empty(t, idem.locks)

	f.gw.initErr = nil
	_, err = f.svc.Checkout(context.Background(), "user-1", cartRequest(order.ProviderPaystack), "key-1")
	assert.NoError(t, err)
}

func TestVerifySuccessSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference

	res, err := f.svc.Verify(context.Background(), "user-1", ref)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
	assert.Equal(t, order.StatusProcessing, res.Order.Status)
	assert.NotNil(t, res.Order.PaidAt)
	assert.Equal(t, 8, f.stock(t, "p1"))
	assert.Equal(t, 3, f.stock(t, "p2"))

	_, tx := f.state(t, ref)
	assert.Equal(t, transaction.StatusSuccess, tx.Status)
	assert.Equal(t, "card", tx.ProviderResponse["channel"])

	res, err = f.svc.Verify(context.Background(), "user-1", ref)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	require.NotNil(t, res)
	assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)

	_, verifyCalls := f.gw.calls()
	assert.Equal(t, 1, verifyCalls)
	assert.Equal(t, 8, f.stock(t, "p1"))
	assert.Equal(t, []string{events.TypeOrderPaid}, f.pub.types())
}

func TestVerifyAmountMismatchFails(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference
	f.gw.verifyFn = charge("success", 140000, "NGN")

	res, err := f.svc.Verify(context.Background(), "user-1", ref)
	require.NoError(t, err)
	assert.False(t, res.Success)

	o, tx := f.state(t, ref)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.Equal(t, true, tx.ProviderResponse["mismatch"])
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, []string{events.TypeOrderPaymentFailed}, f.pub.types())
}

func TestVerifyCurrencyMismatchFails(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference
	f.gw.verifyFn = charge("success", 150000, "USD")

	res, err := f.svc.Verify(context.Background(), "user-1", ref)
	require.NoError(t, err)
	assert.False(t, res.Success)
	o, _ := f.state(t, ref)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
}

func TestVerifyGatewayStatuses(t *testing.T) {
	tests := []struct {
		status    string
		wantTx    transaction.Status
		wantOrder order.PaymentStatus
	}{
		{"ongoing", transaction.StatusPending, order.PaymentPending},
		{"pending", transaction.StatusPending, order.PaymentPending},
		{"abandoned", transaction.StatusFailed, order.PaymentFailed},
		{"failed", transaction.StatusFailed, order.PaymentFailed},
		{"reversed", transaction.StatusFailed, order.PaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t)
			ref := f.checkout(t, order.ProviderPaystack).Reference
			f.gw.verifyFn = charge(tt.status, 150000, "NGN")

			res, err := f.svc.Verify(context.Background(), "user-1", ref)
			require.NoError(t, err)
			assert.False(t, res.Success)

			o, tx := f.state(t, ref)
			assert.Equal(t, tt.wantTx, tx.Status)
			assert.Equal(t, tt.wantOrder, o.PaymentStatus)
		})
	}
}

func TestVerifyTransportErrorLeavesPending(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference
	f.gw.verifyFn = func(string) (*provider.Transaction, error) {
		return nil, &provider.Error{Op: "verify", Message: "do request: timeout"}
	}

	_, err := f.svc.Verify(context.Background(), "user-1", ref)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)

	_, tx := f.state(t, ref)
	assert.Equal(t, transaction.StatusPending, tx.Status)
}

func TestVerifyScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference

	_, err := f.svc.Verify(context.Background(), "user-2", ref)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.Verify(context.Background(), "user-1", "ORDER-garbage")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, verifyCalls := f.gw.calls()
	assert.Zero(t, verifyCalls)
	_, tx := f.state(t, ref)
	assert.Equal(t, transaction.StatusPending, tx.Status)
}

func TestVerifyManualProviderWaits(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderOpayTransfer).Reference

	res, err := f.svc.Verify(context.Background(), "user-1", ref)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, order.PaymentPending, res.Order.PaymentStatus)
	_, verifyCalls := f.gw.calls()
	assert.Zero(t, verifyCalls)
}

func TestVerifyOversoldStillSettles(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference
	f.store.PutProduct(product.Product{ID: "p1", Name: "Tee", Price: 50000, Available: true, Stock: 1})

	res, err := f.svc.Verify(context.Background(), "user-1", ref)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, f.stock(t, "p1"))
	assert.Equal(t, 3, f.stock(t, "p2"))
}

func chargeEvent(ref string, amount int64) provider.Event {
	return provider.Event{
		Name: provider.EventChargeSuccess,
		Data: provider.EventData{Reference: ref, Status: "success", Amount: amount, Currency: "NGN", Channel: "card"},
	}
}

func TestWebhookDeliveredTwice(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference

	out, err := f.svc.HandleChargeEvent(context.Background(), chargeEvent(ref, 150000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, out)

	out, err = f.svc.HandleChargeEvent(context.Background(), chargeEvent(ref, 150000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)

	o, _ := f.state(t, ref)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, 8, f.stock(t, "p1"))
	assert.Len(t, f.pub.types(), 1)
}

func TestWebhookAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference

	out, err := f.svc.HandleChargeEvent(context.Background(), chargeEvent(ref, 140000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, out)

	o, _ := f.state(t, ref)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestWebhookUnknownAndOtherEvents(t *testing.T) {
	f := newFixture(t)
	unknown, err := ledger.NewReference(time.Now())
	require.NoError(t, err)

	_, err = f.svc.HandleChargeEvent(context.Background(), chargeEvent(unknown, 150000))
	assert.ErrorIs(t, err, ErrOrderNotFound)

	ref := f.checkout(t, order.ProviderPaystack).Reference
	out, err := f.svc.HandleChargeEvent(context.Background(), provider.Event{Name: "transfer.success", Data: provider.EventData{Reference: ref}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	_, tx := f.state(t, ref)
	assert.Equal(t, transaction.StatusPending, tx.Status)
}

func TestWebhookSettlesManualTransfer(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderBankTransfer).Reference

	out, err := f.svc.HandleChargeEvent(context.Background(), chargeEvent(ref, 150000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, out)
	o, _ := f.state(t, ref)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
}

func TestConcurrentWebhookAndVerifyCommitOnce(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			out, err := f.svc.HandleChargeEvent(context.Background(), chargeEvent(ref, 150000))
			assert.NoError(t, err)
			if out == OutcomeCommitted {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.Verify(context.Background(), "user-1", ref)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAlreadyProcessed):
				conflicts++
			case err == nil && res.Success:
				committed++
			default:
				t.Errorf("unexpected verify result: %+v, %v", res, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, committed)
	assert.GreaterOrEqual(t, conflicts, n-1)
	assert.Equal(t, 8, f.stock(t, "p1"))
	assert.Equal(t, 3, f.stock(t, "p2"))
	assert.Equal(t, []string{events.TypeOrderPaid}, f.pub.types())
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference

	require.NoError(t, f.svc.Reconcile(context.Background(), ref))
	o, _ := f.state(t, ref)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)

	require.NoError(t, f.svc.Reconcile(context.Background(), ref))
	_, verifyCalls := f.gw.calls()
	assert.Equal(t, 1, verifyCalls)
	assert.Equal(t, 8, f.stock(t, "p1"))
}

func TestListForPolling(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderPaystack).Reference
	f.checkout(t, order.ProviderBankTransfer)

	pending, err := f.svc.ListForPolling(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	pending, err = f.svc.ListForPolling(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ref, pending[0].Reference)
}

func TestAdminConfirmAndRefund(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderBankTransfer).Reference
	ctx := context.Background()

	o, err := f.svc.SetPaymentStatus(ctx, "admin-1", ref, order.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, 8, f.stock(t, "p1"))

	_, err = f.svc.SetPaymentStatus(ctx, "admin-1", ref, order.PaymentPaid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 8, f.stock(t, "p1"))

	o, err = f.svc.SetPaymentStatus(ctx, "admin-1", ref, order.PaymentRefunded)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRefunded, o.PaymentStatus)

	_, err = f.svc.SetPaymentStatus(ctx, "admin-1", ref, order.PaymentRefunded)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.SetPaymentStatus(ctx, "admin-1", ref, order.PaymentStatus("shipped"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetPaymentStatus(ctx, "admin-1", "ORDER-1-0000000000", order.PaymentPaid)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.Equal(t, []string{events.TypeOrderPaid, events.TypeOrderRefunded}, f.pub.types())
}

func TestRefundRequiresPaid(t *testing.T) {
	f := newFixture(t)
	ref := f.checkout(t, order.ProviderBankTransfer).Reference

	_, err := f.svc.Refund(context.Background(), "admin-1", ref)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
