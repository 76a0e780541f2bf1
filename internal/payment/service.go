// Package payment reconciles gateway payments with locally created orders.
// Every path that can settle an order (client verify, webhook, sweeper,
// admin confirmation) funnels into one conditional ledger commit, so an
// order is paid and its stock decremented at most once.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/events"
	"github.com/antonminaichev/shop-settlement/internal/inventory"
	"github.com/antonminaichev/shop-settlement/internal/ledger"
	"github.com/antonminaichev/shop-settlement/internal/logger"
	"github.com/antonminaichev/shop-settlement/internal/metrics"
	"github.com/antonminaichev/shop-settlement/internal/provider"
	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
	"github.com/antonminaichev/shop-settlement/internal/types/product"
	"github.com/antonminaichev/shop-settlement/internal/types/transaction"
)

const (
	channelInit    = "init"
	channelVerify  = "verify"
	channelWebhook = "webhook"
	channelSweeper = "sweeper"
	channelAdmin   = "admin"
)

const publishTimeout = 5 * time.Second

// Gateway statuses that will never turn into a successful charge.
var definitiveFailures = map[string]bool{
	"failed":    true,
	"abandoned": true,
	"reversed":  true,
}

type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNoop      Outcome = "noop"
	OutcomeCommitted Outcome = "committed"
)

type Config struct {
	Currency     string
	CallbackURL  string
	ReconcileAge time.Duration
	PollLimit    int
}

type Deps struct {
	Ledger      Ledger
	Catalog     storage.ProductRepository
	Methods     provider.Registry
	Inventory   *inventory.Reservation
	Publisher   events.Publisher
	Idempotency IdempotencyStore
}

type Service struct {
	ledger    Ledger
	catalog   storage.ProductRepository
	methods   provider.Registry
	inventory *inventory.Reservation
	publisher events.Publisher
	idem      IdempotencyStore
	cfg       Config
	now       func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	if d.Publisher == nil {
		d.Publisher = events.Noop{}
	}
	if d.Inventory == nil {
		d.Inventory = inventory.NewReservation(logger.Log)
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.ReconcileAge <= 0 {
		cfg.ReconcileAge = 15 * time.Minute
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = 100
	}
	return &Service{
		ledger:    d.Ledger,
		catalog:   d.Catalog,
		methods:   d.Methods,
		inventory: d.Inventory,
		publisher: d.Publisher,
		idem:      d.Idempotency,
		cfg:       cfg,
		now:       time.Now,
	}
}

type CheckoutItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type CheckoutRequest struct {
	Items    []CheckoutItem `json:"items"`
	Shipping order.Shipping `json:"shipping"`
	Provider order.Provider `json:"provider"`
}

type CheckoutResult struct {
	Provider         order.Provider `json:"provider"`
	Reference        string         `json:"reference"`
	OrderID          string         `json:"orderId"`
	Amount           int64          `json:"amount"`
	Currency         string         `json:"currency"`
	AuthorizationURL string         `json:"authorizationUrl,omitempty"`
	AccessCode       string         `json:"accessCode,omitempty"`
	Instructions     string         `json:"instructions,omitempty"`
}

type VerifyResult struct {
	Success bool         `json:"success"`
	Order   *order.Order `json:"order"`
}

func (r CheckoutRequest) validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyCart
	}
	for _, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: productId is required", ErrValidation)
		}
		if it.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if strings.TrimSpace(it.Size) == "" {
			return ErrMissingSize
		}
	}
	if !r.Provider.Valid() {
		return ErrInvalidProvider
	}
	sh := r.Shipping
	required := []struct{ name, value string }{
		{"fullName", sh.FullName},
		{"email", sh.Email},
		{"phone", sh.Phone},
		{"addressLine1", sh.AddressLine1},
		{"city", sh.City},
		{"state", sh.State},
		{"country", sh.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingShipping, f.name)
		}
	}
	return nil
}

// Checkout prices the cart, records the order with its pending transaction
// and starts payment with the chosen method. A non-empty idemKey makes the
// call replayable: the first result is returned for repeats of the same key.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest, idemKey string) (*CheckoutResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if idemKey == "" || s.idem == nil {
		return s.checkout(ctx, userID, req)
	}

	scope := "checkout:" + userID
	raw, found, err := s.idem.Recall(ctx, scope, idemKey)
	if err != nil {
		return nil, fmt.Errorf("recall idempotency key: %w", err)
	}
	if found {
		var res CheckoutResult
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("decode remembered result: %w", err)
		}
		return &res, nil
	}
	locked, err := s.idem.TryLock(ctx, scope, idemKey)
	if err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}
	if !locked {
		return nil, ErrDuplicateRequest
	}

	res, err := s.checkout(ctx, userID, req)
	if err != nil {
		if uerr := s.idem.Unlock(context.WithoutCancel(ctx), scope, idemKey); uerr != nil {
			logger.Log.Warn("release idempotency key", "user_id", userID, "error", uerr)
		}
		return nil, err
	}
	if b, err := json.Marshal(res); err == nil {
		if err := s.idem.Remember(ctx, scope, idemKey, string(b)); err != nil {
			logger.Log.Warn("remember checkout result", "reference", res.Reference, "error", err)
		}
	}
	return res, nil
}

func (s *Service) checkout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	method, ok := s.methods.Lookup(req.Provider)
	if !ok {
		return nil, ErrInvalidProvider
	}
	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o, _, err := s.ledger.CreateOrder(ctx, ledger.OrderInput{
		UserID:   userID,
		Items:    items,
		Shipping: req.Shipping,
		Provider: req.Provider,
		Currency: s.cfg.Currency,
	})
	if err != nil {
		return nil, err
	}
	res := &CheckoutResult{
		Provider:  o.PaymentProvider,
		Reference: o.Reference,
		OrderID:   o.ID,
		Amount:    o.TotalAmount,
		Currency:  o.Currency,
	}

	if method.Manual() {
		res.Instructions = method.Instructions
		logger.UserAction(userID, "PAYMENT_INIT", "reference", o.Reference, "provider", o.PaymentProvider, "amount", o.TotalAmount)
		return res, nil
	}

	started, err := method.Init.Initialize(ctx, provider.InitRequest{
		Email:       o.Shipping.Email,
		Amount:      o.TotalAmount,
		Reference:   o.Reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    map[string]any{"orderId": o.ID, "userId": userID},
	})
	if err != nil {
		s.failInit(ctx, o, err)
		return nil, err
	}
	res.AuthorizationURL = started.AuthorizationURL
	res.AccessCode = started.AccessCode
	logger.UserAction(userID, "PAYMENT_INIT", "reference", o.Reference, "provider", o.PaymentProvider, "amount", o.TotalAmount)
	return res, nil
}

// failInit marks a checkout whose gateway initialization failed. The request
// context may already be done, so the commit runs detached from it.
func (s *Service) failInit(ctx context.Context, o *order.Order, cause error) {
	msg := cause.Error()
	var perr *provider.Error
	if errors.As(cause, &perr) {
		msg = perr.Message
	}
	logger.Log.Error("payment initialization failed", "reference", o.Reference, "error", msg)

	snap := map[string]any{"status": "init_failed", "message": msg}
	if _, _, err := s.commit(context.WithoutCancel(ctx), o.Reference, transaction.StatusFailed, snap, channelInit); err != nil {
		logger.Log.Error("mark failed initialization", "reference", o.Reference, "error", err)
	}
}

func (s *Service) priceItems(ctx context.Context, in []CheckoutItem) ([]order.Item, error) {
	products := make(map[string]*product.Product, len(in))
	need := make(map[string]int, len(in))
	items := make([]order.Item, 0, len(in))
	for _, it := range in {
		p, ok := products[it.ProductID]
		if !ok {
			found, err := s.catalog.FindProductByID(ctx, it.ProductID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
			}
			if err != nil {
				return nil, fmt.Errorf("find product %s: %w", it.ProductID, err)
			}
			p = found
			products[it.ProductID] = p
		}
		if !p.Available {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, p.Name)
		}
		need[p.ID] += it.Quantity
		if p.Stock < need[p.ID] {
			return nil, fmt.Errorf("%w for %s", ErrInsufficientStock, p.Name)
		}
		items = append(items, order.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
			Size:      it.Size,
		})
	}
	return items, nil
}

// Verify settles ref on the customer's request by asking the gateway. It
// returns ErrAlreadyProcessed, together with the current order, when the
// transaction is already successful or another channel settled it first.
func (s *Service) Verify(ctx context.Context, userID, ref string) (*VerifyResult, error) {
	if !ledger.ValidReference(ref) {
		return nil, ErrOrderNotFound
	}
	o, tx, err := s.ledger.FindByReferenceForUser(ctx, ref, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	switch tx.Status {
	case transaction.StatusSuccess:
		return &VerifyResult{Order: o}, ErrAlreadyProcessed
	case transaction.StatusFailed:
		return &VerifyResult{Order: o}, nil
	}

	method, ok := s.methods.Lookup(o.PaymentProvider)
	if !ok || method.Verify == nil {
		// Manual transfers wait for a webhook or an admin.
		return &VerifyResult{Order: o}, nil
	}
	pt, err := method.Verify.Verify(ctx, ref)
	if err != nil {
		logger.Log.Error("gateway verify failed", "reference", ref, "error", err)
		return nil, err
	}

	settled, status, transitioned, err := s.applyVerified(ctx, tx, pt, channelVerify)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return &VerifyResult{Order: o}, nil
	}
	if !transitioned {
		return &VerifyResult{Order: settled}, ErrAlreadyProcessed
	}
	return &VerifyResult{Success: status == transaction.StatusSuccess, Order: settled}, nil
}

// HandleChargeEvent settles the order named by an authenticated webhook
// event. Unknown references yield ErrOrderNotFound; repeats are no-ops.
func (s *Service) HandleChargeEvent(ctx context.Context, ev provider.Event) (Outcome, error) {
	if ev.Name != provider.EventChargeSuccess {
		return OutcomeIgnored, nil
	}
	ref := ev.Data.Reference
	if !ledger.ValidReference(ref) {
		return OutcomeIgnored, ErrOrderNotFound
	}
	_, tx, err := s.ledger.FindByReference(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return OutcomeIgnored, ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	if tx.Status.Terminal() {
		metrics.SettlementNoops.WithLabelValues(channelWebhook).Inc()
		return OutcomeNoop, nil
	}

	pt := &provider.Transaction{
		Reference: ev.Data.Reference,
		Status:    ev.Data.Status,
		Amount:    ev.Data.Amount,
		Currency:  ev.Data.Currency,
		Channel:   ev.Data.Channel,
		PaidAt:    ev.Data.PaidAt,
	}
	_, status, transitioned, err := s.applyVerified(ctx, tx, pt, channelWebhook)
	switch {
	case err != nil:
		return "", err
	case status == "":
		return OutcomeIgnored, nil
	case !transitioned:
		return OutcomeNoop, nil
	}
	return OutcomeCommitted, nil
}

// Reconcile re-verifies a pending gateway transaction without a user scope.
// Already terminal transactions are left alone.
func (s *Service) Reconcile(ctx context.Context, ref string) error {
	o, tx, err := s.ledger.FindByReference(ctx, ref)
	if err != nil {
		return err
	}
	if tx.Status.Terminal() {
		return nil
	}
	method, ok := s.methods.Lookup(o.PaymentProvider)
	if !ok || method.Verify == nil {
		return nil
	}
	pt, err := method.Verify.Verify(ctx, ref)
	if err != nil {
		return err
	}
	_, _, _, err = s.applyVerified(ctx, tx, pt, channelSweeper)
	return err
}

// applyVerified maps a gateway view of the charge onto a terminal status and
// commits it. An empty status means the charge is still in flight.
func (s *Service) applyVerified(ctx context.Context, tx *transaction.Transaction, pt *provider.Transaction, channel string) (*order.Order, transaction.Status, bool, error) {
	snap := pt.Snapshot()
	var status transaction.Status
	switch {
	case pt.Amount != tx.Amount || !strings.EqualFold(pt.Currency, tx.Currency):
		logger.SecurityEvent("PAYMENT_AMOUNT_MISMATCH",
			"reference", tx.Reference,
			"channel", channel,
			"expected_amount", tx.Amount,
			"paid_amount", pt.Amount,
			"expected_currency", tx.Currency,
			"paid_currency", pt.Currency,
		)
		snap["mismatch"] = true
		status = transaction.StatusFailed
	case pt.Status == "success":
		status = transaction.StatusSuccess
	case definitiveFailures[pt.Status]:
		status = transaction.StatusFailed
	default:
		return nil, "", false, nil
	}

	o, transitioned, err := s.commit(ctx, tx.Reference, status, snap, channel)
	if err != nil {
		return nil, status, false, err
	}
	return o, status, transitioned, nil
}

// commit is the only place terminal transitions are requested. Stock is
// settled inside the ledger commit; metrics, logs and events follow only
// when this call caused the transition.
func (s *Service) commit(ctx context.Context, ref string, status transaction.Status, snapshot map[string]any, channel string) (*order.Order, bool, error) {
	var settle storage.SettleFunc
	var settled inventory.Result
	if status == transaction.StatusSuccess {
		settle = s.inventory.SettleFunc(func(r inventory.Result) { settled = r })
	}

	transitioned, err := s.ledger.CommitTerminal(ctx, ref, status, snapshot, settle)
	if err != nil {
		return nil, false, fmt.Errorf("commit %s: %w", ref, err)
	}
	if !transitioned {
		metrics.SettlementNoops.WithLabelValues(channel).Inc()
	} else {
		metrics.SettlementCommits.WithLabelValues(channel, string(status)).Inc()
	}

	o, _, err := s.ledger.FindByReference(ctx, ref)
	if err != nil {
		return nil, transitioned, fmt.Errorf("reload %s: %w", ref, err)
	}
	if !transitioned {
		return o, false, nil
	}

	action, evType := "PAYMENT_FAILED", events.TypeOrderPaymentFailed
	if status == transaction.StatusSuccess {
		action, evType = "PAYMENT_SUCCESS", events.TypeOrderPaid
	}
	logger.UserAction(o.UserID, action,
		"reference", ref,
		"channel", channel,
		"amount", o.TotalAmount,
		"oversold", settled.Oversold,
	)
	s.publish(ctx, evType, o, channel)
	return o, true, nil
}

// ConfirmManual lets an admin mark a pending order paid, typically after a
// bank or OPay transfer was checked by hand.
func (s *Service) ConfirmManual(ctx context.Context, adminID, ref string) (*order.Order, error) {
	_, tx, err := s.ledger.FindByReference(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.Status != transaction.StatusPending {
		return nil, ErrInvalidTransition
	}
	snap := map[string]any{"status": "success", "channel": "manual", "confirmed_by": adminID}
	o, transitioned, err := s.commit(ctx, ref, transaction.StatusSuccess, snap, channelAdmin)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, ErrInvalidTransition
	}
	logger.AdminAction(adminID, "CONFIRM_PAYMENT", "reference", ref)
	return o, nil
}

func (s *Service) Refund(ctx context.Context, adminID, ref string) (*order.Order, error) {
	if _, _, err := s.ledger.FindByReference(ctx, ref); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	ok, err := s.ledger.Refund(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("refund %s: %w", ref, err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	metrics.SettlementCommits.WithLabelValues(channelAdmin, "refunded").Inc()

	o, _, err := s.ledger.FindByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", ref, err)
	}
	logger.AdminAction(adminID, "REFUND_PAYMENT", "reference", ref, "amount", o.TotalAmount)
	s.publish(ctx, events.TypeOrderRefunded, o, channelAdmin)
	return o, nil
}

// SetPaymentStatus is the admin entry point: paid confirms a pending order,
// refunded reverses a paid one.
func (s *Service) SetPaymentStatus(ctx context.Context, adminID, ref string, status order.PaymentStatus) (*order.Order, error) {
	switch status {
	case order.PaymentPaid:
		return s.ConfirmManual(ctx, adminID, ref)
	case order.PaymentRefunded:
		return s.Refund(ctx, adminID, ref)
	}
	return nil, ErrInvalidStatus
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	return s.ledger.ListOrders(ctx, userID)
}

// ListForPolling returns gateway transactions that stayed pending longer
// than the reconcile age.
func (s *Service) ListForPolling(ctx context.Context) ([]transaction.Transaction, error) {
	return s.ledger.ListPending(ctx, order.ProviderPaystack, s.now().UTC().Add(-s.cfg.ReconcileAge), s.cfg.PollLimit)
}

func (s *Service) publish(ctx context.Context, typ string, o *order.Order, channel string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, events.Event{
		Type:       typ,
		Reference:  o.Reference,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Amount:     o.TotalAmount,
		Currency:   o.Currency,
		Provider:   string(o.PaymentProvider),
		Channel:    channel,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		logger.Log.Warn("publish settlement event", "type", typ, "reference", o.Reference, "error", err)
	}
}
