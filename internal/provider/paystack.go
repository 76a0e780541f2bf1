package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/metrics"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	DefaultTimeout = 10 * time.Second
)

var ErrMissingSecretKey = errors.New("paystack secret key is not configured")

// Error is returned for every failed gateway call. Message never carries the
// secret key.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paystack %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("paystack %s: %s", e.Op, e.Message)
}

type Config struct {
	SecretKey         string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type InitRequest struct {
	Email       string
	Amount      int64
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

type InitResult struct {
	AuthorizationURL string
	AccessCode       string
}

// Transaction is the verified view of a charge as reported by the gateway.
type Transaction struct {
	Reference       string
	Status          string
	Amount          int64
	Currency        string
	Channel         string
	PaidAt          string
	GatewayResponse string
}

// Snapshot is the sanitized subset stored on the ledger transaction.
func (t *Transaction) Snapshot() map[string]any {
	return map[string]any{
		"status":           t.Status,
		"paid_at":          t.PaidAt,
		"channel":          t.Channel,
		"reference":        t.Reference,
		"gateway_response": t.GatewayResponse,
	}
}

type Paystack struct {
	secret  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewPaystack(cfg Config) (*Paystack, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrMissingSecretKey
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &Paystack{
		secret:  cfg.SecretKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Channel         string `json:"channel"`
	PaidAt          string `json:"paid_at"`
	GatewayResponse string `json:"gateway_response"`
}

func (p *Paystack) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	const op = "initialize"
	body, err := json.Marshal(map[string]any{
		"email":        req.Email,
		"amount":       req.Amount,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata":     req.Metadata,
	})
	if err != nil {
		return nil, &Error{Op: op, Message: "encode request: " + err.Error()}
	}

	var data initData
	if err := p.do(ctx, op, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}

	u, err := url.Parse(data.AuthorizationURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{Op: op, Message: "invalid authorization_url in response"}
	}
	return &InitResult{AuthorizationURL: data.AuthorizationURL, AccessCode: data.AccessCode}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*Transaction, error) {
	const op = "verify"
	var data verifyData
	if err := p.do(ctx, op, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	switch {
	case data.Reference != reference:
		return nil, &Error{Op: op, Message: "response reference does not match request"}
	case data.Currency == "":
		return nil, &Error{Op: op, Message: "response is missing currency"}
	case data.Amount < 0:
		return nil, &Error{Op: op, Message: "response carries a negative amount"}
	case data.Status == "":
		return nil, &Error{Op: op, Message: "response is missing status"}
	}
	return &Transaction{
		Reference:       data.Reference,
		Status:          data.Status,
		Amount:          data.Amount,
		Currency:        data.Currency,
		Channel:         data.Channel,
		PaidAt:          data.PaidAt,
		GatewayResponse: data.GatewayResponse,
	}, nil
}

func (p *Paystack) do(ctx context.Context, op, method, path string, body []byte, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		return &Error{Op: op, Message: "rate limiter: " + err.Error()}
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
	if err != nil {
		return &Error{Op: op, Message: "create request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL only, never headers.
		return &Error{Op: op, Message: "do request: " + err.Error()}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "decode body: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "decode data: " + err.Error()}
	}
	return nil
}
