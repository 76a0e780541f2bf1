package order

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// CanTransitionTo reports whether the payment status may move to next.
// pending -> paid|failed, paid -> refunded; everything else is rejected.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentFailed
	case PaymentPaid:
		return next == PaymentRefunded
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type Provider string

const (
	ProviderPaystack     Provider = "paystack"
	ProviderBankTransfer Provider = "bank_transfer"
	ProviderOpayTransfer Provider = "opay_transfer"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderPaystack, ProviderBankTransfer, ProviderOpayTransfer:
		return true
	}
	return false
}

type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type Shipping struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode,omitempty"`
	Country      string `json:"country"`
}

type Order struct {
	ID               string        `db:"id" json:"orderId"`
	UserID           string        `db:"user_id" json:"user"`
	Items            []Item        `db:"items" json:"items"`
	TotalAmount      int64         `db:"total_amount" json:"totalAmount"`
	Currency         string        `db:"currency" json:"currency"`
	Shipping         Shipping      `db:"shipping" json:"shipping"`
	PaymentProvider  Provider      `db:"payment_provider" json:"paymentProvider"`
	PaymentStatus    PaymentStatus `db:"payment_status" json:"paymentStatus"`
	Status           Status        `db:"status" json:"status"`
	Reference        string        `db:"reference" json:"reference"`
	InventorySettled bool          `db:"inventory_settled" json:"-"`
	PaidAt           *time.Time    `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updatedAt"`
}

// Total sums price*quantity over the items.
func Total(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}
