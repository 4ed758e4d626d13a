package events

import "time"

// Event types.
const (
	TypeInvoiceCreated = "invoice-created"
	TypeInvoiceStatus  = "invoice-status"
	TypeInvoicePaid    = "invoice-paid"
)

// Sources tag which path observed a change.
const (
	SourcePoll       = "poll"
	SourceReconciler = "reconciler"
	SourceWebhook    = "webhook"
	SourceLnurl      = "lnurl"
	SourceRegtest    = "regtest"
	SourceAPI        = "api"
)

// PayEvent is a payment lifecycle notification. Events are values; listeners
// receive their own copy and the Metadata map must be treated as read-only.
type PayEvent struct {
	Type        string         `json:"type"`
	TS          int64          `json:"ts"`
	PaymentID   string         `json:"paymentId"`
	TenantID    uint           `json:"tenantId"`
	ProviderRef string         `json:"providerRef"`
	AmountSats  int64          `json:"amountSats"`
	Status      string         `json:"status,omitempty"`
	PrevStatus  string         `json:"prevStatus,omitempty"`
	Action      string         `json:"action,omitempty"`
	ItemID      string         `json:"itemId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Source      string         `json:"source"`
}

// Time returns the event timestamp.
func (e PayEvent) Time() time.Time {
	return time.UnixMilli(e.TS)
}
