package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Payment status values. Providers may report other statuses; they are stored
// uppercase-normalized as received.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusSettled   = "SETTLED"
	PaymentStatusConfirmed = "CONFIRMED"
	PaymentStatusExpired   = "EXPIRED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCanceled  = "CANCELED"
)

// Provider names stored on payments.
const (
	PaymentProviderLNbits   = "lnbits"
	PaymentProviderOpenNode = "opennode"
)

var terminalPaidStatuses = []string{
	PaymentStatusPaid,
	PaymentStatusCompleted,
	PaymentStatusSettled,
	PaymentStatusConfirmed,
}

// Payment is the durable record of a single invoice. Rows are never deleted.
type Payment struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index" json:"tenant_id"`
	Provider    string    `gorm:"type:varchar(20);not null;index:ux_payments_provider_ref,unique,priority:1" json:"provider"`
	ProviderRef string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_ref,unique,priority:2;index" json:"provider_ref"`
	Invoice     string    `gorm:"type:text;not null" json:"invoice"`
	AmountSats  int64     `gorm:"not null" json:"amount_sats"`
	Status      string    `gorm:"type:varchar(32);not null;default:'PENDING';index:idx_payments_status_updated,priority:1" json:"status"`
	Action      string    `gorm:"type:varchar(64);default:''" json:"action"`
	ItemID      string    `gorm:"type:varchar(191);default:''" json:"item_id"`
	Metadata    string    `gorm:"type:text" json:"-"`
	CheckedAt   time.Time `gorm:"index" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;index:idx_payments_status_updated,priority:2" json:"updated_at"`
}

// NormalizeStatus trims and uppercases a provider-reported status.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// IsTerminalPaid reports whether status belongs to the terminal-paid set.
func IsTerminalPaid(status string) bool {
	switch NormalizeStatus(status) {
	case PaymentStatusPaid, PaymentStatusCompleted, PaymentStatusSettled, PaymentStatusConfirmed:
		return true
	default:
		return false
	}
}

// IsResolved reports whether a payment no longer needs background reconciliation.
func IsResolved(status string) bool {
	if IsTerminalPaid(status) {
		return true
	}
	switch NormalizeStatus(status) {
	case PaymentStatusExpired, PaymentStatusFailed, PaymentStatusCanceled:
		return true
	default:
		return false
	}
}

// TerminalPaidStatuses returns a copy of the terminal-paid set.
func TerminalPaidStatuses() []string {
	out := make([]string, len(terminalPaidStatuses))
	copy(out, terminalPaidStatuses)
	return out
}

// ResolvedStatuses returns every status excluded from reconciliation sweeps.
func ResolvedStatuses() []string {
	return append(TerminalPaidStatuses(), PaymentStatusExpired, PaymentStatusFailed, PaymentStatusCanceled)
}

// IsTerminalPaid reports whether the payment is already paid.
func (p *Payment) IsTerminalPaid() bool {
	return IsTerminalPaid(p.Status)
}

// ParsedMetadata decodes the stored metadata blob. A missing or malformed
// blob yields nil.
func (p *Payment) ParsedMetadata() map[string]any {
	raw := strings.TrimSpace(p.Metadata)
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// EncodeMetadata serializes metadata for storage. Nil or empty maps are
// stored as an empty string.
func EncodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
