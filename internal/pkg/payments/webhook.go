package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"gorm.io/gorm"
)

// ErrMalformedWebhook is returned when a notification carries no payment identifier.
var ErrMalformedWebhook = errors.New("webhook payload missing payment identifier")

const maxWebhookAttempts = 3

// Webhook outcomes and reasons reported back to the caller.
const (
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"

	ReasonUnknownPayment   = "unknown_payment"
	ReasonAlreadyPaid      = "already_paid"
	ReasonProviderMismatch = "provider_mismatch"
	ReasonNotPaid          = "not_paid"
	ReasonDuplicate        = "duplicate"
)

// Provider-reported statuses that never mean the invoice was settled.
var nonPaidWebhookStatuses = map[string]bool{
	"UNPAID":     true,
	"PENDING":    true,
	"PROCESSING": true,
	"UNDERPAID":  true,
	"EXPIRED":    true,
	"FAILED":     true,
	"CANCELED":   true,
	"CANCELLED":  true,
	"REFUNDED":   true,
}

// WebhookInput is a provider notification reduced to what ingestion needs.
// Status is the provider's status field, if the payload carried one.
type WebhookInput struct {
	Provider string
	Ref      string
	Status   string
	Source   string
}

// WebhookResult is always success-shaped; Outcome says whether a transition
// happened.
type WebhookResult struct {
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// IngestWebhook treats a provider push as an observed PAID status. Unknown
// and already-paid payments are ignored so replays never fail, as are
// deliveries whose status says the invoice is not settled.
func (s *Service) IngestWebhook(ctx context.Context, in WebhookInput) (WebhookResult, error) {
	ref := strings.TrimSpace(in.Ref)
	if ref == "" {
		return WebhookResult{}, ErrMalformedWebhook
	}
	if in.Source == "" {
		in.Source = events.SourceWebhook
	}

	payment, err := s.lookup(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WebhookResult{Outcome: WebhookIgnored, Reason: ReasonUnknownPayment}, nil
		}
		return WebhookResult{}, err
	}
	if in.Provider != "" && !strings.EqualFold(in.Provider, payment.Provider) {
		return WebhookResult{Outcome: WebhookIgnored, Reason: ReasonProviderMismatch, PaymentID: payment.ID, Status: payment.Status}, nil
	}
	if nonPaidWebhookStatuses[models.NormalizeStatus(in.Status)] {
		return WebhookResult{Outcome: WebhookIgnored, Reason: ReasonNotPaid, PaymentID: payment.ID, Status: payment.Status}, nil
	}

	for attempt := 0; attempt < maxWebhookAttempts; attempt++ {
		if payment.IsTerminalPaid() {
			return WebhookResult{Outcome: WebhookIgnored, Reason: ReasonAlreadyPaid, PaymentID: payment.ID, Status: payment.Status}, nil
		}

		res, err := s.transition(ctx, payment, models.PaymentStatusPaid, in.Source)
		if err != nil {
			return WebhookResult{}, err
		}
		if res.Updated {
			return WebhookResult{Outcome: WebhookProcessed, PaymentID: payment.ID, Status: res.Status}, nil
		}
	}

	if payment.IsTerminalPaid() {
		return WebhookResult{Outcome: WebhookIgnored, Reason: ReasonAlreadyPaid, PaymentID: payment.ID, Status: payment.Status}, nil
	}
	return WebhookResult{}, fmt.Errorf("payment %s status kept changing during webhook ingestion", payment.ID)
}

// lookup resolves a webhook identifier as a provider reference first, then as
// a local payment id.
func (s *Service) lookup(ctx context.Context, ref string) (*models.Payment, error) {
	payment, err := s.repo.GetByProviderRef(ctx, ref)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.repo.GetByID(ctx, ref)
}

// VerifyWebhookSignature checks a hex HMAC-SHA256 of payload. An empty secret
// disables verification.
func VerifyWebhookSignature(payload []byte, signatureHeader, secret string) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return true
	}
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")
	if sig == "" {
		return false
	}
	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// VerifyOpenNodeHashedOrder checks OpenNode's hashed_order field, a hex
// HMAC-SHA256 of the charge id keyed with the API key. An empty key disables
// verification.
func VerifyOpenNodeHashedOrder(chargeID, hashedOrder, apiKey string) bool {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return true
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(hashedOrder))
	if err != nil || len(decoded) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(strings.TrimSpace(chargeID)))
	return hmac.Equal(mac.Sum(nil), decoded)
}
