package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
)

// LNbits talks to an LNbits wallet. The invoice key creates and reads
// invoices; the admin key is only needed for outbound payments.
type LNbits struct {
	BaseURL    string
	InvoiceKey string
	AdminKey   string
	WebhookURL string

	HTTPClient *http.Client
}

type lnbitsCreateRequest struct {
	Out     bool           `json:"out"`
	Amount  int64          `json:"amount"`
	Memo    string         `json:"memo"`
	Extra   map[string]any `json:"extra,omitempty"`
	Webhook string         `json:"webhook,omitempty"`
}

type lnbitsCreateResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Bolt11         string `json:"bolt11"`
	CheckingID     string `json:"checking_id"`
}

type lnbitsStatusResponse struct {
	Paid    bool `json:"paid"`
	Details struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"details"`
}

type lnbitsDecodeRequest struct {
	Data string `json:"data"`
}

type lnbitsDecodeResponse struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount_msat"`
}

type lnbitsPayRequest struct {
	Out    bool   `json:"out"`
	Bolt11 string `json:"bolt11"`
}

type lnbitsPayResponse struct {
	PaymentHash string `json:"payment_hash"`
	CheckingID  string `json:"checking_id"`
	Status      string `json:"status"`
}

// NewLNbitsFromEnv reads LNBITS_* settings. Missing values are reported
// when an operation needs them.
func NewLNbitsFromEnv() *LNbits {
	webhook := strings.TrimSpace(env.GetEnv("LNBITS_WEBHOOK_URL", ""))
	if webhook == "" {
		if base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"); base != "" {
			webhook = base + "/api/v1/webhooks/" + models.PaymentProviderLNbits
		}
	}
	return &LNbits{
		BaseURL:    strings.TrimRight(strings.TrimSpace(env.GetEnv("LNBITS_URL", "")), "/"),
		InvoiceKey: strings.TrimSpace(env.GetEnv("LNBITS_API_KEY", "")),
		AdminKey:   strings.TrimSpace(env.GetEnv("LNBITS_ADMIN_KEY", "")),
		WebhookURL: webhook,
		HTTPClient: newHTTPClient(),
	}
}

func (l *LNbits) Name() string {
	return models.PaymentProviderLNbits
}

func (l *LNbits) client() *http.Client {
	if l.HTTPClient == nil {
		l.HTTPClient = newHTTPClient()
	}
	return l.HTTPClient
}

func (l *LNbits) CreateCharge(ctx context.Context, amountSats int64, description string, metadata map[string]any) (*Charge, error) {
	if l.BaseURL == "" || l.InvoiceKey == "" {
		return nil, fmt.Errorf("LNBITS_URL/LNBITS_API_KEY: %w", ErrNotConfigured)
	}

	var out lnbitsCreateResponse
	err := doJSON(ctx, l.client(), l.Name(), "create charge", http.MethodPost, l.BaseURL+"/api/v1/payments",
		map[string]string{"X-Api-Key": l.InvoiceKey},
		lnbitsCreateRequest{Out: false, Amount: amountSats, Memo: description, Extra: metadata, Webhook: l.WebhookURL},
		&out)
	if err != nil {
		return nil, err
	}

	invoice := out.PaymentRequest
	if invoice == "" {
		invoice = out.Bolt11
	}
	if out.PaymentHash == "" || invoice == "" {
		return nil, &Error{Provider: l.Name(), Op: "create charge", Err: fmt.Errorf("response missing payment_hash or invoice")}
	}
	return &Charge{ID: out.PaymentHash, Invoice: invoice, AmountSats: amountSats}, nil
}

func (l *LNbits) GetCharge(ctx context.Context, ref string) (*ChargeStatus, error) {
	if l.BaseURL == "" || l.InvoiceKey == "" {
		return nil, fmt.Errorf("LNBITS_URL/LNBITS_API_KEY: %w", ErrNotConfigured)
	}

	var out lnbitsStatusResponse
	err := doJSON(ctx, l.client(), l.Name(), "get charge", http.MethodGet,
		l.BaseURL+"/api/v1/payments/"+url.PathEscape(ref),
		map[string]string{"X-Api-Key": l.InvoiceKey}, nil, &out)
	if err != nil {
		return nil, err
	}

	status := models.PaymentStatusPending
	if out.Paid {
		status = models.PaymentStatusPaid
	} else if s := models.NormalizeStatus(out.Details.Status); s != "" {
		status = s
	}
	return &ChargeStatus{Status: status, AmountSats: out.Details.Amount / 1000}, nil
}

func (l *LNbits) DecodeInvoice(ctx context.Context, invoice string) (*DecodedInvoice, error) {
	if l.BaseURL == "" || l.InvoiceKey == "" {
		return nil, fmt.Errorf("LNBITS_URL/LNBITS_API_KEY: %w", ErrNotConfigured)
	}

	var out lnbitsDecodeResponse
	err := doJSON(ctx, l.client(), l.Name(), "decode invoice", http.MethodPost, l.BaseURL+"/api/v1/payments/decode",
		map[string]string{"X-Api-Key": l.InvoiceKey},
		lnbitsDecodeRequest{Data: invoice},
		&out)
	if err != nil {
		return nil, err
	}
	return &DecodedInvoice{AmountMsat: out.AmountMsat, PaymentHash: out.PaymentHash}, nil
}

func (l *LNbits) PayInvoice(ctx context.Context, invoice string) (*OutboundPayment, error) {
	if l.BaseURL == "" || l.AdminKey == "" {
		return nil, fmt.Errorf("LNBITS_URL/LNBITS_ADMIN_KEY: %w", ErrNotConfigured)
	}

	var out lnbitsPayResponse
	err := doJSON(ctx, l.client(), l.Name(), "pay invoice", http.MethodPost, l.BaseURL+"/api/v1/payments",
		map[string]string{"X-Api-Key": l.AdminKey},
		lnbitsPayRequest{Out: true, Bolt11: invoice},
		&out)
	if err != nil {
		return nil, err
	}

	ref := out.PaymentHash
	if ref == "" {
		ref = out.CheckingID
	}
	status := models.NormalizeStatus(out.Status)
	if status == "" {
		status = models.PaymentStatusPaid
	}
	return &OutboundPayment{Ref: ref, Status: status}, nil
}
