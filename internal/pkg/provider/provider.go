// Package provider adapts external Lightning payment services behind a small
// capability set. Every provider creates charges; status queries, invoice
// decoding and outbound payments are optional and detected with type
// assertions.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when credentials for the active provider are missing.
	ErrNotConfigured = errors.New("payment provider not configured")
	// ErrUnknownProvider is returned for an unrecognized PAYMENT_PROVIDER value.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// Charge is a freshly created invoice.
type Charge struct {
	ID         string
	Invoice    string
	AmountSats int64
}

// ChargeStatus is the provider's current view of a charge. Status is
// uppercase-normalized.
type ChargeStatus struct {
	Status     string
	AmountSats int64
}

// OutboundPayment is the result of paying an invoice from the service wallet.
type OutboundPayment struct {
	Ref    string
	Status string
}

// DecodedInvoice is the part of a BOLT11 invoice the service acts on.
// AmountMsat is zero for amountless invoices.
type DecodedInvoice struct {
	AmountMsat  int64
	PaymentHash string
}

// Provider creates Lightning charges.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, amountSats int64, description string, metadata map[string]any) (*Charge, error)
}

// StatusQuerier is implemented by providers that can report a charge's status.
type StatusQuerier interface {
	GetCharge(ctx context.Context, ref string) (*ChargeStatus, error)
}

// OutboundPayer is implemented by providers that can pay invoices.
type OutboundPayer interface {
	PayInvoice(ctx context.Context, invoice string) (*OutboundPayment, error)
}

// InvoiceDecoder is implemented by providers that can decode invoices.
type InvoiceDecoder interface {
	DecodeInvoice(ctx context.Context, invoice string) (*DecodedInvoice, error)
}

// QuerierOf returns p as a StatusQuerier when it supports status queries.
func QuerierOf(p Provider) (StatusQuerier, bool) {
	q, ok := p.(StatusQuerier)
	return q, ok
}

// PayerOf returns p as an OutboundPayer when it supports outbound payments.
func PayerOf(p Provider) (OutboundPayer, bool) {
	op, ok := p.(OutboundPayer)
	return op, ok
}

// DecoderOf returns p as an InvoiceDecoder when it can decode invoices.
func DecoderOf(p Provider) (InvoiceDecoder, bool) {
	d, ok := p.(InvoiceDecoder)
	return d, ok
}

// Error is a failed provider call. StatusCode is zero for transport failures.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed: status=%d body=%s", e.Provider, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
