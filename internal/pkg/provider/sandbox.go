package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/ManuelReschke/SatsFox/app/models"
)

// Sandbox stands in for a real provider in dev and regtest. Invoices are
// deterministic for a given call sequence and no network is touched.
type Sandbox struct {
	name string

	mu       sync.Mutex
	seq      int
	statuses map[string]*ChargeStatus
}

// PayingSandbox is a Sandbox that also supports outbound payments, matching
// providers that can pay invoices.
type PayingSandbox struct {
	*Sandbox
}

// NewSandbox creates a sandbox reporting name as its provider name.
func NewSandbox(name string) *Sandbox {
	return &Sandbox{name: name, statuses: make(map[string]*ChargeStatus)}
}

func (s *Sandbox) Name() string {
	return s.name
}

func (s *Sandbox) CreateCharge(_ context.Context, amountSats int64, description string, _ map[string]any) (*Charge, error) {
	if amountSats <= 0 {
		return nil, &Error{Provider: s.name, Op: "create charge", StatusCode: 400, Body: "amount must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", s.name, s.seq, amountSats, description)))
	hash := hex.EncodeToString(sum[:])

	// regtest invoice with the amount in nano-BTC (1 sat = 10n)
	data, err := bech32.ConvertBits(sum[:], 8, 5, true)
	if err != nil {
		return nil, &Error{Provider: s.name, Op: "create charge", Err: err}
	}
	invoice, err := bech32.Encode(fmt.Sprintf("lnbcrt%dn", amountSats*10), data)
	if err != nil {
		return nil, &Error{Provider: s.name, Op: "create charge", Err: err}
	}
	s.statuses[hash] = &ChargeStatus{Status: models.PaymentStatusPending, AmountSats: amountSats}

	return &Charge{
		ID:         hash,
		Invoice:    invoice,
		AmountSats: amountSats,
	}, nil
}

func (s *Sandbox) GetCharge(_ context.Context, ref string) (*ChargeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[ref]
	if !ok {
		return nil, &Error{Provider: s.name, Op: "get charge", StatusCode: 404, Body: "charge not found"}
	}
	out := *st
	return &out, nil
}

// DecodeInvoice reads the amount from the invoice prefix. The sandbox does
// not verify checksums or signatures.
func (s *Sandbox) DecodeInvoice(_ context.Context, invoice string) (*DecodedInvoice, error) {
	amount, err := hrpAmountMsat(invoice)
	if err != nil {
		return nil, &Error{Provider: s.name, Op: "decode invoice", StatusCode: 400, Body: err.Error()}
	}
	return &DecodedInvoice{AmountMsat: amount}, nil
}

// SetStatus overrides the reported status of a sandbox charge.
func (s *Sandbox) SetStatus(ref, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[ref]
	if !ok {
		return fmt.Errorf("sandbox charge %s not found", ref)
	}
	st.Status = models.NormalizeStatus(status)
	return nil
}

// MarkPaid simulates the payer settling a sandbox charge.
func (s *Sandbox) MarkPaid(ref string) error {
	return s.SetStatus(ref, models.PaymentStatusPaid)
}

// PayInvoice pretends to pay invoice and returns a deterministic reference.
func (p *PayingSandbox) PayInvoice(_ context.Context, invoice string) (*OutboundPayment, error) {
	invoice = strings.TrimSpace(invoice)
	if invoice == "" {
		return nil, &Error{Provider: p.name, Op: "pay invoice", StatusCode: 400, Body: "empty invoice"}
	}
	sum := sha256.Sum256([]byte("pay:" + invoice))
	return &OutboundPayment{Ref: hex.EncodeToString(sum[:]), Status: models.PaymentStatusPaid}, nil
}

// SandboxOf returns the sandbox behind p, if any.
func SandboxOf(p Provider) (*Sandbox, bool) {
	switch v := p.(type) {
	case *Sandbox:
		return v, true
	case *PayingSandbox:
		return v.Sandbox, true
	default:
		return nil, false
	}
}
