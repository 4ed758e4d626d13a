// Package payments owns the payment lifecycle: invoice creation and the
// single reconciliation routine through which every status transition and
// every lifecycle event flows.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/metrics"
	"github.com/ManuelReschke/SatsFox/internal/pkg/provider"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ErrStatusCheckFailed marks a provider status query failure in ReconcileResult.Err.
var ErrStatusCheckFailed = errors.New("status check failed")

// ErrChargeFailed wraps provider failures during invoice creation.
var ErrChargeFailed = errors.New("charge failed")

// ErrPaymentNotFound is returned for unknown payments and for payments owned
// by another tenant.
var ErrPaymentNotFound = errors.New("payment not found")

// CreateInvoiceInput describes an invoice to create.
type CreateInvoiceInput struct {
	TenantID    uint           `json:"tenant_id" validate:"required,gt=0"`
	AmountSats  int64          `json:"amount_sats" validate:"required,gt=0,lte=2100000000000000"`
	Description string         `json:"description" validate:"max=639"`
	Action      string         `json:"action" validate:"max=64"`
	ItemID      string         `json:"item_id" validate:"max=191"`
	Metadata    map[string]any `json:"metadata"`
	Source      string         `json:"-"`
}

// ReconcileResult is the outcome of one reconciliation attempt. Err is set
// when the provider could not be queried; the payment is then unchanged.
type ReconcileResult struct {
	Status  string
	Updated bool
	Err     error
}

// Service runs the payment lifecycle against one provider.
type Service struct {
	repo     repository.PaymentRepository
	provider provider.Provider
	hub      events.Publisher
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a payment service.
func NewService(repo repository.PaymentRepository, p provider.Provider, hub events.Publisher) *Service {
	return &Service{
		repo:     repo,
		provider: p,
		hub:      hub,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Provider returns the active provider.
func (s *Service) Provider() provider.Provider {
	return s.provider
}

// CanReconcile reports whether the active provider supports status queries.
func (s *Service) CanReconcile() bool {
	_, ok := provider.QuerierOf(s.provider)
	return ok
}

// CreateInvoice creates a charge with the provider, stores it PENDING and
// broadcasts invoice-created. Validation failures are returned as
// validator.ValidationErrors.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*models.Payment, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Source == "" {
		in.Source = events.SourceAPI
	}

	metadata, err := models.EncodeMetadata(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	charge, err := s.provider.CreateCharge(ctx, in.AmountSats, in.Description, in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChargeFailed, err)
	}

	payment := &models.Payment{
		TenantID:    in.TenantID,
		Provider:    s.provider.Name(),
		ProviderRef: charge.ID,
		Invoice:     charge.Invoice,
		AmountSats:  in.AmountSats,
		Status:      models.PaymentStatusPending,
		Action:      in.Action,
		ItemID:      in.ItemID,
		Metadata:    metadata,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}

	metrics.InvoicesCreated.WithLabelValues(payment.Provider, in.Source).Inc()
	s.hub.Broadcast(s.event(events.TypeInvoiceCreated, payment, "", in.Source, s.now().UnixMilli(), payment.ParsedMetadata()))
	return payment, nil
}

// Reconcile compares the provider's view of payment with the stored status
// and persists and announces any change. It is safe to call concurrently for
// the same payment from any path; at most one caller performs a given
// transition and only that caller emits events.
//
// The returned error reports store failures only.
func (s *Service) Reconcile(ctx context.Context, payment *models.Payment, source string) (ReconcileResult, error) {
	if payment.IsTerminalPaid() {
		return ReconcileResult{Status: payment.Status}, nil
	}

	querier, ok := provider.QuerierOf(s.provider)
	if !ok {
		return ReconcileResult{Status: payment.Status}, nil
	}

	observed, err := querier.GetCharge(ctx, payment.ProviderRef)
	if err != nil {
		metrics.ReconcileErrors.WithLabelValues(source).Inc()
		return ReconcileResult{Status: payment.Status, Err: fmt.Errorf("%w: %w", ErrStatusCheckFailed, err)}, nil
	}

	next := models.NormalizeStatus(observed.Status)
	if next == "" || next == payment.Status {
		return ReconcileResult{Status: payment.Status}, nil
	}

	return s.transition(ctx, payment, next, source)
}

// ReconcileByID loads a payment of tenantID and reconciles it.
func (s *Service) ReconcileByID(ctx context.Context, tenantID uint, id, source string) (*models.Payment, ReconcileResult, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ReconcileResult{}, ErrPaymentNotFound
		}
		return nil, ReconcileResult{}, err
	}
	if payment.TenantID != tenantID {
		return nil, ReconcileResult{}, ErrPaymentNotFound
	}
	res, err := s.Reconcile(ctx, payment, source)
	return payment, res, err
}

// transition persists next if the stored status is still payment.Status. The
// loser of a concurrent transition re-reads the row and emits nothing.
func (s *Service) transition(ctx context.Context, payment *models.Payment, next, source string) (ReconcileResult, error) {
	prev := payment.Status
	won, err := s.repo.UpdateStatusIfCurrent(ctx, payment.ID, prev, next)
	if err != nil {
		return ReconcileResult{Status: prev}, err
	}
	if !won {
		current, err := s.repo.GetByID(ctx, payment.ID)
		if err != nil {
			return ReconcileResult{Status: prev}, err
		}
		*payment = *current
		return ReconcileResult{Status: current.Status}, nil
	}

	payment.Status = next
	s.announce(payment, prev, source)
	log.Infof("[Payments] %s %s -> %s (%s)", payment.ProviderRef, prev, next, source)
	return ReconcileResult{Status: next, Updated: true}, nil
}

// announce emits invoice-status and, for terminal-paid statuses, invoice-paid.
// Both share one timestamp and one parsed metadata value.
func (s *Service) announce(payment *models.Payment, prev, source string) {
	metrics.PaymentTransitions.WithLabelValues(payment.Status, source).Inc()

	ts := s.now().UnixMilli()
	metadata := payment.ParsedMetadata()
	s.hub.Broadcast(s.event(events.TypeInvoiceStatus, payment, prev, source, ts, metadata))
	if payment.IsTerminalPaid() {
		s.hub.Broadcast(s.event(events.TypeInvoicePaid, payment, prev, source, ts, metadata))
	}
}

func (s *Service) event(typ string, p *models.Payment, prev, source string, ts int64, metadata map[string]any) events.PayEvent {
	return events.PayEvent{
		Type:        typ,
		TS:          ts,
		PaymentID:   p.ID,
		TenantID:    p.TenantID,
		ProviderRef: p.ProviderRef,
		AmountSats:  p.AmountSats,
		Status:      p.Status,
		PrevStatus:  prev,
		Action:      p.Action,
		ItemID:      p.ItemID,
		Metadata:    metadata,
		Source:      source,
	}
}
