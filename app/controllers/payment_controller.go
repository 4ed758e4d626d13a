package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/middleware"
	"github.com/ManuelReschke/SatsFox/internal/pkg/payments"
)

// pollTimeout bounds a single poll; a slow provider leaves the status as is.
const pollTimeout = 20 * time.Second

// PaymentController serves the tenant invoice API.
type PaymentController struct {
	service *payments.Service
}

// NewPaymentController creates a payment controller.
func NewPaymentController(service *payments.Service) *PaymentController {
	return &PaymentController{service: service}
}

type createInvoiceRequest struct {
	AmountSats  int64          `json:"amount_sats"`
	Description string         `json:"description"`
	Action      string         `json:"action"`
	ItemID      string         `json:"item_id"`
	Metadata    map[string]any `json:"metadata"`
}

type invoiceResponse struct {
	ID          string         `json:"id"`
	TenantID    uint           `json:"tenant_id"`
	Provider    string         `json:"provider"`
	ProviderRef string         `json:"provider_ref"`
	Invoice     string         `json:"invoice"`
	AmountSats  int64          `json:"amount_sats"`
	Status      string         `json:"status"`
	Paid        bool           `json:"paid"`
	Action      string         `json:"action,omitempty"`
	ItemID      string         `json:"item_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

func newInvoiceResponse(p *models.Payment) invoiceResponse {
	return invoiceResponse{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Provider:    p.Provider,
		ProviderRef: p.ProviderRef,
		Invoice:     p.Invoice,
		AmountSats:  p.AmountSats,
		Status:      p.Status,
		Paid:        p.IsTerminalPaid(),
		Action:      p.Action,
		ItemID:      p.ItemID,
		Metadata:    p.ParsedMetadata(),
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleCreateInvoice creates an invoice for the authenticated tenant.
func (pc *PaymentController) HandleCreateInvoice(c *fiber.Ctx) error {
	tenant, ok := middleware.TenantFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req createInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), pollTimeout)
	defer cancel()

	payment, err := pc.service.CreateInvoice(ctx, payments.CreateInvoiceInput{
		TenantID:    tenant.ID,
		AmountSats:  req.AmountSats,
		Description: req.Description,
		Action:      req.Action,
		ItemID:      req.ItemID,
		Metadata:    req.Metadata,
		Source:      events.SourceAPI,
	})
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "fields": validationFields(verrs)})
		case errors.Is(err, payments.ErrChargeFailed):
			log.Errorf("[PaymentAPI] Charge creation failed for tenant %d: %v", tenant.ID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "charge_failed", "message": "Payment provider unavailable"})
		default:
			log.Errorf("[PaymentAPI] Create invoice failed for tenant %d: %v", tenant.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Invoice could not be created"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(newInvoiceResponse(payment))
}

// HandleInvoiceStatus reconciles one invoice with the provider and returns the
// resulting status. Provider failures report the stored status.
func (pc *PaymentController) HandleInvoiceStatus(c *fiber.Ctx) error {
	tenant, ok := middleware.TenantFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), pollTimeout)
	defer cancel()

	payment, res, err := pc.service.ReconcileByID(ctx, tenant.ID, c.Params("id"), events.SourcePoll)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "invoice not found"})
		}
		log.Errorf("[PaymentAPI] Reconcile failed for %s: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	resp := newInvoiceResponse(payment)
	return c.JSON(fiber.Map{
		"invoice":      resp,
		"status":       res.Status,
		"paid":         models.IsTerminalPaid(res.Status),
		"updated":      res.Updated,
		"check_failed": res.Err != nil,
	})
}

func validationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
