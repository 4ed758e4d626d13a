package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/middleware"
	"github.com/ManuelReschke/SatsFox/internal/pkg/payments"
	"github.com/ManuelReschke/SatsFox/internal/pkg/provider"
)

// RegtestController simulates provider-side payments against the sandbox.
// It is only mounted in dev and regtest.
type RegtestController struct {
	service *payments.Service
	repo    repository.PaymentRepository
}

// NewRegtestController creates a regtest controller.
func NewRegtestController(service *payments.Service, repo repository.PaymentRepository) *RegtestController {
	return &RegtestController{service: service, repo: repo}
}

// HandlePayInvoice marks the sandbox charge paid and delivers it through the
// webhook ingestion path.
func (rc *RegtestController) HandlePayInvoice(c *fiber.Ctx) error {
	tenant, ok := middleware.TenantFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}
	sandbox, ok := provider.SandboxOf(rc.service.Provider())
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sandbox_disabled", "message": "Active provider is not a sandbox"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	payment, err := rc.repo.GetByID(ctx, c.Params("id"))
	if err != nil || payment.TenantID != tenant.ID {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "invoice not found"})
	}

	if err := sandbox.MarkPaid(payment.ProviderRef); err != nil {
		log.Warnf("[Regtest] Sandbox does not know %s: %v", payment.ProviderRef, err)
	}

	result, err := rc.service.IngestWebhook(ctx, payments.WebhookInput{
		Provider: payment.Provider,
		Ref:      payment.ProviderRef,
		Source:   events.SourceRegtest,
	})
	if err != nil {
		log.Errorf("[Regtest] Ingest failed for %s: %v", payment.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"ok": true, "result": result})
}
