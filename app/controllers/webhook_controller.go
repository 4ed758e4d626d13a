package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/metrics"
	"github.com/ManuelReschke/SatsFox/internal/pkg/payments"
)

// WebhookController receives provider payment notifications.
type WebhookController struct {
	service     *payments.Service
	events      repository.WebhookEventRepository
	secret      func(provider string) string
	openNodeKey func() string
}

// NewWebhookController creates a webhook controller. Secrets are read from
// <PROVIDER>_WEBHOOK_SECRET; OpenNode's hashed_order is checked against
// OPENNODE_API_KEY.
func NewWebhookController(service *payments.Service, eventRepo repository.WebhookEventRepository) *WebhookController {
	return &WebhookController{
		service: service,
		events:  eventRepo,
		secret: func(provider string) string {
			return env.GetEnv(strings.ToUpper(provider)+"_WEBHOOK_SECRET", "")
		},
		openNodeKey: func() string {
			return env.GetEnv("OPENNODE_API_KEY", "")
		},
	}
}

type webhookPayload struct {
	PaymentHash string `json:"payment_hash"`
	CheckingID  string `json:"checking_id"`
	ID          string `json:"id"`
	Status      string `json:"status"`
	HashedOrder string `json:"hashed_order"`
}

func (p webhookPayload) ref() string {
	for _, v := range []string{p.PaymentHash, p.CheckingID, p.ID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// HandleProviderWebhook records the delivery, dedupes it and hands the payment
// reference to webhook ingestion. Replies are success-shaped unless the
// request is malformed, unsigned or the store fails.
func (wc *WebhookController) HandleProviderWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider != models.PaymentProviderLNbits && provider != models.PaymentProviderOpenNode {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	payload := parseWebhookPayload(c, rawBody)
	ref := payload.ref()

	eventID := firstHeaderValue(c, "X-Webhook-Id", "X-Delivery-Id", "X-Event-Id")
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "body:" + hex.EncodeToString(sum[:])
	}
	signature := firstHeaderValue(c, "X-Webhook-Signature", "X-Signature")
	signatureValid := payments.VerifyWebhookSignature(rawBody, signature, wc.secret(provider))
	if signatureValid && provider == models.PaymentProviderOpenNode {
		signatureValid = payments.VerifyOpenNodeHashedOrder(payload.ID, payload.HashedOrder, wc.openNodeKey())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	created, stored, err := wc.events.CreateIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		PaymentRef:      ref,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to persist %s delivery: %v", provider, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.Succeeded() {
		metrics.WebhooksReceived.WithLabelValues(provider, "duplicate").Inc()
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok":        true,
			"duplicate": true,
			"result":    payments.WebhookResult{Outcome: payments.WebhookIgnored, Reason: payments.ReasonDuplicate},
		})
	}

	if !signatureValid {
		wc.finish(ctx, stored.ID, provider, models.WebhookOutcomeRejected, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	result, err := wc.service.IngestWebhook(ctx, payments.WebhookInput{
		Provider: provider,
		Ref:      ref,
		Status:   payload.Status,
		Source:   events.SourceWebhook,
	})
	if err != nil {
		if errors.Is(err, payments.ErrMalformedWebhook) {
			wc.finish(ctx, stored.ID, provider, models.WebhookOutcomeRejected, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		log.Errorf("[Webhook] %s delivery %s failed: %v", provider, eventID, err)
		wc.finish(ctx, stored.ID, provider, models.WebhookOutcomeFailed, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	wc.finish(ctx, stored.ID, provider, result.Outcome, nil)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "result": result})
}

func (wc *WebhookController) finish(ctx context.Context, id uint, provider, outcome string, cause error) {
	metrics.WebhooksReceived.WithLabelValues(provider, outcome).Inc()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := wc.events.MarkProcessed(ctx, id, outcome, msg); err != nil {
		log.Warnf("[Webhook] Failed to mark event %d processed: %v", id, err)
	}
}

// parseWebhookPayload accepts JSON bodies and, for providers that post forms,
// urlencoded fields.
func parseWebhookPayload(c *fiber.Ctx, rawBody []byte) webhookPayload {
	var payload webhookPayload
	if len(rawBody) > 0 && json.Unmarshal(rawBody, &payload) == nil {
		return payload
	}
	return webhookPayload{
		PaymentHash: c.FormValue("payment_hash"),
		CheckingID:  c.FormValue("checking_id"),
		ID:          c.FormValue("id"),
		Status:      c.FormValue("status"),
		HashedOrder: c.FormValue("hashed_order"),
	}
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
