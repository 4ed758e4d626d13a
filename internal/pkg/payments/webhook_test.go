package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestWebhookReplayUnknownPayment(t *testing.T) {
	f := newFixture(t, statusProvider("PENDING"))

	for i := 0; i < 2; i++ {
		res, err := f.svc.IngestWebhook(context.Background(), WebhookInput{Provider: "lnbits", Ref: "missing"})
		require.NoError(t, err)
		assert.Equal(t, WebhookIgnored, res.Outcome)
		assert.Equal(t, ReasonUnknownPayment, res.Reason)
	}

	_, err := f.repo.GetByProviderRef(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, f.pub.count())
}

func TestWebhookMalformed(t *testing.T) {
	f := newFixture(t, statusProvider("PENDING"))
	_, err := f.svc.IngestWebhook(context.Background(), WebhookInput{Ref: "   "})
	assert.ErrorIs(t, err, ErrMalformedWebhook)
}

func TestWebhookMarksPaidOnce(t *testing.T) {
	p := statusProvider("PENDING")
	f := newFixture(t, p)
	payment := f.seed(t, "hook-1", models.PaymentStatusPending, `{"a":1}`)

	res, err := f.svc.IngestWebhook(context.Background(), WebhookInput{Provider: "lnbits", Ref: "hook-1"})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, res.Outcome)
	assert.Equal(t, payment.ID, res.PaymentID)
	assert.Equal(t, models.PaymentStatusPaid, res.Status)

	res, err = f.svc.IngestWebhook(context.Background(), WebhookInput{Provider: "lnbits", Ref: "hook-1"})
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, res.Outcome)
	assert.Equal(t, ReasonAlreadyPaid, res.Reason)

	paid := f.pub.ofType(events.TypeInvoicePaid)
	require.Len(t, paid, 1)
	assert.Equal(t, events.SourceWebhook, paid[0].Source)
	assert.Zero(t, p.calls(), "webhook delivery is the observed status")
}

func TestWebhookLooksUpByPaymentID(t *testing.T) {
	f := newFixture(t, statusProvider("PENDING"))
	payment := f.seed(t, "hook-2", models.PaymentStatusPending, "")

	res, err := f.svc.IngestWebhook(context.Background(), WebhookInput{Ref: payment.ID, Source: events.SourceRegtest})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, res.Outcome)
	assert.Equal(t, events.SourceRegtest, f.pub.ofType(events.TypeInvoicePaid)[0].Source)
}

func TestWebhookProviderMismatchIgnored(t *testing.T) {
	f := newFixture(t, statusProvider("PENDING"))
	f.seed(t, "hook-3", models.PaymentStatusPending, "")

	res, err := f.svc.IngestWebhook(context.Background(), WebhookInput{Provider: "opennode", Ref: "hook-3"})
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, res.Outcome)
	assert.Equal(t, ReasonProviderMismatch, res.Reason)
	assert.Zero(t, f.pub.count())
}

func TestWebhookNonPaidStatusIgnored(t *testing.T) {
	f := newFixture(t, statusProvider("PENDING"))
	payment := f.seed(t, "hook-4", models.PaymentStatusPending, "")
	ctx := context.Background()

	for _, status := range []string{"expired", "underpaid", "unpaid", "Processing"} {
		res, err := f.svc.IngestWebhook(ctx, WebhookInput{Provider: "lnbits", Ref: "hook-4", Status: status})
		require.NoError(t, err)
		assert.Equal(t, WebhookIgnored, res.Outcome, status)
		assert.Equal(t, ReasonNotPaid, res.Reason, status)
	}
	stored, err := f.repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Zero(t, f.pub.count())

	res, err := f.svc.IngestWebhook(ctx, WebhookInput{Provider: "lnbits", Ref: "hook-4", Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, res.Outcome)
}

func TestVerifyOpenNodeHashedOrder(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("on-key"))
	mac.Write([]byte("ch_1"))
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyOpenNodeHashedOrder("ch_1", valid, "on-key"))
	assert.False(t, VerifyOpenNodeHashedOrder("ch_2", valid, "on-key"))
	assert.False(t, VerifyOpenNodeHashedOrder("ch_1", valid, "other-key"))
	assert.False(t, VerifyOpenNodeHashedOrder("ch_1", "", "on-key"))
	assert.False(t, VerifyOpenNodeHashedOrder("ch_1", "not-hex", "on-key"))
	assert.True(t, VerifyOpenNodeHashedOrder("ch_1", "", ""), "verification disabled without key")
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"payment_hash":"abc"}`)
	secret := "hook-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyWebhookSignature(payload, valid, secret))
	assert.True(t, VerifyWebhookSignature(payload, "sha256="+valid, secret))
	assert.False(t, VerifyWebhookSignature(payload, "deadbeef", secret))
	assert.False(t, VerifyWebhookSignature(payload, "", secret))
	assert.False(t, VerifyWebhookSignature(payload, "zz", secret))
	assert.True(t, VerifyWebhookSignature(payload, "", ""), "verification disabled without secret")
}
