package lnurl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/database"
	"github.com/ManuelReschke/SatsFox/internal/pkg/lock"
	"github.com/ManuelReschke/SatsFox/internal/pkg/provider"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 200n = 20000 msat, inside the offers created by createOffer
const testInvoice = "lnbcrt200n1pwithdrawtestinvoice"

type payingProvider struct {
	PayInvoiceFunc    func(ctx context.Context, invoice string) (*provider.OutboundPayment, error)
	DecodeInvoiceFunc func(ctx context.Context, invoice string) (*provider.DecodedInvoice, error)
	calls             int32
}

func (p *payingProvider) Name() string { return models.PaymentProviderLNbits }

func (p *payingProvider) CreateCharge(context.Context, int64, string, map[string]any) (*provider.Charge, error) {
	return nil, errors.New("not implemented")
}

func (p *payingProvider) DecodeInvoice(ctx context.Context, invoice string) (*provider.DecodedInvoice, error) {
	if p.DecodeInvoiceFunc != nil {
		return p.DecodeInvoiceFunc(ctx, invoice)
	}
	return &provider.DecodedInvoice{AmountMsat: 20000}, nil
}

func (p *payingProvider) PayInvoice(ctx context.Context, invoice string) (*provider.OutboundPayment, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.PayInvoiceFunc(ctx, invoice)
}

func paysOK() *payingProvider {
	return &payingProvider{
		PayInvoiceFunc: func(context.Context, string) (*provider.OutboundPayment, error) {
			return &provider.OutboundPayment{Ref: "outbound-hash-1", Status: "PAID"}, nil
		},
	}
}

func newWithdrawService(t *testing.T, p provider.Provider) (*WithdrawService, *clock) {
	t.Helper()
	repo := repository.NewLnurlWithdrawSessionRepository(database.OpenTestDB(t))
	c := &clock{now: time.Now()}
	svc := NewWithdrawService(repo, p, nil, time.Minute)
	svc.now = c.Now
	return svc, c
}

func createOffer(t *testing.T, svc *WithdrawService) *models.LnurlWithdrawSession {
	t.Helper()
	session, err := svc.Create(context.Background(), CreateWithdrawInput{
		TenantID:        4,
		MinWithdrawable: 1000,
		MaxWithdrawable: 50000,
		Description:     " refund ",
	})
	require.NoError(t, err)
	return session
}

func TestWithdrawCreate(t *testing.T) {
	svc, _ := newWithdrawService(t, paysOK())
	session := createOffer(t, svc)

	assert.Len(t, session.K1, 64)
	assert.Equal(t, models.LnurlStatusPending, session.Status)
	assert.Equal(t, "refund", session.DefaultDescription)
	assert.LessOrEqual(t, session.MinWithdrawable, session.MaxWithdrawable)
}

func TestWithdrawCreateRejectsReversedBounds(t *testing.T) {
	svc, _ := newWithdrawService(t, paysOK())

	_, err := svc.Create(context.Background(), CreateWithdrawInput{TenantID: 1, MinWithdrawable: 5000, MaxWithdrawable: 1000})
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = svc.Create(context.Background(), CreateWithdrawInput{TenantID: 1, MinWithdrawable: 0, MaxWithdrawable: 1000})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	session, err := svc.Create(context.Background(), CreateWithdrawInput{TenantID: 1, MinWithdrawable: 1000, MaxWithdrawable: 1000})
	require.NoError(t, err)
	assert.Equal(t, session.MinWithdrawable, session.MaxWithdrawable)
}

func TestBuildWithdrawRequest(t *testing.T) {
	svc, _ := newWithdrawService(t, paysOK())
	session := createOffer(t, svc)

	req := svc.BuildWithdrawRequest(session, "https://pay.example.com/lnurl/withdraw/callback")
	assert.Equal(t, WithdrawRequest{
		Tag:                "withdrawRequest",
		Callback:           "https://pay.example.com/lnurl/withdraw/callback",
		K1:                 session.K1,
		MinWithdrawable:    1000,
		MaxWithdrawable:    50000,
		DefaultDescription: "refund",
	}, req)
}

func TestWithdrawSettle(t *testing.T) {
	ctx := context.Background()
	p := paysOK()
	svc, _ := newWithdrawService(t, p)
	session := createOffer(t, svc)

	res, err := svc.Settle(ctx, session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, OK(), res)

	stored, err := svc.Get(ctx, session.K1)
	require.NoError(t, err)
	assert.Equal(t, models.LnurlStatusPaid, stored.Status)
	assert.Equal(t, testInvoice, stored.Invoice)
	assert.Equal(t, "outbound-hash-1", stored.PaymentRef)

	res, err = svc.Settle(ctx, session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, OK(), res)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls), "paid offers are never paid twice")
}

func TestWithdrawSettleProviderFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	failing := true
	p := &payingProvider{
		PayInvoiceFunc: func(context.Context, string) (*provider.OutboundPayment, error) {
			if failing {
				return nil, &provider.Error{Provider: "lnbits", Op: "pay invoice", StatusCode: 520, Body: "route not found"}
			}
			return &provider.OutboundPayment{Ref: "retry-ref", Status: "PAID"}, nil
		},
	}
	svc, _ := newWithdrawService(t, p)
	session := createOffer(t, svc)

	res, err := svc.Settle(ctx, session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonPaymentFailed), res)

	stored, err := svc.Get(ctx, session.K1)
	require.NoError(t, err)
	assert.Equal(t, models.LnurlStatusPending, stored.Status)

	failing = false
	res, err = svc.Settle(ctx, session.K1, testInvoice)
	require.NoError(t, err)
	assert.True(t, res.IsOK())
}

func TestWithdrawSettleProviderReportsFailure(t *testing.T) {
	p := &payingProvider{
		PayInvoiceFunc: func(context.Context, string) (*provider.OutboundPayment, error) {
			return &provider.OutboundPayment{Ref: "x", Status: "failed"}, nil
		},
	}
	svc, _ := newWithdrawService(t, p)
	session := createOffer(t, svc)

	res, err := svc.Settle(context.Background(), session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonPaymentFailed), res)
}

func TestWithdrawSettleNotConfigured(t *testing.T) {
	p := &payingProvider{
		PayInvoiceFunc: func(context.Context, string) (*provider.OutboundPayment, error) {
			return nil, provider.ErrNotConfigured
		},
	}
	svc, _ := newWithdrawService(t, p)
	session := createOffer(t, svc)

	res, err := svc.Settle(context.Background(), session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonProviderNotConfigured), res)
}

func TestWithdrawSettleUnsupportedProvider(t *testing.T) {
	svc, _ := newWithdrawService(t, provider.NewSandbox(models.PaymentProviderOpenNode))
	session := createOffer(t, svc)

	res, err := svc.Settle(context.Background(), session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonProviderNotSupported), res)

	stored, err := svc.Get(context.Background(), session.K1)
	require.NoError(t, err)
	assert.Equal(t, models.LnurlStatusPending, stored.Status)
}

func TestWithdrawSettleRejections(t *testing.T) {
	ctx := context.Background()
	svc, c := newWithdrawService(t, paysOK())
	session := createOffer(t, svc)

	res, err := svc.Settle(ctx, "nope", testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonInvalidK1), res)

	res, err = svc.Settle(ctx, session.K1, "bogus")
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonInvalidInvoice), res)

	res, err = svc.Settle(ctx, strings.Repeat("22", 32), testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonUnknownK1), res)

	c.Advance(2 * time.Minute)
	res, err = svc.Settle(ctx, session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonExpired), res)
}

func TestWithdrawSettleInProgress(t *testing.T) {
	locker := lock.NewKeyedMutex()
	repo := repository.NewLnurlWithdrawSessionRepository(database.OpenTestDB(t))
	svc := NewWithdrawService(repo, paysOK(), locker, time.Minute)
	session := createOffer(t, svc)

	unlock, ok, err := locker.TryLock(context.Background(), "lnurlw:"+session.K1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := svc.Settle(context.Background(), session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonInProgress), res)

	unlock()
	res, err = svc.Settle(context.Background(), session.K1, testInvoice)
	require.NoError(t, err)
	assert.True(t, res.IsOK())
}

func TestWithdrawConcurrentSettlePaysOnce(t *testing.T) {
	p := &payingProvider{
		PayInvoiceFunc: func(context.Context, string) (*provider.OutboundPayment, error) {
			time.Sleep(20 * time.Millisecond)
			return &provider.OutboundPayment{Ref: "once", Status: "PAID"}, nil
		},
	}
	svc, _ := newWithdrawService(t, p)
	session := createOffer(t, svc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Settle(context.Background(), session.K1, testInvoice)
			assert.NoError(t, err)
			if !res.IsOK() {
				assert.Equal(t, ReasonInProgress, res.Reason)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestWithdrawSettleRejectsOutOfRangeAmount(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		invoice string
	}{
		{name: "above max", invoice: "lnbcrt1m1poverthemax"},
		{name: "below min", invoice: "lnbcrt5n1punderthemin"},
		{name: "amountless", invoice: "lnbcrt1pnoamount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &payingProvider{
				PayInvoiceFunc: func(context.Context, string) (*provider.OutboundPayment, error) {
					return &provider.OutboundPayment{Ref: "should-not-pay", Status: "PAID"}, nil
				},
			}
			sandbox := provider.NewSandbox(models.PaymentProviderLNbits)
			p.DecodeInvoiceFunc = sandbox.DecodeInvoice
			svc, _ := newWithdrawService(t, p)
			session := createOffer(t, svc)

			res, err := svc.Settle(ctx, session.K1, tt.invoice)
			require.NoError(t, err)
			assert.Equal(t, Fail(ReasonInvalidAmount), res)
			assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls), "provider must not be asked to pay")

			stored, err := svc.Get(ctx, session.K1)
			require.NoError(t, err)
			assert.Equal(t, models.LnurlStatusPending, stored.Status)
		})
	}
}

func TestWithdrawSettleUndecodableInvoice(t *testing.T) {
	p := paysOK()
	p.DecodeInvoiceFunc = func(context.Context, string) (*provider.DecodedInvoice, error) {
		return nil, &provider.Error{Provider: "lnbits", Op: "decode invoice", StatusCode: 400, Body: "invalid bolt11"}
	}
	svc, _ := newWithdrawService(t, p)
	session := createOffer(t, svc)

	res, err := svc.Settle(context.Background(), session.K1, testInvoice)
	require.NoError(t, err)
	assert.Equal(t, Fail(ReasonInvalidInvoice), res)
	assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls))
}
