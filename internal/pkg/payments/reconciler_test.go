package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceContinuesPastFailures(t *testing.T) {
	p := &fakeProvider{
		GetChargeFunc: func(_ context.Context, ref string) (*provider.ChargeStatus, error) {
			switch ref {
			case "bad":
				return nil, errors.New("provider down")
			case "paid":
				return &provider.ChargeStatus{Status: "PAID"}, nil
			default:
				return &provider.ChargeStatus{Status: "PENDING"}, nil
			}
		},
	}
	f := newFixture(t, p)
	f.seed(t, "bad", models.PaymentStatusPending, "")
	f.seed(t, "paid", models.PaymentStatusPending, "")
	f.seed(t, "still", models.PaymentStatusPending, "")
	f.seed(t, "done", models.PaymentStatusPaid, "")

	r := NewReconciler(f.svc, ReconcilerConfig{BatchSize: 10, Parallelism: 2})
	updated, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, int32(3), p.calls(), "resolved payments are not swept")

	paid := f.pub.ofType(events.TypeInvoicePaid)
	require.Len(t, paid, 1)
	assert.Equal(t, "paid", paid[0].ProviderRef)
	assert.Equal(t, events.SourceReconciler, paid[0].Source)

	updated, err = r.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Len(t, f.pub.ofType(events.TypeInvoicePaid), 1)
}

func TestReconcilerDisabledWithoutStatusQuery(t *testing.T) {
	f := newFixture(t, createOnlyProvider{})
	r := NewReconciler(f.svc, ReconcilerConfig{})

	assert.False(t, r.Start())
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestReconcilerStartStop(t *testing.T) {
	f := newFixture(t, statusProvider("PAID"))
	f.seed(t, "loop-1", models.PaymentStatusPending, "")

	r := NewReconciler(f.svc, ReconcilerConfig{Interval: 10 * time.Millisecond, BatchSize: 5, Parallelism: 1})
	require.True(t, r.Start())
	assert.True(t, r.Start(), "second Start is a no-op")
	assert.True(t, r.IsRunning())

	assert.Eventually(t, func() bool {
		return len(f.pub.ofType(events.TypeInvoicePaid)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestReconcilerConfigDefaults(t *testing.T) {
	cfg := ReconcilerConfig{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Window)
	assert.Equal(t, 1, cfg.Parallelism)
}
