package payments

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/ManuelReschke/SatsFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
)

// ReconcilerConfig tunes the background sweep.
type ReconcilerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Window      time.Duration
	Parallelism int
}

// ReconcilerConfigFromEnv reads RECONCILE_* settings.
func ReconcilerConfigFromEnv() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:    env.GetDuration("RECONCILE_INTERVAL", 5*time.Second),
		BatchSize:   env.GetInt("RECONCILE_BATCH", 20),
		Window:      env.GetDuration("RECONCILE_WINDOW", 24*time.Hour),
		Parallelism: env.GetInt("RECONCILE_PARALLELISM", 4),
	}
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	return c
}

// Reconciler periodically sweeps unresolved payments through the service.
type Reconciler struct {
	service *Service
	cfg     ReconcilerConfig

	ticker  *time.Ticker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewReconciler creates a stopped reconciler.
func NewReconciler(service *Service, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{service: service, cfg: cfg.withDefaults()}
}

// Start launches the sweep loop. It returns false without starting when the
// provider cannot report charge status.
func (r *Reconciler) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return true
	}
	if !r.service.CanReconcile() {
		log.Warnf("[Reconciler] Provider %s has no status query, reconciliation disabled", r.service.Provider().Name())
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.ticker = time.NewTicker(r.cfg.Interval)
	r.running = true
	log.Infof("[Reconciler] Starting (interval=%v batch=%d window=%v parallelism=%d)",
		r.cfg.Interval, r.cfg.BatchSize, r.cfg.Window, r.cfg.Parallelism)

	r.wg.Add(1)
	go r.loop(ctx, r.ticker)
	return true
}

// Stop cancels the loop. In-flight provider calls are abandoned through
// their context.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.ticker.Stop()
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	log.Info("[Reconciler] Stopped")
}

// IsRunning returns whether the loop is active.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) loop(ctx context.Context, ticker *time.Ticker) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("[Reconciler] Sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce reconciles one page of unresolved payments and returns how many
// changed. A failure for one payment is logged and does not stop the sweep.
func (r *Reconciler) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.ReconcileSweepDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	batch, err := r.service.repo.ListUnresolved(ctx, start.Add(-r.cfg.Window), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}
	if err := r.service.repo.MarkChecked(ctx, ids, start); err != nil {
		log.Warnf("[Reconciler] Failed to mark batch checked: %v", err)
	}

	var (
		mu      sync.Mutex
		updated int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i := range batch {
		payment := &batch[i]
		g.Go(func() error {
			res, err := r.service.Reconcile(gctx, payment, events.SourceReconciler)
			switch {
			case err != nil:
				log.Errorf("[Reconciler] %s: %v", payment.ProviderRef, err)
			case res.Err != nil:
				log.Warnf("[Reconciler] %s: %v", payment.ProviderRef, res.Err)
			case res.Updated:
				mu.Lock()
				updated++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return updated, nil
}
