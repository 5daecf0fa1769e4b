package expiration

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/model"
	"github.com/marianozunino/bucket/internal/registry"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bucket_sweep_runs_total",
		Help: "Number of expiry sweeps executed",
	})

	sweepRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bucket_sweep_removed_total",
		Help: "Number of files removed by expiry sweeps",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bucket_sweep_errors_total",
		Help: "Number of per-file failures during expiry sweeps",
	})
)

// PolicyFunc supplies a fresh ExpiryPolicy snapshot per sweep, so
// configuration changes apply without restarting the sweeper.
type PolicyFunc func() model.ExpiryPolicy

// Sweeper periodically reclaims expired files: the blob first, then the
// metadata record.
type Sweeper struct {
	registry *registry.Registry
	blobs    blob.Store
	policy   PolicyFunc
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewSweeper creates a sweeper; Start begins periodic sweeping.
func NewSweeper(reg *registry.Registry, blobs blob.Store, policy PolicyFunc, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		registry: reg,
		blobs:    blobs,
		policy:   policy,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs an immediate sweep and then one per interval until Stop.
func (s *Sweeper) Start() {
	go func() {
		s.run()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run()
			case <-s.stopChan:
				s.logger.Info("expiry sweeper stopped")
				return
			}
		}
	}()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts periodic sweeping.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) run() {
	removed, err := s.Sweep(context.Background(), s.policy(), time.Now())
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("expired bucket files removed", zap.Int("count", removed))
	}
}

// Sweep deletes every record matching the expiry policy at the given
// instant, along with its blob. Blob-first ordering means a crash
// mid-sweep leaves at worst an orphaned metadata record that fails
// closed; it never strands an undiscoverable blob. One bad record does
// not stop the rest: its failure is counted and the sweep moves on. The
// returned count is for observability only.
func (s *Sweeper) Sweep(ctx context.Context, pol model.ExpiryPolicy, now time.Time) (int, error) {
	sweepRunsTotal.Inc()

	ids, err := s.registry.ListExpired(ctx, pol, now)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		rec, err := s.registry.Get(ctx, id)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				// Another sweep or an explicit delete got here first.
				continue
			}
			sweepErrorsTotal.Inc()
			s.logger.Error("sweep: load record", zap.String("id", id), zap.Error(err))
			continue
		}

		if err := s.blobs.Delete(rec.StorageKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			sweepErrorsTotal.Inc()
			s.logger.Error("sweep: delete blob",
				zap.String("id", id),
				zap.String("storage_key", rec.StorageKey),
				zap.Error(err),
			)
			continue
		}

		if err := s.registry.Delete(ctx, id); err != nil {
			if !errors.Is(err, registry.ErrNotFound) {
				sweepErrorsTotal.Inc()
				s.logger.Error("sweep: delete record", zap.String("id", id), zap.Error(err))
			}
			continue
		}

		removed++
	}

	sweepRemovedTotal.Add(float64(removed))
	return removed, nil
}
