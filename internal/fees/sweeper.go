// Package fees runs the periodic upkeep sweep that bills pockets for the
// files they support.
package fees

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/observability"
	"github.com/Syriven/netvend/internal/store"
)

var ErrInterval = errors.New("fees: interval must be positive")

type Config struct {
	Interval time.Duration
	Schedule store.FeeSchedule
	// SweepTimeout bounds one ChargeUpkeepFees call. Zero means Interval.
	SweepTimeout time.Duration
}

type Sweeper struct {
	store store.Store
	cfg   Config
}

func NewSweeper(s store.Store, cfg Config) (*Sweeper, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInterval
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = cfg.Interval
	}
	return &Sweeper{store: s, cfg: cfg}, nil
}

// Run sweeps every interval until ctx is canceled. Sweep failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.cfg.Interval).
		Uint64("per_file", s.cfg.Schedule.PerFile).
		Uint64("per_byte", s.cfg.Schedule.PerByte).
		Msg("fees.Sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("fees.Sweeper shutdown")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("fees.Sweeper sweep failed")
			}
		}
	}
}

// SweepOnce charges every pocket once.
func (s *Sweeper) SweepOnce(ctx context.Context) (store.FeeReport, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()

	start := time.Now()
	report, err := s.store.ChargeUpkeepFees(sweepCtx, s.cfg.Schedule)
	if err != nil {
		return store.FeeReport{}, err
	}
	observability.RecordFeeSweep(report.FilesDeleted, report.Collected)

	event := log.Debug()
	if report.PocketsBankrupt > 0 {
		event = log.Info()
	}
	event.
		Int("charged", report.PocketsCharged).
		Int("bankrupt", report.PocketsBankrupt).
		Int("files_deleted", report.FilesDeleted).
		Uint64("collected", report.Collected).
		Dur("took", time.Since(start)).
		Msg("fees.Sweeper swept")
	return report, nil
}
