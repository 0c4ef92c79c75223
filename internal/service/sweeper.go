package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/metrics"
)

// Sweeper is the expiration background task.  On a fixed interval it
// queries overdue active reservations and drives each through the
// lifecycle manager's expire transition.  Batches are capped so one tick
// never stalls on a large backlog: whatever does not fit is picked up by
// the next tick, as is any reservation whose expiry failed, since it
// stays in an active status with a past deadline.
type Sweeper struct {
	store       ReservationStore
	lifecycle   *ReservationService
	interval    time.Duration
	batchSize   int
	itemTimeout time.Duration
	log         zerolog.Logger
	now         func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSweeper constructs a sweeper.  It does nothing until Start is called.
func NewSweeper(store ReservationStore, lifecycle *ReservationService, interval time.Duration, batchSize int, itemTimeout time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:       store,
		lifecycle:   lifecycle,
		interval:    interval,
		batchSize:   batchSize,
		itemTimeout: itemTimeout,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the periodic sweep goroutine.  The sweeper is owned by
// the process lifecycle: main starts it on boot and calls Stop on
// shutdown.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop halts the periodic task and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) tick() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	expired, err := s.RunOnce(ctx)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Sweep-level failure (e.g. the store is unreachable): log and
		// let the next tick retry the whole pass.
		metrics.SweepRuns.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Msg("expiration sweep failed")
		return
	}
	metrics.SweepRuns.WithLabelValues("ok").Inc()
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("expiration sweep finished")
	}
}

// RunOnce performs a single sweep and returns how many reservations it
// expired.  Per-reservation failures are logged and skipped so one bad
// record cannot block the batch; each item gets its own bounded
// deadline so a slow record cannot stall the rest either.  RunOnce is
// also the entry point for an external cron-style trigger.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.store.ListExpired(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, res := range candidates {
		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		ok, err := s.lifecycle.Expire(itemCtx, res.Code)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("code", res.Code).Msg("expire failed; will retry next sweep")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
