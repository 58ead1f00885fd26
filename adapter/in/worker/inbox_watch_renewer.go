package worker

import (
	"context"
	"sync"
	"time"

	"inbox_server/core/port/in"

	"github.com/rs/zerolog"
)

const renewTimeout = 5 * time.Minute

// WatchRenewer re-registers Gmail watches before their 7-day expiry.
type WatchRenewer struct {
	watch    in.WatchUseCase
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatchRenewer(watch in.WatchUseCase, interval time.Duration, log zerolog.Logger) *WatchRenewer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &WatchRenewer{
		watch:    watch,
		interval: interval,
		log:      log.With().Str("component", "watch_renewer").Logger(),
	}
}

func (r *WatchRenewer) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.log.Info().Dur("interval", r.interval).Msg("watch renewer started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.renew(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.renew(ctx)
			}
		}
	}()
}

func (r *WatchRenewer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.log.Info().Msg("watch renewer stopped")
}

func (r *WatchRenewer) renew(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, renewTimeout)
	defer cancel()

	n, err := r.watch.RenewAll(ctx)
	if err != nil {
		r.log.Error().Err(err).Int("renewed", n).Msg("watch renewal failed")
		return
	}
	r.log.Info().Int("renewed", n).Msg("watches renewed")
}
