package worker

import (
	"context"
	"sync"
	"time"

	"inbox_server/core/port/in"
	"inbox_server/core/service/mail"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// AccountLister enumerates accounts that can be synced.
type AccountLister interface {
	ListAccountIDs(ctx context.Context) ([]int64, error)
}

// PollConfig controls the periodic sync.
type PollConfig struct {
	Interval     time.Duration
	MaxMessages  int
	ErrorBackoff time.Duration
	Concurrency  int
	PassTimeout  time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:     5 * time.Minute,
		MaxMessages:  5,
		ErrorBackoff: time.Minute,
		Concurrency:  4,
		PassTimeout:  4 * time.Minute,
	}
}

// PollScheduler syncs every connected account on a fixed interval.
// It covers missed push deliveries.
type PollScheduler struct {
	accounts AccountLister
	sync     in.SyncUseCase
	cfg      PollConfig
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewPollScheduler(accounts AccountLister, syncer in.SyncUseCase, cfg PollConfig, log zerolog.Logger) *PollScheduler {
	def := DefaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = def.PassTimeout
	}
	return &PollScheduler{
		accounts: accounts,
		sync:     syncer,
		cfg:      cfg,
		log:      log.With().Str("component", "poll_scheduler").Logger(),
	}
}

// Start runs the first pass immediately, then one per interval.
func (s *PollScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("max_messages", s.cfg.MaxMessages).
		Int("concurrency", s.cfg.Concurrency).
		Msg("poll scheduler started")

	go s.run(ctx)
}

// Stop cancels the loop and waits for the current pass to return.
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info().Msg("poll scheduler stopped")
}

func (s *PollScheduler) run(ctx context.Context) {
	defer close(s.done)

	for {
		wait := s.cfg.Interval
		if err := s.RunPass(ctx); err != nil {
			wait = s.cfg.ErrorBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunPass syncs every account once. Only a failure to enumerate accounts is returned;
// per-account errors are logged.
func (s *PollScheduler) RunPass(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(mail.WithTrigger(ctx, mail.TriggerPoll), s.cfg.PassTimeout)
	defer cancel()

	ids, err := s.accounts.ListAccountIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Dur("retry_in", s.cfg.ErrorBackoff).Msg("list accounts failed")
		return err
	}
	if len(ids) == 0 {
		s.log.Debug().Msg("no accounts to poll")
		return nil
	}

	start := time.Now()
	var stored, failed int
	var mu sync.Mutex

	worker := pool.WorkerFunc[int64](func(ctx context.Context, accountID int64) error {
		n, err := s.sync.Sync(ctx, accountID, s.cfg.MaxMessages)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed++
			s.log.Warn().Err(err).Int64("account_id", accountID).Msg("poll sync failed")
			return nil
		}
		stored += n
		return nil
	})

	wg := pool.New[int64](s.cfg.Concurrency, worker).
		WithBatchSize(1).
		WithContinueOnError()
	if err := wg.Go(ctx); err != nil {
		s.log.Error().Err(err).Msg("start poll workers failed")
		return nil
	}
	for _, id := range ids {
		wg.Submit(id)
	}
	if err := wg.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("poll pass ended early")
	}

	s.log.Info().
		Int("accounts", len(ids)).
		Int("stored", stored).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("poll pass complete")
	return nil
}
