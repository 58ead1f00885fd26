package bootstrap

import (
	"context"

	"inbox_server/adapter/in/worker"
	"inbox_server/pkg/logger"
)

// Worker runs the background loops: account polling and watch renewal.
type Worker struct {
	poll   *worker.PollScheduler
	watch  *worker.WatchRenewer
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	zl := logger.Default().Zerolog()

	w := &Worker{}
	if cfg.SchedulerEnabled {
		w.poll = worker.NewPollScheduler(deps.Credentials, deps.SyncCoordinator, worker.PollConfig{
			Interval:     cfg.PollInterval,
			MaxMessages:  cfg.PollMaxMessages,
			ErrorBackoff: cfg.PollErrorBackoff,
			Concurrency:  cfg.PollConcurrency,
		}, zl)
	} else {
		logger.Info("[Worker] poll scheduler disabled")
	}

	if deps.WatchService.Enabled() {
		w.watch = worker.NewWatchRenewer(deps.WatchService, cfg.WatchRenewInterval, zl)
	} else {
		logger.Info("[Worker] GMAIL_PUBSUB_TOPIC not set, watch renewal disabled")
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

// Start launches the loops and blocks until Stop.
func (w *Worker) Start() {
	if w.poll != nil {
		w.poll.Start(w.ctx)
	}
	if w.watch != nil {
		w.watch.Start(w.ctx)
	}
	logger.Info("[Worker] started")
	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	if w.poll != nil {
		w.poll.Stop()
	}
	if w.watch != nil {
		w.watch.Stop()
	}
	w.cancel()
	logger.Info("[Worker] stopped")
}
