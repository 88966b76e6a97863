package scheduler

import (
	"context"
	"fmt"
	"time"

	"crm_backend/platform/config"
	"crm_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// OverdueSweeper flips past-due pending activities to overdue and returns
// how many leads were touched.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// Reindexer rebuilds the search index and returns how many leads it indexed.
type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	sweeper   OverdueSweeper
	reindexer Reindexer
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper OverdueSweeper, reindexer Reindexer, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	interval := cfg.GetOverdueSweepInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	periodic := asynq.NewScheduler(opt, nil)
	if _, err := periodic.Register(
		fmt.Sprintf("@every %s", interval),
		NewOverdueSweepTask(),
		asynq.Queue(queue),
	); err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: periodic,
		mux:       mux,
		sweeper:   sweeper,
		reindexer: reindexer,
		log:       log,
	}

	mux.HandleFunc(TaskOverdueSweep, w.handleOverdueSweep)
	mux.HandleFunc(TaskSearchReindex, w.handleSearchReindex)

	return w, nil
}

// Run starts the periodic scheduler and the task server, blocking until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	if err := w.scheduler.Start(); err != nil {
		w.log.Error("periodic scheduler failed to start", "error", err)
		return
	}

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleOverdueSweep(ctx context.Context, _ *asynq.Task) error {
	touched, err := w.sweeper.SweepOverdue(ctx)
	if err != nil {
		return err
	}
	if touched > 0 {
		w.log.Info("overdue sweep complete", "leadsTouched", touched)
	}
	return nil
}

func (w *Worker) handleSearchReindex(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSearchReindexPayload(task)
	if err != nil {
		return err
	}

	indexed, err := w.reindexer.Reindex(ctx)
	if err != nil {
		return err
	}
	w.log.Info("search reindex complete", "indexed", indexed, "requestedBy", payload.RequestedBy)
	return nil
}
