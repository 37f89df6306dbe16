package reminders

import (
	"context"
	"time"

	"dispatch_backend/platform/logger"
)

// Sweeper periodically claims due reminder tasks and hands them to the
// delivery dispatcher. Claiming marks a task processed before delivery is
// attempted, so each task gets at most one attempt.
type Sweeper struct {
	store      Store
	dispatcher Dispatcher
	interval   time.Duration
	batchSize  int
	log        *logger.Logger

	now func() time.Time
}

func NewSweeper(store Store, dispatcher Dispatcher, interval time.Duration, batchSize int, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize < 1 {
		batchSize = 50
	}
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		log:        log,
		now:        time.Now,
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.Sweep(ctx); err != nil {
			s.log.Warn("reminder sweep failed", "error", err)
		}
	}
}

// Sweep claims one batch of due tasks and dispatches each. Dispatch failures
// are logged per task and never retried; the claim already consumed the task.
func (s *Sweeper) Sweep(ctx context.Context) error {
	tasks, err := s.store.ClaimDue(ctx, s.now(), s.batchSize)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	s.log.Info("reminders_claimed", "count", len(tasks))
	for _, task := range tasks {
		if err := s.dispatcher.DispatchReminder(ctx, task); err != nil {
			s.log.NotifyFailure("reminder", task.CloserID.String(), err)
		}
	}
	return nil
}
