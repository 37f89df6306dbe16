package scheduler

import (
	"context"
	"fmt"

	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	notifier notification.Notifier
	log      *logger.Logger
}

func NewWorker(cfg RedisConfig, notifier notification.Notifier, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
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

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		notifier: notifier,
		log:      log,
	}

	mux.HandleFunc(TaskReminderDue, w.handleReminderDue)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleReminderDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReminderDuePayload(task)
	if err != nil {
		return err
	}

	closerID, err := uuid.Parse(payload.CloserID)
	if err != nil {
		return err
	}

	teamID, err := uuid.Parse(payload.TeamID)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("Appointment with %s at %s.",
		payload.CustomerName, payload.AppointmentTime.Format("Mon Jan 2 15:04"))
	if payload.Address != "" {
		content = fmt.Sprintf("%s Location: %s.", content, payload.Address)
	}

	if err := w.notifier.Notify(ctx, teamID, []uuid.UUID{closerID}, notification.Payload{
		Title:    "Upcoming appointment",
		Content:  content,
		Category: "reminder",
	}); err != nil {
		w.log.NotifyFailure("reminder", payload.CloserID, err)
		return err
	}

	return nil
}
