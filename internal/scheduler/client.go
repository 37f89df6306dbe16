// Package scheduler moves reminder delivery through asynq: the sweeper
// enqueues due reminders via the Client, the Worker consumes them and writes
// the closer notification.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"dispatch_backend/internal/reminders"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RedisConfig is the slice of configuration the scheduler needs.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg RedisConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// DispatchReminder enqueues one claimed reminder for immediate delivery.
func (c *Client) DispatchReminder(ctx context.Context, task reminders.Task) error {
	if c == nil || c.client == nil {
		return nil
	}

	address := ""
	if task.Address != nil {
		address = *task.Address
	}

	asynqTask, err := NewReminderDueTask(ReminderDuePayload{
		ReminderID:      task.ID.String(),
		LeadID:          task.LeadID.String(),
		CloserID:        task.CloserID.String(),
		TeamID:          task.TeamID.String(),
		CustomerName:    task.CustomerName,
		Address:         address,
		AppointmentTime: task.AppointmentTime,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, asynqTask, asynq.Queue(c.queue))
	return err
}

var _ reminders.Dispatcher = (*Client)(nil)

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
