package reminders

import (
	"context"
	"fmt"
	"time"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/events"
	"dispatch_backend/platform/logger"
)

// Scheduler writes reminder tasks when an assigned lead gains or changes an
// appointment time. Every scheduling event supersedes the lead's earlier
// unprocessed tasks so the sweeper only ever delivers the latest one.
type Scheduler struct {
	store    Store
	sink     ErrorSink
	leadTime time.Duration
	log      *logger.Logger

	now func() time.Time
}

func NewScheduler(store Store, sink ErrorSink, leadTime time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		sink:     sink,
		leadTime: leadTime,
		log:      log,
		now:      time.Now,
	}
}

// Register subscribes the lead-updated reaction on the bus.
func (s *Scheduler) Register(bus events.Bus) {
	bus.Subscribe(events.LeadUpdated{}.EventName(), events.HandlerFunc(s.onLeadUpdated))
}

func (s *Scheduler) onLeadUpdated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadUpdated)
	if !ok {
		return nil
	}
	if err := s.Schedule(ctx, e.Before, e.After); err != nil {
		s.sink.Record(ctx, "scheduleReminder", e.After.ID.String(), err.Error())
	}
	return nil
}

// Schedule inspects a before/after lead pair and persists a reminder task if
// the appointment time was newly set or changed on an assigned lead. Clearing
// the appointment retires any pending task without writing a new one. A
// reminder time already in the past produces no task.
func (s *Scheduler) Schedule(ctx context.Context, before, after domain.Lead) error {
	if before.ScheduledAppointmentTime == nil && after.ScheduledAppointmentTime == nil {
		return nil
	}
	if before.ScheduledAppointmentTime != nil && after.ScheduledAppointmentTime != nil &&
		before.ScheduledAppointmentTime.Equal(*after.ScheduledAppointmentTime) {
		return nil
	}

	superseded, err := s.store.SupersedeForLead(ctx, after.ID)
	if err != nil {
		return fmt.Errorf("supersede reminders for lead %s: %w", after.ID, err)
	}
	if superseded > 0 {
		s.log.Info("reminders_superseded", "lead_id", after.ID.String(), "count", superseded)
	}

	if after.ScheduledAppointmentTime == nil || after.AssignedCloserID == nil {
		return nil
	}

	reminderTime := after.ScheduledAppointmentTime.Add(-s.leadTime)
	if !reminderTime.After(s.now()) {
		s.log.Debug("reminder_in_past_skipped", "lead_id", after.ID.String())
		return nil
	}

	_, err = s.store.Insert(ctx, InsertParams{
		LeadID:          after.ID,
		CloserID:        *after.AssignedCloserID,
		AppointmentTime: *after.ScheduledAppointmentTime,
		ReminderTime:    reminderTime,
		CustomerName:    after.CustomerName,
		Address:         after.Address,
	})
	if err != nil {
		return fmt.Errorf("insert reminder for lead %s: %w", after.ID, err)
	}
	return nil
}
