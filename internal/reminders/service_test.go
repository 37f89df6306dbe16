package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/events"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

func leadUpdatedEvent(before, after domain.Lead) events.LeadUpdated {
	return events.LeadUpdated{BaseEvent: events.NewBaseEvent(), Before: before, After: after}
}

type fakeStore struct {
	tasks      []Task
	insertErr  error
	claimErr   error
	superseded int64
}

func (f *fakeStore) Insert(ctx context.Context, params InsertParams) (Task, error) {
	if f.insertErr != nil {
		return Task{}, f.insertErr
	}
	task := Task{
		ID:              uuid.New(),
		LeadID:          params.LeadID,
		CloserID:        params.CloserID,
		AppointmentTime: params.AppointmentTime,
		ReminderTime:    params.ReminderTime,
		CustomerName:    params.CustomerName,
		Address:         params.Address,
		CreatedAt:       time.Now(),
	}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeStore) SupersedeForLead(ctx context.Context, leadID uuid.UUID) (int64, error) {
	var count int64
	for i := range f.tasks {
		t := &f.tasks[i]
		if t.LeadID == leadID && !t.Processed && !t.Superseded {
			t.Superseded = true
			count++
		}
	}
	f.superseded += count
	return count, nil
}

func (f *fakeStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var due []Task
	for i := range f.tasks {
		t := &f.tasks[i]
		if t.Processed || t.Superseded || t.ReminderTime.After(now) {
			continue
		}
		t.Processed = true
		due = append(due, *t)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

type fakeSink struct {
	recorded []string
}

func (f *fakeSink) Record(ctx context.Context, functionName, entityID, message string) {
	f.recorded = append(f.recorded, functionName)
}

func newScheduler(store Store, sink ErrorSink, at time.Time) *Scheduler {
	s := NewScheduler(store, sink, 30*time.Minute, logger.New("development"))
	s.now = func() time.Time { return at }
	return s
}

func assignedLead(appointment time.Time) domain.Lead {
	closerID := uuid.New()
	return domain.Lead{
		ID:                       uuid.New(),
		TeamID:                   uuid.New(),
		Status:                   domain.LeadStatusScheduled,
		AssignedCloserID:         &closerID,
		CustomerName:             "Ada",
		CustomerPhone:            "1",
		ScheduledAppointmentTime: &appointment,
	}
}

func TestScheduleWritesTaskAtLeadTimeBeforeAppointment(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	sched := newScheduler(store, &fakeSink{}, now)

	appointment := now.Add(4 * time.Hour)
	after := assignedLead(appointment)
	before := after
	before.ScheduledAppointmentTime = nil

	if err := sched.Schedule(context.Background(), before, after); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if len(store.tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(store.tasks))
	}
	want := appointment.Add(-30 * time.Minute)
	if !store.tasks[0].ReminderTime.Equal(want) {
		t.Fatalf("reminder time %v, want %v", store.tasks[0].ReminderTime, want)
	}
}

func TestScheduleIgnoresUnchangedAppointment(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	sched := newScheduler(store, &fakeSink{}, now)

	lead := assignedLead(now.Add(4 * time.Hour))

	if err := sched.Schedule(context.Background(), lead, lead); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if len(store.tasks) != 0 || store.superseded != 0 {
		t.Fatalf("unchanged appointment must not touch the store")
	}
}

func TestScheduleSupersedesPriorTasksOnChange(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	sched := newScheduler(store, &fakeSink{}, now)

	first := now.Add(4 * time.Hour)
	after := assignedLead(first)
	before := after
	before.ScheduledAppointmentTime = nil

	if err := sched.Schedule(context.Background(), before, after); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}

	moved := after
	second := now.Add(6 * time.Hour)
	moved.ScheduledAppointmentTime = &second

	if err := sched.Schedule(context.Background(), after, moved); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}

	if store.superseded != 1 {
		t.Fatalf("prior task not superseded, count %d", store.superseded)
	}
	live := 0
	for _, task := range store.tasks {
		if !task.Superseded {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live task, got %d", live)
	}
}

func TestScheduleSupersedesWhenAppointmentCleared(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	sched := newScheduler(store, &fakeSink{}, now)

	appointment := now.Add(4 * time.Hour)
	after := assignedLead(appointment)
	before := after
	before.ScheduledAppointmentTime = nil

	if err := sched.Schedule(context.Background(), before, after); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}

	cleared := after
	cleared.ScheduledAppointmentTime = nil

	if err := sched.Schedule(context.Background(), after, cleared); err != nil {
		t.Fatalf("clearing Schedule: %v", err)
	}

	if store.superseded != 1 {
		t.Fatalf("pending task must be retired when the appointment is cleared")
	}
	for _, task := range store.tasks {
		if !task.Superseded {
			t.Fatalf("no live task expected after the appointment is cleared")
		}
	}
}

func TestScheduleSupersedesEvenWhenLeadUnassigned(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	sched := newScheduler(store, &fakeSink{}, now)

	appointment := now.Add(4 * time.Hour)
	after := assignedLead(appointment)
	before := after
	before.ScheduledAppointmentTime = nil

	if err := sched.Schedule(context.Background(), before, after); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}

	// Lead loses its closer and the appointment moves: the stale task must
	// still be superseded, but no replacement is written.
	moved := after
	moved.AssignedCloserID = nil
	second := now.Add(6 * time.Hour)
	moved.ScheduledAppointmentTime = &second

	if err := sched.Schedule(context.Background(), after, moved); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}

	if store.superseded != 1 {
		t.Fatalf("stale task not superseded")
	}
	for _, task := range store.tasks {
		if !task.Superseded {
			t.Fatalf("no live task expected for an unassigned lead")
		}
	}
}

func TestScheduleSkipsReminderAlreadyInPast(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	sched := newScheduler(store, &fakeSink{}, now)

	// Appointment in 10 minutes puts the reminder 20 minutes in the past.
	after := assignedLead(now.Add(10 * time.Minute))
	before := after
	before.ScheduledAppointmentTime = nil

	if err := sched.Schedule(context.Background(), before, after); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if len(store.tasks) != 0 {
		t.Fatalf("past reminder must not be written")
	}
}

func TestReactionFailureLandsInSink(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{insertErr: errors.New("write failed")}
	sink := &fakeSink{}
	sched := newScheduler(store, sink, now)

	appointment := now.Add(4 * time.Hour)
	after := assignedLead(appointment)
	before := after
	before.ScheduledAppointmentTime = nil

	err := sched.onLeadUpdated(context.Background(), leadUpdatedEvent(before, after))
	if err != nil {
		t.Fatalf("reaction error must be swallowed, got %v", err)
	}

	if len(sink.recorded) != 1 || sink.recorded[0] != "scheduleReminder" {
		t.Fatalf("expected failure in the sink, got %v", sink.recorded)
	}
}
