package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeDispatcher struct {
	dispatched []uuid.UUID
	failFor    map[uuid.UUID]error
}

func (f *fakeDispatcher) DispatchReminder(ctx context.Context, task Task) error {
	if err, ok := f.failFor[task.ID]; ok {
		return err
	}
	f.dispatched = append(f.dispatched, task.ID)
	return nil
}

func newSweeper(store Store, dispatcher Dispatcher, at time.Time) *Sweeper {
	s := NewSweeper(store, dispatcher, time.Minute, 50, logger.New("development"))
	s.now = func() time.Time { return at }
	return s
}

func dueTask(reminderTime time.Time) Task {
	return Task{
		ID:              uuid.New(),
		LeadID:          uuid.New(),
		CloserID:        uuid.New(),
		AppointmentTime: reminderTime.Add(30 * time.Minute),
		ReminderTime:    reminderTime,
		CustomerName:    "Ada",
	}
}

func TestSweepDispatchesDueTasksOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	store.tasks = append(store.tasks,
		dueTask(now.Add(-time.Minute)),
		dueTask(now.Add(-2*time.Minute)),
		dueTask(now.Add(time.Hour)), // not due yet
	)
	dispatcher := &fakeDispatcher{}
	sweeper := newSweeper(store, dispatcher, now)

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(dispatcher.dispatched) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(dispatcher.dispatched))
	}

	// A second sweep finds nothing: the claim consumed the tasks.
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if len(dispatcher.dispatched) != 2 {
		t.Fatalf("claimed tasks were delivered twice")
	}
}

func TestSweepContinuesPastDispatchFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	failing := dueTask(now.Add(-time.Minute))
	healthy := dueTask(now.Add(-2 * time.Minute))
	store := &fakeStore{tasks: []Task{failing, healthy}}

	dispatcher := &fakeDispatcher{failFor: map[uuid.UUID]error{failing.ID: errors.New("enqueue failed")}}
	sweeper := newSweeper(store, dispatcher, now)

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(dispatcher.dispatched) != 1 || dispatcher.dispatched[0] != healthy.ID {
		t.Fatalf("healthy task not dispatched despite sibling failure")
	}
}

func TestSweepSkipsSupersededTasks(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	stale := dueTask(now.Add(-time.Minute))
	stale.Superseded = true
	store := &fakeStore{tasks: []Task{stale}}

	dispatcher := &fakeDispatcher{}
	sweeper := newSweeper(store, dispatcher, now)

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("superseded task must not be delivered")
	}
}

func TestSweepReturnsClaimError(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{claimErr: errors.New("db down")}
	sweeper := newSweeper(store, &fakeDispatcher{}, now)

	if err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatalf("expected claim error")
	}
}
