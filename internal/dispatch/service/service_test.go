package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/dispatch/repository/memory"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

type notifyCall struct {
	teamID  uuid.UUID
	userIDs []uuid.UUID
	payload notification.Payload
}

func (f *fakeNotifier) Notify(ctx context.Context, teamID uuid.UUID, userIDs []uuid.UUID, payload notification.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{teamID: teamID, userIDs: userIDs, payload: payload})
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(store *memory.Store, notifier *fakeNotifier) *Service {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	return New(store, store, store, notifier, bus, log)
}

func seedCloser(store *memory.Store, teamID uuid.UUID, name string, status domain.CloserStatus, order int64) domain.Closer {
	closer := domain.Closer{
		UID:         uuid.New(),
		TeamID:      teamID,
		Name:        name,
		Status:      status,
		LineupOrder: order,
	}
	store.PutCloser(closer)
	return closer
}

func seedLead(store *memory.Store, teamID uuid.UUID, status domain.LeadStatus) domain.Lead {
	lead := domain.Lead{
		ID:            uuid.New(),
		TeamID:        teamID,
		Status:        status,
		DispatchType:  domain.DispatchImmediate,
		CustomerName:  "Ada Lovelace",
		CustomerPhone: "+15550100",
		CreatedAt:     time.Now(),
	}
	store.PutLead(lead)
	return lead
}

func TestAssignToBestPicksFrontOfLineup(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	teamID := uuid.New()
	front := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	seedCloser(store, teamID, "Beth", domain.CloserOnDuty, 101000)
	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)

	updated, closer, err := svc.AssignToBest(context.Background(), lead)
	if err != nil {
		t.Fatalf("AssignToBest: %v", err)
	}
	if closer.UID != front.UID {
		t.Fatalf("expected front closer %s, got %s", front.UID, closer.UID)
	}
	if updated.AssignedCloserID == nil || *updated.AssignedCloserID != front.UID {
		t.Fatalf("lead not assigned to front closer")
	}
	if updated.Status != domain.LeadStatusWaitingAssignment {
		t.Fatalf("immediate lead should keep waiting_assignment, got %s", updated.Status)
	}

	activities := store.Activities()
	if len(activities) != 1 || activities[0].Type != repository.ActivityLeadAssigned {
		t.Fatalf("expected one lead_assigned activity, got %+v", activities)
	}
	if notifier.callCount() != 1 {
		t.Fatalf("expected one closer notification, got %d", notifier.callCount())
	}
}

func TestAssignToBestUnavailableWhenNoCandidates(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	seedCloser(store, teamID, "Offline", domain.CloserOffDuty, 100000)
	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)

	_, _, err := svc.AssignToBest(context.Background(), lead)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestAssignToBestRetriesStaleSelection(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)

	store.AssignErr = repository.ErrStaleSelection

	updated, assigned, err := svc.AssignToBest(context.Background(), lead)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if assigned.UID != closer.UID {
		t.Fatalf("expected assignment to %s after retry", closer.UID)
	}
	if updated.AssignedCloserID == nil {
		t.Fatalf("lead left unassigned after retry")
	}
}

func TestAssignmentSurvivesNotificationFailure(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	svc := newTestService(store, notifier)

	teamID := uuid.New()
	seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)

	updated, _, err := svc.AssignToBest(context.Background(), lead)
	if err != nil {
		t.Fatalf("notification failure must not fail the assignment: %v", err)
	}
	if updated.AssignedCloserID == nil {
		t.Fatalf("assignment rolled back on notification failure")
	}
}

func TestSelfAssignRequiresOnDuty(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOffDuty, 100000)
	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)

	caller := Caller{UID: closer.UID, Role: domain.RoleCloser, TeamID: teamID}
	_, err := svc.SelfAssign(context.Background(), caller, lead.ID)
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("expected failed-precondition for off-duty caller, got %v", err)
	}
}

func TestSelfAssignRejectsAssignedLead(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	other := seedCloser(store, teamID, "Beth", domain.CloserOnDuty, 101000)

	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)
	lead.AssignedCloserID = &other.UID
	store.PutLead(lead)

	caller := Caller{UID: closer.UID, Role: domain.RoleCloser, TeamID: teamID}
	_, err := svc.SelfAssign(context.Background(), caller, lead.ID)
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("expected failed-precondition for assigned lead, got %v", err)
	}
}

func TestSelfAssignHappyPath(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)

	caller := Caller{UID: closer.UID, Role: domain.RoleCloser, TeamID: teamID}
	result, err := svc.SelfAssign(context.Background(), caller, lead.ID)
	if err != nil {
		t.Fatalf("SelfAssign: %v", err)
	}
	if !result.Success || result.Assigned.UID != closer.UID {
		t.Fatalf("unexpected result %+v", result)
	}

	stored, _ := store.Lead(lead.ID)
	if stored.AssignedCloserID == nil || *stored.AssignedCloserID != closer.UID {
		t.Fatalf("lead not assigned to caller")
	}
}

func TestManualAssignForbiddenAcrossTeams(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	lead := seedLead(store, uuid.New(), domain.LeadStatusWaitingAssignment)

	caller := Caller{UID: uuid.New(), Role: domain.RoleSetter, TeamID: uuid.New()}
	_, err := svc.ManualAssign(context.Background(), caller, lead.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for cross-team setter, got %v", err)
	}
}

func TestManualAssignRejectsUnverifiedScheduledLead(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	lead := seedLead(store, teamID, domain.LeadStatusScheduled)

	caller := Caller{UID: uuid.New(), Role: domain.RoleManager, TeamID: teamID}
	_, err := svc.ManualAssign(context.Background(), caller, lead.ID)
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("expected failed-precondition for unverified scheduled lead, got %v", err)
	}
}

func TestManualAssignRecyclesInProcessLead(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	front := seedCloser(store, teamID, "Beth", domain.CloserOnDuty, 100000)
	busy := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 101000)

	lead := seedLead(store, teamID, domain.LeadStatusInProcess)
	lead.AssignedCloserID = &busy.UID
	store.PutLead(lead)

	caller := Caller{UID: uuid.New(), Role: domain.RoleManager, TeamID: teamID}
	result, err := svc.ManualAssign(context.Background(), caller, lead.ID)
	if err != nil {
		t.Fatalf("manager reassignment of an in_process lead: %v", err)
	}
	if !result.Success || result.Assigned.UID != front.UID {
		t.Fatalf("expected reassignment to the front closer, got %+v", result)
	}

	stored, _ := store.Lead(lead.ID)
	if stored.AssignedCloserID == nil || *stored.AssignedCloserID != front.UID {
		t.Fatalf("lead still held by the previous closer")
	}
	if stored.Status != domain.LeadStatusWaitingAssignment {
		t.Fatalf("recycled lead should re-enter waiting_assignment, got %s", stored.Status)
	}
}

func TestAcceptJobIdempotent(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)
	setterID := uuid.New()

	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)
	lead.AssignedCloserID = &closer.UID
	lead.SetterID = &setterID
	store.PutLead(lead)

	caller := Caller{UID: closer.UID, Role: domain.RoleCloser, TeamID: teamID}

	first, err := svc.AcceptJob(context.Background(), caller, lead.ID)
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if !first.Success || first.AlreadyAccepted {
		t.Fatalf("unexpected first result %+v", first)
	}

	stored, _ := store.Lead(lead.ID)
	if stored.Status != domain.LeadStatusAccepted || stored.AcceptedAt == nil {
		t.Fatalf("lead not marked accepted: %+v", stored)
	}
	acceptedAt := *stored.AcceptedAt

	second, err := svc.AcceptJob(context.Background(), caller, lead.ID)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !second.Success || !second.AlreadyAccepted {
		t.Fatalf("expected alreadyAccepted on repeat, got %+v", second)
	}
	if !second.AcceptedAt.Equal(acceptedAt) {
		t.Fatalf("acceptedAt changed on repeat accept")
	}

	after, _ := store.Lead(lead.ID)
	if !after.AcceptedAt.Equal(acceptedAt) {
		t.Fatalf("repeat accept mutated the lead")
	}
}

func TestAcceptJobRepeatWithoutStoredTimestamp(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)

	lead := seedLead(store, teamID, domain.LeadStatusAccepted)
	lead.AssignedCloserID = &closer.UID
	lead.AcceptedBy = &closer.UID
	store.PutLead(lead)

	caller := Caller{UID: closer.UID, Role: domain.RoleCloser, TeamID: teamID}
	result, err := svc.AcceptJob(context.Background(), caller, lead.ID)
	if err != nil {
		t.Fatalf("repeat accept: %v", err)
	}
	if !result.Success || !result.AlreadyAccepted {
		t.Fatalf("expected alreadyAccepted, got %+v", result)
	}
	if !result.AcceptedAt.IsZero() {
		t.Fatalf("no stored timestamp must mean a zero acceptedAt, got %v", result.AcceptedAt)
	}
}

func TestAcceptJobOnlyAssignedCloser(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	closer := seedCloser(store, teamID, "Frank", domain.CloserOnDuty, 100000)

	lead := seedLead(store, teamID, domain.LeadStatusWaitingAssignment)
	lead.AssignedCloserID = &closer.UID
	store.PutLead(lead)

	caller := Caller{UID: uuid.New(), Role: domain.RoleCloser, TeamID: teamID}
	_, err := svc.AcceptJob(context.Background(), caller, lead.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for non-assigned caller, got %v", err)
	}
}

func TestUpdateLeadStatusRejectsInvalidTransition(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	teamID := uuid.New()
	lead := seedLead(store, teamID, domain.LeadStatusSold)

	caller := Caller{UID: uuid.New(), Role: domain.RoleManager, TeamID: teamID}
	_, err := svc.UpdateLeadStatus(context.Background(), caller, lead.ID, domain.LeadStatusWaitingAssignment)
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("expected failed-precondition reopening a sold lead, got %v", err)
	}
}

func TestCreateLeadRejectsNonEntryStatus(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, &fakeNotifier{})

	_, err := svc.CreateLead(context.Background(), repository.CreateLeadParams{
		TeamID:        uuid.New(),
		Status:        domain.LeadStatusAccepted,
		DispatchType:  domain.DispatchImmediate,
		CustomerName:  "Ada",
		CustomerPhone: "+15550100",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for entry status, got %v", err)
	}
}
