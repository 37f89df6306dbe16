package dispatch

import (
	"context"
	"errors"
	"testing"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/dispatch/repository/memory"
	"dispatch_backend/internal/dispatch/rotation"
	"dispatch_backend/internal/dispatch/service"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, teamID uuid.UUID, userIDs []uuid.UUID, payload notification.Payload) error {
	return nil
}

func newTestOrchestrator(store *memory.Store) *Orchestrator {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	svc := service.New(store, store, store, noopNotifier{}, bus, log)
	rot := rotation.NewManager(store, store, store, assignerAdapter{svc}, log)
	return NewOrchestrator(svc, rot, store, store, nil, log)
}

func TestLeadCreatedAssignsToOnDutyCloser(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	closer := domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOnDuty, LineupOrder: 100000}
	store.PutCloser(closer)

	lead := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusWaitingAssignment, DispatchType: domain.DispatchImmediate, CustomerName: "Ada", CustomerPhone: "1"}
	store.PutLead(lead)

	if err := orch.onLeadCreated(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent(), Lead: lead}); err != nil {
		t.Fatalf("onLeadCreated: %v", err)
	}

	got, _ := store.Lead(lead.ID)
	if got.AssignedCloserID == nil || *got.AssignedCloserID != closer.UID {
		t.Fatalf("lead not auto-assigned")
	}
}

func TestLeadCreatedSkipsAlreadyAssignedLead(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	other := uuid.New()
	lead := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusWaitingAssignment, AssignedCloserID: &other, CustomerName: "Ada", CustomerPhone: "1"}
	store.PutLead(lead)

	if err := orch.onLeadCreated(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent(), Lead: lead}); err != nil {
		t.Fatalf("onLeadCreated: %v", err)
	}

	if len(store.Activities()) != 0 {
		t.Fatalf("no-op guard violated: %+v", store.Activities())
	}
	got, _ := store.Lead(lead.ID)
	if *got.AssignedCloserID != other {
		t.Fatalf("assignment overwritten on already-assigned lead")
	}
}

func TestLeadCreatedSkipsNonWaitingLead(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	store.PutCloser(domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOnDuty, LineupOrder: 100000})

	lead := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusScheduled, CustomerName: "Ada", CustomerPhone: "1"}
	store.PutLead(lead)

	if err := orch.onLeadCreated(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent(), Lead: lead}); err != nil {
		t.Fatalf("onLeadCreated: %v", err)
	}

	got, _ := store.Lead(lead.ID)
	if got.AssignedCloserID != nil {
		t.Fatalf("scheduled lead must not be auto-assigned at creation")
	}
}

func TestLeadCreatedRecordsNoClosersAlert(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	lead := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusWaitingAssignment, CustomerName: "Ada", CustomerPhone: "1"}
	store.PutLead(lead)

	if err := orch.onLeadCreated(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent(), Lead: lead}); err != nil {
		t.Fatalf("onLeadCreated: %v", err)
	}

	activities := store.Activities()
	if len(activities) != 1 || activities[0].Type != repository.ActivityNoAvailableClosers {
		t.Fatalf("expected no_available_closers alert, got %+v", activities)
	}
}

func TestLeadCreatedFailureIsSunkAndSwallowed(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	store.PutCloser(domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOnDuty, LineupOrder: 100000})

	lead := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusWaitingAssignment, CustomerName: "Ada", CustomerPhone: "1"}
	store.PutLead(lead)

	store.AssignErr = errors.New("write failed")

	if err := orch.onLeadCreated(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent(), Lead: lead}); err != nil {
		t.Fatalf("reaction error must be swallowed, got %v", err)
	}

	recorded := store.Recorded()
	if len(recorded) != 1 || recorded[0].FunctionName != "onLeadCreated" {
		t.Fatalf("expected the failure in the error sink, got %+v", recorded)
	}
}

func TestCloserDutyOnEdgeAppendsToLineup(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	store.PutCloser(domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Beth", Status: domain.CloserOnDuty, LineupOrder: 100000})

	closer := domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOnDuty, LineupOrder: 0}
	store.PutCloser(closer)

	before := closer
	before.Status = domain.CloserOffDuty

	if err := orch.onCloserUpdated(context.Background(), events.CloserUpdated{BaseEvent: events.NewBaseEvent(), Before: before, After: closer}); err != nil {
		t.Fatalf("onCloserUpdated: %v", err)
	}

	got, _ := store.Closer(closer.UID)
	if got.LineupOrder != 100000+domain.LineupSpacing {
		t.Fatalf("expected lineup append at %d, got %d", 100000+domain.LineupSpacing, got.LineupOrder)
	}
}

func TestCloserDutyOffEdgeHandsOffLeads(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	departing := domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOffDuty, LineupOrder: 100000}
	replacement := domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Beth", Status: domain.CloserOnDuty, LineupOrder: 101000}
	store.PutCloser(departing)
	store.PutCloser(replacement)

	lead := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusInProcess, DispatchType: domain.DispatchImmediate, AssignedCloserID: &departing.UID, CustomerName: "Ada", CustomerPhone: "1"}
	store.PutLead(lead)

	before := departing
	before.Status = domain.CloserOnDuty

	if err := orch.onCloserUpdated(context.Background(), events.CloserUpdated{BaseEvent: events.NewBaseEvent(), Before: before, After: departing}); err != nil {
		t.Fatalf("onCloserUpdated: %v", err)
	}

	got, _ := store.Lead(lead.ID)
	if got.AssignedCloserID == nil || *got.AssignedCloserID != replacement.UID {
		t.Fatalf("lead not handed to the remaining closer: %+v", got)
	}
}

func TestCloserUpdateWithoutDutyEdgeIsIgnored(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	closer := domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOnDuty, LineupOrder: 100000}
	store.PutCloser(closer)

	if err := orch.onCloserUpdated(context.Background(), events.CloserUpdated{BaseEvent: events.NewBaseEvent(), Before: closer, After: closer}); err != nil {
		t.Fatalf("onCloserUpdated: %v", err)
	}

	got, _ := store.Closer(closer.UID)
	if got.LineupOrder != 100000 {
		t.Fatalf("lineup must not move without a duty edge")
	}
	if len(store.Activities()) != 0 {
		t.Fatalf("no activity expected without a duty edge")
	}
}

func TestDispositionEdgeFeedsRotation(t *testing.T) {
	store := memory.NewStore()
	orch := newTestOrchestrator(store)

	teamID := uuid.New()
	closer := domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Frank", Status: domain.CloserOnDuty, LineupOrder: 200000}
	store.PutCloser(closer)
	store.PutCloser(domain.Closer{UID: uuid.New(), TeamID: teamID, Name: "Beth", Status: domain.CloserOnDuty, LineupOrder: 100000})

	before := domain.Lead{ID: uuid.New(), TeamID: teamID, Status: domain.LeadStatusInProcess, AssignedCloserID: &closer.UID}
	after := before
	after.Status = domain.LeadStatusRescheduled

	if err := orch.onLeadUpdated(context.Background(), events.LeadUpdated{BaseEvent: events.NewBaseEvent(), Before: before, After: after}); err != nil {
		t.Fatalf("onLeadUpdated: %v", err)
	}

	got, _ := store.Closer(closer.UID)
	if got.LineupOrder != 100000-domain.LineupSpacing {
		t.Fatalf("exception edge did not move closer to front: %d", got.LineupOrder)
	}
}
