// Package service implements the assignment executor and the caller-facing
// dispatch operations. Selection and the assignment write run as one
// conditional transaction keyed on the closer row; everything after the lead
// write (activity log, notification) is best-effort and never rolls it back.
package service

import (
	"context"
	"errors"
	"fmt"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/dispatch/selector"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/phone"

	"github.com/google/uuid"
)

// maxSelectionRetries bounds reselection when a concurrent assignment lands
// on the chosen closer between snapshot and write.
const maxSelectionRetries = 3

// Caller identifies the authenticated RPC caller.
type Caller struct {
	UID    uuid.UUID
	Role   string
	TeamID uuid.UUID
}

// AssignedCloser is the closer half of an assignment result.
type AssignedCloser struct {
	UID  uuid.UUID `json:"uid"`
	Name string    `json:"name"`
}

type Service struct {
	leads      repository.LeadStore
	closers    repository.CloserStore
	activities repository.ActivityStore
	notifier   notification.Notifier
	bus        events.Bus
	log        *logger.Logger
}

func New(
	leads repository.LeadStore,
	closers repository.CloserStore,
	activities repository.ActivityStore,
	notifier notification.Notifier,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		leads:      leads,
		closers:    closers,
		activities: activities,
		notifier:   notifier,
		bus:        bus,
		log:        log,
	}
}

// AssignToBest selects the team's best closer and executes the assignment.
// Returns an unavailable error when the team has no On Duty closer. A stale
// selection (concurrent assignment racing for the same closer) triggers a
// bounded reselection.
func (s *Service) AssignToBest(ctx context.Context, lead domain.Lead) (domain.Lead, AssignedCloser, error) {
	var lastErr error
	for attempt := 0; attempt < maxSelectionRetries; attempt++ {
		candidates, err := s.closers.OnDutyCandidates(ctx, lead.TeamID)
		if err != nil {
			return domain.Lead{}, AssignedCloser{}, err
		}

		best := selector.Select(candidates)
		if best == nil {
			return domain.Lead{}, AssignedCloser{}, apperr.Unavailable("no on-duty closers available")
		}

		updated, err := s.ExecuteAssignment(ctx, lead, best.Closer, best.ActiveAssignments)
		if errors.Is(err, repository.ErrStaleSelection) {
			lastErr = err
			continue
		}
		if err != nil {
			return domain.Lead{}, AssignedCloser{}, err
		}
		return updated, AssignedCloser{UID: best.Closer.UID, Name: best.Closer.Name}, nil
	}

	return domain.Lead{}, AssignedCloser{}, apperr.Wrap(apperr.KindUnavailable, "assignment contention exhausted retries", lastErr)
}

// ExecuteAssignment performs one lead-to-closer assignment with its side
// effects. expectedLoad below zero skips the load recheck (direct
// self-assignment). The lead write is the consistency boundary; the activity
// log append and the closer notification are best-effort.
func (s *Service) ExecuteAssignment(ctx context.Context, lead domain.Lead, closer domain.Closer, expectedLoad int) (domain.Lead, error) {
	updated, err := s.leads.AssignLead(ctx, repository.AssignLeadParams{
		LeadID:              lead.ID,
		CloserUID:           closer.UID,
		CloserName:          closer.Name,
		TargetStatus:        lead.TargetStatusForAssignment(),
		ExpectedActiveCount: expectedLoad,
	})
	if err != nil {
		return domain.Lead{}, err
	}

	if err := s.activities.Append(ctx, repository.ActivityParams{
		Type:     repository.ActivityLeadAssigned,
		LeadID:   &updated.ID,
		CloserID: &closer.UID,
		TeamID:   updated.TeamID,
		Metadata: map[string]any{
			"closerName":   closer.Name,
			"targetStatus": string(updated.Status),
		},
	}); err != nil {
		s.log.DatabaseError("append_lead_assigned_activity", err)
	}

	if err := s.notifier.Notify(ctx, updated.TeamID, []uuid.UUID{closer.UID}, notification.Payload{
		Title:    "New lead assigned",
		Content:  fmt.Sprintf("%s has been assigned to you.", updated.CustomerName),
		Category: "assignment",
	}); err != nil {
		s.log.NotifyFailure("assignment", closer.UID.String(), err)
	}

	s.log.AssignmentEvent("lead_assigned", updated.ID.String(), closer.UID.String(), updated.TeamID.String())
	s.publishLeadUpdated(ctx, lead, updated)
	return updated, nil
}

// CreateLead is the intake path: it normalizes the customer phone, persists
// the lead, and publishes LeadCreated for the dispatch reaction.
func (s *Service) CreateLead(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	if params.Status == "" {
		params.Status = domain.LeadStatusWaitingAssignment
	}
	if params.Status != domain.LeadStatusWaitingAssignment && params.Status != domain.LeadStatusScheduled {
		return domain.Lead{}, apperr.Validation("leads enter as waiting_assignment or scheduled")
	}
	params.CustomerPhone = phone.NormalizeE164(params.CustomerPhone)

	lead, err := s.leads.CreateLead(ctx, params)
	if err != nil {
		return domain.Lead{}, err
	}

	s.bus.Publish(ctx, events.LeadCreated{BaseEvent: events.NewBaseEvent(), Lead: lead})
	return lead, nil
}

// UpdateLeadStatus applies a disposition or lifecycle transition with state
// machine enforcement and publishes the edge for the rotation reaction.
func (s *Service) UpdateLeadStatus(ctx context.Context, caller Caller, leadID uuid.UUID, to domain.LeadStatus) (domain.Lead, error) {
	if !to.Valid() {
		return domain.Lead{}, apperr.Validation("unknown lead status")
	}

	before, err := s.getLeadForCaller(ctx, caller, leadID)
	if err != nil {
		return domain.Lead{}, err
	}

	if !domain.CanTransition(before.Status, to) {
		return domain.Lead{}, apperr.FailedPrecondition(
			fmt.Sprintf("transition %s -> %s is not allowed", before.Status, to))
	}

	after, err := s.leads.UpdateLeadStatus(ctx, leadID, to)
	if err != nil {
		return domain.Lead{}, err
	}

	s.publishLeadUpdated(ctx, before, after)
	return after, nil
}

// UpdateLead applies intake-side field changes (appointment time, setter
// verification) and publishes the before/after pair so the reminder
// scheduler sees appointment-time edges.
func (s *Service) UpdateLead(ctx context.Context, caller Caller, leadID uuid.UUID, params repository.UpdateLeadParams) (domain.Lead, error) {
	before, err := s.getLeadForCaller(ctx, caller, leadID)
	if err != nil {
		return domain.Lead{}, err
	}

	if params.Status != nil {
		if !params.Status.Valid() {
			return domain.Lead{}, apperr.Validation("unknown lead status")
		}
		if !domain.CanTransition(before.Status, *params.Status) {
			return domain.Lead{}, apperr.FailedPrecondition(
				fmt.Sprintf("transition %s -> %s is not allowed", before.Status, *params.Status))
		}
	}

	after, err := s.leads.UpdateLead(ctx, leadID, params)
	if err != nil {
		return domain.Lead{}, err
	}

	s.publishLeadUpdated(ctx, before, after)
	return after, nil
}

// SetCloserStatus flips a closer's duty status and publishes the edge for
// the lineup reaction.
func (s *Service) SetCloserStatus(ctx context.Context, caller Caller, closerUID uuid.UUID, status domain.CloserStatus) (domain.Closer, error) {
	if status != domain.CloserOnDuty && status != domain.CloserOffDuty {
		return domain.Closer{}, apperr.Validation("unknown duty status")
	}

	before, err := s.closers.GetCloser(ctx, closerUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Closer{}, apperr.NotFound("closer not found")
		}
		return domain.Closer{}, err
	}

	if caller.UID != closerUID && caller.Role != domain.RoleManager && caller.Role != domain.RoleAdmin {
		return domain.Closer{}, apperr.Forbidden("only the closer or a manager may change duty status")
	}
	if caller.TeamID != before.TeamID && caller.Role != domain.RoleAdmin {
		return domain.Closer{}, apperr.Forbidden("caller is not on the closer's team")
	}

	if before.Status == status {
		return before, nil
	}

	after, err := s.closers.UpdateCloserStatus(ctx, closerUID, status)
	if err != nil {
		return domain.Closer{}, err
	}

	s.bus.Publish(ctx, events.CloserUpdated{BaseEvent: events.NewBaseEvent(), Before: before, After: after})
	return after, nil
}

// GetLead returns a lead visible to the caller.
func (s *Service) GetLead(ctx context.Context, caller Caller, leadID uuid.UUID) (domain.Lead, error) {
	return s.getLeadForCaller(ctx, caller, leadID)
}

func (s *Service) publishLeadUpdated(ctx context.Context, before, after domain.Lead) {
	s.bus.Publish(ctx, events.LeadUpdated{BaseEvent: events.NewBaseEvent(), Before: before, After: after})
}

func (s *Service) getLeadForCaller(ctx context.Context, caller Caller, leadID uuid.UUID) (domain.Lead, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, err
	}

	if caller.TeamID != lead.TeamID && caller.Role != domain.RoleManager && caller.Role != domain.RoleAdmin {
		return domain.Lead{}, apperr.Forbidden("caller is not on the lead's team")
	}
	return lead, nil
}
