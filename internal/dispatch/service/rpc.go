package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/apperr"

	"github.com/google/uuid"
)

// AssignResult is the response shape shared by manualAssign and selfAssign.
type AssignResult struct {
	Success  bool           `json:"success"`
	LeadID   uuid.UUID      `json:"leadId"`
	Assigned AssignedCloser `json:"assignedCloser"`
}

// AcceptResult reports the outcome of acceptJob. AlreadyAccepted is true on
// the idempotent path where no second write happened.
type AcceptResult struct {
	Success         bool      `json:"success"`
	AlreadyAccepted bool      `json:"alreadyAccepted"`
	AcceptedAt      time.Time `json:"acceptedAt"`
}

// ManualAssign routes a lead through the selector on behalf of a manager,
// admin, or teammate of the lead.
func (s *Service) ManualAssign(ctx context.Context, caller Caller, leadID uuid.UUID) (AssignResult, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AssignResult{}, apperr.NotFound("lead not found")
		}
		return AssignResult{}, err
	}

	if caller.TeamID != lead.TeamID && caller.Role != domain.RoleManager && caller.Role != domain.RoleAdmin {
		return AssignResult{}, apperr.Forbidden("caller may not assign this lead")
	}
	if !lead.ManualAssignable() {
		return AssignResult{}, apperr.FailedPrecondition("lead is not assignable in its current state")
	}

	updated, closer, err := s.AssignToBest(ctx, lead)
	if err != nil {
		return AssignResult{}, err
	}

	return AssignResult{Success: true, LeadID: updated.ID, Assigned: closer}, nil
}

// SelfAssign lets an On Duty closer (or manager acting as one) claim an
// unassigned lead directly, bypassing the selector.
func (s *Service) SelfAssign(ctx context.Context, caller Caller, leadID uuid.UUID) (AssignResult, error) {
	if caller.Role != domain.RoleCloser && caller.Role != domain.RoleManager {
		return AssignResult{}, apperr.Forbidden("only closers and managers may self-assign")
	}

	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AssignResult{}, apperr.NotFound("lead not found")
		}
		return AssignResult{}, err
	}
	if caller.TeamID != lead.TeamID {
		return AssignResult{}, apperr.Forbidden("caller is not on the lead's team")
	}
	if !lead.Assignable() {
		return AssignResult{}, apperr.FailedPrecondition("lead is not assignable in its current state")
	}
	if lead.AssignedCloserID != nil {
		return AssignResult{}, apperr.FailedPrecondition("lead is already assigned")
	}

	closer, err := s.closers.GetCloser(ctx, caller.UID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AssignResult{}, apperr.NotFound("caller has no closer profile")
		}
		return AssignResult{}, err
	}
	if closer.Status != domain.CloserOnDuty {
		return AssignResult{}, apperr.FailedPrecondition("caller must be On Duty to self-assign")
	}

	// Direct claim: the caller picked themselves, so no load recheck.
	updated, err := s.ExecuteAssignment(ctx, lead, closer, -1)
	if errors.Is(err, repository.ErrStaleSelection) {
		return AssignResult{}, apperr.FailedPrecondition("caller went off duty before the assignment landed")
	}
	if err != nil {
		return AssignResult{}, err
	}

	return AssignResult{
		Success:  true,
		LeadID:   updated.ID,
		Assigned: AssignedCloser{UID: closer.UID, Name: closer.Name},
	}, nil
}

// AcceptJob marks a lead accepted by its assigned closer. Re-accepting an
// already-accepted lead is a success without a second write.
func (s *Service) AcceptJob(ctx context.Context, caller Caller, leadID uuid.UUID) (AcceptResult, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AcceptResult{}, apperr.NotFound("lead not found")
		}
		return AcceptResult{}, err
	}

	if lead.AssignedCloserID == nil || *lead.AssignedCloserID != caller.UID {
		return AcceptResult{}, apperr.Forbidden("only the assigned closer may accept this lead")
	}

	if lead.Status == domain.LeadStatusAccepted && lead.AcceptedBy != nil && *lead.AcceptedBy == caller.UID {
		var acceptedAt time.Time
		if lead.AcceptedAt != nil {
			acceptedAt = *lead.AcceptedAt
		}
		return AcceptResult{Success: true, AlreadyAccepted: true, AcceptedAt: acceptedAt}, nil
	}

	if lead.Status != domain.LeadStatusWaitingAssignment &&
		!(lead.Status == domain.LeadStatusScheduled && lead.SetterVerified) {
		return AcceptResult{}, apperr.FailedPrecondition("lead cannot be accepted in its current state")
	}

	now := time.Now()
	updated, err := s.leads.AcceptLead(ctx, leadID, caller.UID, now)
	if err != nil {
		return AcceptResult{}, err
	}

	if err := s.activities.Append(ctx, repository.ActivityParams{
		Type:     repository.ActivityLeadAccepted,
		LeadID:   &updated.ID,
		CloserID: &caller.UID,
		TeamID:   updated.TeamID,
	}); err != nil {
		s.log.DatabaseError("append_lead_accepted_activity", err)
	}

	if updated.SetterID != nil {
		closerName := caller.UID.String()
		if updated.AssignedCloserName != nil {
			closerName = *updated.AssignedCloserName
		}
		if err := s.notifier.Notify(ctx, updated.TeamID, []uuid.UUID{*updated.SetterID}, notification.Payload{
			Title:    "Lead accepted",
			Content:  fmt.Sprintf("%s accepted the job for %s.", closerName, updated.CustomerName),
			Category: "acceptance",
		}); err != nil {
			s.log.NotifyFailure("acceptance", updated.SetterID.String(), err)
		}
	}

	s.publishLeadUpdated(ctx, lead, updated)
	return AcceptResult{Success: true, AlreadyAccepted: false, AcceptedAt: now}, nil
}
