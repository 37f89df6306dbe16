// Package rotation maintains the closer lineup: positions joining closers,
// hands off a departing closer's active leads, and reorders on disposition
// outcomes. Positions are spaced so every move is a single write.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// Assigner routes a lead to the best available closer.
type Assigner interface {
	AssignToBest(ctx context.Context, lead domain.Lead) (domain.Lead, error)
}

// handoffStatuses are the lead statuses pulled off a closer who goes off duty.
var handoffStatuses = []domain.LeadStatus{
	domain.LeadStatusInProcess,
	domain.LeadStatusScheduled,
}

type Manager struct {
	closers    repository.CloserStore
	leads      repository.LeadStore
	activities repository.ActivityStore
	assigner   Assigner
	log        *logger.Logger
}

func NewManager(
	closers repository.CloserStore,
	leads repository.LeadStore,
	activities repository.ActivityStore,
	assigner Assigner,
	log *logger.Logger,
) *Manager {
	return &Manager{
		closers:    closers,
		leads:      leads,
		activities: activities,
		assigner:   assigner,
		log:        log,
	}
}

// OnDutyStarted appends the closer to the bottom of the team lineup. The
// closer is already On Duty when the reaction fires, so a count of one means
// they are alone and take the seed position.
func (m *Manager) OnDutyStarted(ctx context.Context, closer domain.Closer) error {
	_, max, count, err := m.closers.TeamLineupBounds(ctx, closer.TeamID)
	if err != nil {
		return fmt.Errorf("lineup bounds for team %s: %w", closer.TeamID, err)
	}

	order := domain.AppendLineupOrder(max, count > 1)
	updated, err := m.closers.SetLineupOrder(ctx, closer.UID, order)
	if err != nil {
		return fmt.Errorf("append closer %s to lineup: %w", closer.UID, err)
	}

	m.logMove(ctx, "closer_added_to_lineup", repository.ActivityCloserAddedToLineup,
		updated, closer.LineupOrder, order, nil)
	return nil
}

// OnDutyEnded hands each of the departing closer's active leads to another
// closer, or releases the lead back to the waiting pool when the team has no
// one else. Each lead is processed independently; one failure never aborts
// the rest.
func (m *Manager) OnDutyEnded(ctx context.Context, closer domain.Closer) error {
	leads, err := m.leads.LeadsAssignedTo(ctx, closer.UID, handoffStatuses)
	if err != nil {
		return fmt.Errorf("list leads for departing closer %s: %w", closer.UID, err)
	}

	var errs []error
	for _, lead := range leads {
		if err := m.handOff(ctx, lead); err != nil {
			errs = append(errs, fmt.Errorf("hand off lead %s: %w", lead.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) handOff(ctx context.Context, lead domain.Lead) error {
	_, err := m.assigner.AssignToBest(ctx, lead)
	if err == nil {
		return nil
	}
	if !apperr.Is(err, apperr.KindUnavailable) {
		return err
	}

	// Nobody left on duty: release back to the waiting pool.
	if _, err := m.leads.ReleaseLead(ctx, lead.ID); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	m.log.AssignmentEvent("lead_released", lead.ID.String(), "", lead.TeamID.String())
	return nil
}

// HandleDisposition reorders the assigned closer after a disposition edge.
// Exceptions (canceled, rescheduled out of an active deal) send the closer to
// the front of the lineup; completions (sold, no_sale, credit_fail) send them
// to the back. Other transitions are ignored.
func (m *Manager) HandleDisposition(ctx context.Context, before, after domain.Lead) error {
	if before.AssignedCloserID == nil {
		return nil
	}

	exception := domain.IsException(before.Status, after.Status)
	completion := domain.IsCompletion(before.Status, after.Status)
	if !exception && !completion {
		return nil
	}

	closer, err := m.closers.GetCloser(ctx, *before.AssignedCloserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load closer %s: %w", *before.AssignedCloserID, err)
	}

	min, max, _, err := m.closers.TeamLineupBounds(ctx, closer.TeamID)
	if err != nil {
		return fmt.Errorf("lineup bounds for team %s: %w", closer.TeamID, err)
	}

	if exception {
		order := domain.FrontLineupOrder(min)
		reason := string(after.Status)
		updated, err := m.closers.RecordException(ctx, closer.UID, order, reason, time.Now())
		if err != nil {
			return fmt.Errorf("record exception for closer %s: %w", closer.UID, err)
		}
		m.logMove(ctx, "round_robin_exception", repository.ActivityRoundRobinException,
			updated, closer.LineupOrder, order, &after.ID)
		return nil
	}

	order := domain.BackLineupOrder(max)
	updated, err := m.closers.SetLineupOrder(ctx, closer.UID, order)
	if err != nil {
		return fmt.Errorf("move closer %s to back: %w", closer.UID, err)
	}
	m.logMove(ctx, "round_robin_completion", repository.ActivityRoundRobinCompletion,
		updated, closer.LineupOrder, order, &after.ID)
	return nil
}

// logMove records a lineup change in the activity trail and the structured
// log. Activity append failures are logged and dropped.
func (m *Manager) logMove(ctx context.Context, event, activityType string, closer domain.Closer, previousOrder, newOrder int64, leadID *uuid.UUID) {
	m.log.RotationEvent(event, closer.UID.String(), closer.TeamID.String(), previousOrder, newOrder)

	if err := m.activities.Append(ctx, repository.ActivityParams{
		Type:     activityType,
		LeadID:   leadID,
		CloserID: &closer.UID,
		TeamID:   closer.TeamID,
		Metadata: map[string]any{
			"previousOrder": previousOrder,
			"newOrder":      newOrder,
		},
	}); err != nil {
		m.log.DatabaseError("append_rotation_activity", err)
	}
}
