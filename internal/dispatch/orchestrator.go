// Package dispatch wires the lead routing engine: event reactions, the
// assignment service, the lineup rotation, and the HTTP surface.
package dispatch

import (
	"context"
	"fmt"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/dispatch/rotation"
	"dispatch_backend/internal/dispatch/service"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"
)

// Orchestrator reacts to lead and closer events. Reaction failures are
// recorded in the error sink and swallowed: a failed reaction must never
// fail the write that triggered it.
type Orchestrator struct {
	svc        *service.Service
	rotation   *rotation.Manager
	activities repository.ActivityStore
	sink       repository.ErrorSink
	mailer     notification.AlertMailer
	log        *logger.Logger
}

func NewOrchestrator(
	svc *service.Service,
	rot *rotation.Manager,
	activities repository.ActivityStore,
	sink repository.ErrorSink,
	mailer notification.AlertMailer,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		svc:        svc,
		rotation:   rot,
		activities: activities,
		sink:       sink,
		mailer:     mailer,
		log:        log,
	}
}

// Register subscribes the reactions on the bus.
func (o *Orchestrator) Register(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(o.onLeadCreated))
	bus.Subscribe(events.LeadUpdated{}.EventName(), events.HandlerFunc(o.onLeadUpdated))
	bus.Subscribe(events.CloserUpdated{}.EventName(), events.HandlerFunc(o.onCloserUpdated))
}

// onLeadCreated auto-dispatches a fresh unassigned lead. Leads that arrive
// already assigned or outside waiting_assignment are left alone.
func (o *Orchestrator) onLeadCreated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadCreated)
	if !ok {
		return nil
	}
	lead := e.Lead

	if lead.AssignedCloserID != nil || lead.Status != domain.LeadStatusWaitingAssignment {
		return nil
	}

	_, _, err := o.svc.AssignToBest(ctx, lead)
	if err == nil {
		return nil
	}

	if apperr.Is(err, apperr.KindUnavailable) {
		o.recordNoClosers(ctx, lead)
		return nil
	}

	o.sink.Record(ctx, "onLeadCreated", lead.ID.String(), err.Error())
	return nil
}

// onLeadUpdated feeds disposition edges into the rotation.
func (o *Orchestrator) onLeadUpdated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadUpdated)
	if !ok {
		return nil
	}

	if err := o.rotation.HandleDisposition(ctx, e.Before, e.After); err != nil {
		o.sink.Record(ctx, "onLeadUpdated", e.After.ID.String(), err.Error())
	}
	return nil
}

// onCloserUpdated reacts to duty status edges only.
func (o *Orchestrator) onCloserUpdated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.CloserUpdated)
	if !ok {
		return nil
	}
	if e.Before.Status == e.After.Status {
		return nil
	}

	var err error
	switch {
	case e.Before.Status == domain.CloserOffDuty && e.After.Status == domain.CloserOnDuty:
		err = o.rotation.OnDutyStarted(ctx, e.After)
	case e.Before.Status == domain.CloserOnDuty && e.After.Status == domain.CloserOffDuty:
		err = o.rotation.OnDutyEnded(ctx, e.After)
	}
	if err != nil {
		o.sink.Record(ctx, "onCloserUpdated", e.After.UID.String(), err.Error())
	}
	return nil
}

// recordNoClosers writes the no_available_closers alert record and pings the
// manager alert address when a mailer is configured. Both are best-effort.
func (o *Orchestrator) recordNoClosers(ctx context.Context, lead domain.Lead) {
	o.log.AssignmentEvent("no_available_closers", lead.ID.String(), "", lead.TeamID.String())

	if err := o.activities.Append(ctx, repository.ActivityParams{
		Type:   repository.ActivityNoAvailableClosers,
		LeadID: &lead.ID,
		TeamID: lead.TeamID,
		Metadata: map[string]any{
			"customerName": lead.CustomerName,
		},
	}); err != nil {
		o.sink.Record(ctx, "onLeadCreated", lead.ID.String(), err.Error())
	}

	if o.mailer != nil {
		subject := "No closers available"
		body := fmt.Sprintf("Lead %s (%s) is waiting for assignment but the team has no closer on duty.",
			lead.ID, lead.CustomerName)
		if err := o.mailer.SendAlert(ctx, subject, body); err != nil {
			o.log.NotifyFailure("email", lead.TeamID.String(), err)
		}
	}
}
