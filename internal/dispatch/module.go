package dispatch

import (
	"context"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/handler"
	"dispatch_backend/internal/dispatch/repository"
	"dispatch_backend/internal/dispatch/rotation"
	"dispatch_backend/internal/dispatch/service"
	"dispatch_backend/internal/events"
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the dispatch bounded context: repositories, the assignment
// service, the rotation manager, the event orchestrator, and the HTTP
// handler.
type Module struct {
	handler      *handler.Handler
	service      *service.Service
	orchestrator *Orchestrator
	repo         *repository.Repository
	sink         repository.ErrorSink
}

// NewModule wires the dispatch engine. The mailer may be nil when manager
// alert email is disabled.
func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	notifier notification.Notifier,
	mailer notification.AlertMailer,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	sink := repository.NewErrorSink(pool, log)

	svc := service.New(repo, repo, repo, notifier, bus, log)
	rot := rotation.NewManager(repo, repo, repo, assignerAdapter{svc}, log)
	orch := NewOrchestrator(svc, rot, repo, sink, mailer, log)
	orch.Register(bus)

	return &Module{
		handler:      handler.New(svc, repo, val),
		service:      svc,
		orchestrator: orch,
		repo:         repo,
		sink:         sink,
	}
}

// ErrorSink returns the shared reaction error sink for other modules.
func (m *Module) ErrorSink() repository.ErrorSink {
	return m.sink
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "dispatch"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts dispatch routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	leads.POST("", m.handler.CreateLead)
	leads.GET("/:id", m.handler.GetLead)
	leads.PATCH("/:id", m.handler.UpdateLead)
	leads.PATCH("/:id/status", m.handler.UpdateLeadStatus)
	leads.POST("/:id/assign", m.handler.ManualAssign)
	leads.POST("/:id/self-assign", m.handler.SelfAssign)
	leads.POST("/:id/accept", m.handler.AcceptJob)

	ctx.Protected.PATCH("/closers/:uid/status", m.handler.UpdateCloserStatus)
	ctx.Protected.GET("/activities", m.handler.ListActivities)
}

// assignerAdapter narrows the service to the rotation manager's needs.
type assignerAdapter struct {
	svc *service.Service
}

func (a assignerAdapter) AssignToBest(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	updated, _, err := a.svc.AssignToBest(ctx, lead)
	return updated, err
}

var _ apphttp.Module = (*Module)(nil)
var _ rotation.Assigner = assignerAdapter{}
