package notification

import (
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/internal/notification/inapp"
	"dispatch_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the notification bounded context: the in-app delivery channel
// plus the caller-facing notification endpoints.
type Module struct {
	handler *Handler
	service *Service
	repo    *inapp.Repository
}

func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	repo := inapp.NewRepository(pool)
	svc := NewService(repo, log)

	return &Module{
		handler: NewHandler(repo),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Notifier returns the in-app notifier for other modules.
func (m *Module) Notifier() Notifier {
	return m.service
}

// RegisterRoutes mounts notification routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	group.GET("", m.handler.List)
	group.GET("/unread-count", m.handler.UnreadCount)
	group.POST("/:id/read", m.handler.MarkRead)
}

var _ apphttp.Module = (*Module)(nil)
