package http

import (
	"context"

	"dispatch_backend/internal/events"
	"dispatch_backend/platform/logger"
)

// RouterConfig is the configuration slice the router consumes.
type RouterConfig interface {
	GetEnv() string
	GetJWTAccessSecret() string
	GetCORSOrigins() []string
	IsCORSAllowAll() bool
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies. It is populated
// by main (the composition root) and passed to the router.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Health   HealthChecker
	EventBus events.Bus
	Modules  []Module
}
