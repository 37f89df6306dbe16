// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/platform/events"
	"dispatch_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// LeadCreated is published once per lead document write at intake.
type LeadCreated struct {
	BaseEvent
	Lead domain.Lead `json:"lead"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadUpdated is published after any lead mutation with both snapshots so
// reactions can act on edge transitions only.
type LeadUpdated struct {
	BaseEvent
	Before domain.Lead `json:"before"`
	After  domain.Lead `json:"after"`
}

func (e LeadUpdated) EventName() string { return "leads.updated" }

// CloserUpdated is published after any closer mutation.
type CloserUpdated struct {
	BaseEvent
	Before domain.Closer `json:"before"`
	After  domain.Closer `json:"after"`
}

func (e CloserUpdated) EventName() string { return "closers.updated" }
