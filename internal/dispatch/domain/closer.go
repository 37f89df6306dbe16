package domain

import (
	"time"

	"github.com/google/uuid"
)

// CloserStatus is the closer's duty state.
type CloserStatus string

const (
	CloserOnDuty  CloserStatus = "On Duty"
	CloserOffDuty CloserStatus = "Off Duty"
)

// Lineup order constants. Spacing leaves room between adjacent positions so
// front/back placement is a single write, never a batch renumber.
const (
	LineupSeed    int64 = 100000
	LineupSpacing int64 = 1000
)

// Closer is a salesperson eligible to receive leads, tracked with a duty
// status and a rotation position. Lower lineup order is served first.
type Closer struct {
	UID                 uuid.UUID    `json:"uid"`
	TeamID              uuid.UUID    `json:"teamId"`
	Name                string       `json:"name"`
	Status              CloserStatus `json:"status"`
	LineupOrder         int64        `json:"lineupOrder"`
	LastExceptionAt     *time.Time   `json:"lastExceptionAt,omitempty"`
	LastExceptionReason *string      `json:"lastExceptionReason,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// AppendLineupOrder computes the position for a closer joining the lineup.
// hasOthers is false when the team has no other closers with an order.
func AppendLineupOrder(currentMax int64, hasOthers bool) int64 {
	if !hasOthers {
		return LineupSeed
	}
	return currentMax + LineupSpacing
}

// FrontLineupOrder computes the position ahead of the current front of the
// lineup, floored at zero.
func FrontLineupOrder(currentMin int64) int64 {
	order := currentMin - LineupSpacing
	if order < 0 {
		return 0
	}
	return order
}

// BackLineupOrder computes the position behind the current back of the lineup.
func BackLineupOrder(currentMax int64) int64 {
	return currentMax + LineupSpacing
}
