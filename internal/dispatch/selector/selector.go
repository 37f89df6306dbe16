// Package selector implements closer selection over a snapshot of the
// team's lineup. Selection is pure: loading candidates and executing the
// assignment are the caller's concern.
package selector

import (
	"sort"

	"dispatch_backend/internal/dispatch/repository"
)

// Select returns the best candidate for the next lead, or nil when the team
// has no On Duty closer. Order of preference: lowest lineup order first,
// then fewest active assignments, then name for a stable total order.
func Select(candidates []repository.CandidateCloser) *repository.CandidateCloser {
	if len(candidates) == 0 {
		return nil
	}

	ranked := make([]repository.CandidateCloser, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Closer.LineupOrder != ranked[j].Closer.LineupOrder {
			return ranked[i].Closer.LineupOrder < ranked[j].Closer.LineupOrder
		}
		if ranked[i].ActiveAssignments != ranked[j].ActiveAssignments {
			return ranked[i].ActiveAssignments < ranked[j].ActiveAssignments
		}
		return ranked[i].Closer.Name < ranked[j].Closer.Name
	})

	best := ranked[0]
	return &best
}
