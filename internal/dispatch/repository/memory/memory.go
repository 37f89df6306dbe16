// Package memory implements the dispatch store interfaces in process memory.
// It mirrors the conditional-assignment semantics of the pgx repository so
// engine tests exercise the same contention paths without a database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"dispatch_backend/internal/dispatch/domain"
	"dispatch_backend/internal/dispatch/repository"

	"github.com/google/uuid"
)

// RecordedError is one swallowed failure captured by the error sink.
type RecordedError struct {
	FunctionName string
	EntityID     string
	Message      string
}

// Store holds leads, closers, activities, and sunk errors behind one mutex.
type Store struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.Lead
	closers    map[uuid.UUID]domain.Closer
	activities []repository.Activity
	recorded   []RecordedError

	// AssignErr, when set, fails the next AssignLead call and clears itself.
	AssignErr error
	// ActivityErr, when set, fails every Append.
	ActivityErr error
}

func NewStore() *Store {
	return &Store{
		leads:   make(map[uuid.UUID]domain.Lead),
		closers: make(map[uuid.UUID]domain.Closer),
	}
}

// PutLead seeds or replaces a lead.
func (s *Store) PutLead(lead domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	s.leads[lead.ID] = lead
}

// PutCloser seeds or replaces a closer.
func (s *Store) PutCloser(closer domain.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closer.UID == uuid.Nil {
		closer.UID = uuid.New()
	}
	s.closers[closer.UID] = closer
}

// Lead returns a stored lead by id.
func (s *Store) Lead(id uuid.UUID) (domain.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	return lead, ok
}

// Closer returns a stored closer by uid.
func (s *Store) Closer(uid uuid.UUID) (domain.Closer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closer, ok := s.closers[uid]
	return closer, ok
}

// Activities returns a copy of the appended activity trail.
func (s *Store) Activities() []repository.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Activity, len(s.activities))
	copy(out, s.activities)
	return out
}

// Recorded returns a copy of the sunk errors.
func (s *Store) Recorded() []RecordedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedError, len(s.recorded))
	copy(out, s.recorded)
	return out
}

// activeLoad counts a closer's assignments the way the SQL load filter does:
// active statuses only, unverified scheduled leads excluded.
func (s *Store) activeLoad(closerID uuid.UUID) int {
	count := 0
	for _, lead := range s.leads {
		if lead.AssignedCloserID == nil || *lead.AssignedCloserID != closerID {
			continue
		}
		active := false
		for _, status := range domain.ActiveAssignmentStatuses() {
			if lead.Status == status {
				active = true
				break
			}
		}
		if !active {
			continue
		}
		if lead.Status == domain.LeadStatusScheduled && !lead.SetterVerified {
			continue
		}
		count++
	}
	return count
}

// LeadStore

func (s *Store) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (s *Store) CreateLead(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	lead := domain.Lead{
		ID:                       uuid.New(),
		TeamID:                   params.TeamID,
		Status:                   params.Status,
		DispatchType:             params.DispatchType,
		ScheduledAppointmentTime: params.ScheduledAppointmentTime,
		SetterVerified:           params.SetterVerified,
		SetterID:                 params.SetterID,
		CustomerName:             params.CustomerName,
		CustomerPhone:            params.CustomerPhone,
		Address:                  params.Address,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	s.leads[lead.ID] = lead
	return lead, nil
}

func (s *Store) AssignLead(ctx context.Context, params repository.AssignLeadParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AssignErr != nil {
		err := s.AssignErr
		s.AssignErr = nil
		return domain.Lead{}, err
	}

	closer, ok := s.closers[params.CloserUID]
	if !ok || closer.Status != domain.CloserOnDuty {
		return domain.Lead{}, repository.ErrStaleSelection
	}
	if params.ExpectedActiveCount >= 0 && s.activeLoad(params.CloserUID) != params.ExpectedActiveCount {
		return domain.Lead{}, repository.ErrStaleSelection
	}

	lead, ok := s.leads[params.LeadID]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.AssignedCloserID = &params.CloserUID
	name := params.CloserName
	lead.AssignedCloserName = &name
	lead.Status = params.TargetStatus
	lead.UpdatedAt = time.Now()
	s.leads[lead.ID] = lead
	return lead, nil
}

func (s *Store) ReleaseLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.AssignedCloserID = nil
	lead.AssignedCloserName = nil
	lead.Status = domain.LeadStatusWaitingAssignment
	lead.UpdatedAt = time.Now()
	s.leads[id] = lead
	return lead, nil
}

func (s *Store) AcceptLead(ctx context.Context, id uuid.UUID, closerID uuid.UUID, at time.Time) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.Status = domain.LeadStatusAccepted
	lead.AcceptedAt = &at
	lead.AcceptedBy = &closerID
	lead.UpdatedAt = time.Now()
	s.leads[id] = lead
	return lead, nil
}

func (s *Store) UpdateLeadStatus(ctx context.Context, id uuid.UUID, to domain.LeadStatus) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.Status = to
	lead.UpdatedAt = time.Now()
	s.leads[id] = lead
	return lead, nil
}

func (s *Store) UpdateLead(ctx context.Context, id uuid.UUID, params repository.UpdateLeadParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if params.Status != nil {
		lead.Status = *params.Status
	}
	if params.ScheduledAppointmentTime != nil {
		t := *params.ScheduledAppointmentTime
		lead.ScheduledAppointmentTime = &t
	}
	if params.SetterVerified != nil {
		lead.SetterVerified = *params.SetterVerified
	}
	lead.UpdatedAt = time.Now()
	s.leads[id] = lead
	return lead, nil
}

func (s *Store) LeadsAssignedTo(ctx context.Context, closerID uuid.UUID, statuses []domain.LeadStatus) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lead, 0)
	for _, lead := range s.leads {
		if lead.AssignedCloserID == nil || *lead.AssignedCloserID != closerID {
			continue
		}
		for _, status := range statuses {
			if lead.Status == status {
				out = append(out, lead)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CloserStore

func (s *Store) GetCloser(ctx context.Context, uid uuid.UUID) (domain.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closer, ok := s.closers[uid]
	if !ok {
		return domain.Closer{}, repository.ErrNotFound
	}
	return closer, nil
}

func (s *Store) OnDutyCandidates(ctx context.Context, teamID uuid.UUID) ([]repository.CandidateCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.CandidateCloser, 0)
	for _, closer := range s.closers {
		if closer.TeamID != teamID || closer.Status != domain.CloserOnDuty {
			continue
		}
		out = append(out, repository.CandidateCloser{
			Closer:            closer,
			ActiveAssignments: s.activeLoad(closer.UID),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Closer.LineupOrder != out[j].Closer.LineupOrder {
			return out[i].Closer.LineupOrder < out[j].Closer.LineupOrder
		}
		return out[i].Closer.Name < out[j].Closer.Name
	})
	return out, nil
}

func (s *Store) TeamLineupBounds(ctx context.Context, teamID uuid.UUID) (int64, int64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min, max int64
	count := 0
	for _, closer := range s.closers {
		if closer.TeamID != teamID || closer.Status != domain.CloserOnDuty {
			continue
		}
		if count == 0 || closer.LineupOrder < min {
			min = closer.LineupOrder
		}
		if count == 0 || closer.LineupOrder > max {
			max = closer.LineupOrder
		}
		count++
	}
	return min, max, count, nil
}

func (s *Store) SetLineupOrder(ctx context.Context, uid uuid.UUID, order int64) (domain.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closer, ok := s.closers[uid]
	if !ok {
		return domain.Closer{}, repository.ErrNotFound
	}
	closer.LineupOrder = order
	closer.UpdatedAt = time.Now()
	s.closers[uid] = closer
	return closer, nil
}

func (s *Store) RecordException(ctx context.Context, uid uuid.UUID, order int64, reason string, at time.Time) (domain.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closer, ok := s.closers[uid]
	if !ok {
		return domain.Closer{}, repository.ErrNotFound
	}
	closer.LineupOrder = order
	closer.LastExceptionAt = &at
	closer.LastExceptionReason = &reason
	closer.UpdatedAt = time.Now()
	s.closers[uid] = closer
	return closer, nil
}

func (s *Store) UpdateCloserStatus(ctx context.Context, uid uuid.UUID, status domain.CloserStatus) (domain.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closer, ok := s.closers[uid]
	if !ok {
		return domain.Closer{}, repository.ErrNotFound
	}
	closer.Status = status
	closer.UpdatedAt = time.Now()
	s.closers[uid] = closer
	return closer, nil
}

// ActivityStore

func (s *Store) Append(ctx context.Context, params repository.ActivityParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActivityErr != nil {
		return s.ActivityErr
	}
	metadata, err := json.Marshal(params.Metadata)
	if err != nil {
		return err
	}
	s.activities = append(s.activities, repository.Activity{
		ID:        uuid.New(),
		Type:      params.Type,
		LeadID:    params.LeadID,
		CloserID:  params.CloserID,
		TeamID:    params.TeamID,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *Store) ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]repository.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Activity, 0)
	for i := len(s.activities) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.activities[i].TeamID == teamID {
			out = append(out, s.activities[i])
		}
	}
	return out, nil
}

// ErrorSink

func (s *Store) Record(ctx context.Context, functionName, entityID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, RecordedError{
		FunctionName: functionName,
		EntityID:     entityID,
		Message:      message,
	})
}

var (
	_ repository.LeadStore     = (*Store)(nil)
	_ repository.CloserStore   = (*Store)(nil)
	_ repository.ActivityStore = (*Store)(nil)
	_ repository.ErrorSink     = (*Store)(nil)
)
