package notification

import (
	"context"
	"errors"

	"dispatch_backend/internal/notification/inapp"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// Service is the in-app Notifier implementation. Each recipient gets its own
// row; per-recipient failures are joined so the caller sees every miss.
type Service struct {
	repo *inapp.Repository
	log  *logger.Logger
}

func NewService(repo *inapp.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) Notify(ctx context.Context, teamID uuid.UUID, userIDs []uuid.UUID, payload Payload) error {
	var errs []error
	for _, userID := range userIDs {
		_, err := s.repo.Create(ctx, inapp.CreateParams{
			TeamID:   teamID,
			UserID:   userID,
			Title:    payload.Title,
			Content:  payload.Content,
			Category: payload.Category,
		})
		if err != nil {
			errs = append(errs, err)
			if s.log != nil {
				s.log.NotifyFailure("inapp", userID.String(), err)
			}
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Service)(nil)
