package service

import (
	"context"
	"log/slog"

	"pawfeed/internal/models"
	"pawfeed/internal/observability"
	"pawfeed/internal/repository"
	"pawfeed/internal/state"
)

// FollowService keeps the follow graph and the viewer's persisted following
// list in step and announces following-set changes.
type FollowService struct {
	followRepo repository.FollowRepository
	app        *state.AppState
	onChange   func(viewerID string)
}

func NewFollowService(followRepo repository.FollowRepository, app *state.AppState) *FollowService {
	return &FollowService{followRepo: followRepo, app: app}
}

// OnChange registers fn to run after viewerID's following set changed.
func (s *FollowService) OnChange(fn func(viewerID string)) {
	s.onChange = fn
}

func (s *FollowService) Follow(ctx context.Context, viewerID, targetID string) ([]string, error) {
	if viewerID == "" {
		return nil, models.NewUnauthorizedError("Sign in to follow")
	}
	if err := s.followRepo.Follow(ctx, viewerID, targetID); err != nil {
		return nil, err
	}
	return s.sync(ctx, viewerID)
}

func (s *FollowService) Unfollow(ctx context.Context, viewerID, targetID string) ([]string, error) {
	if viewerID == "" {
		return nil, models.NewUnauthorizedError("Sign in to unfollow")
	}
	if err := s.followRepo.Unfollow(ctx, viewerID, targetID); err != nil {
		return nil, err
	}
	return s.sync(ctx, viewerID)
}

// Following returns the authoritative following set of viewerID.
func (s *FollowService) Following(ctx context.Context, viewerID string) ([]string, error) {
	if viewerID == "" {
		return []string{}, nil
	}
	return s.followRepo.Following(ctx, viewerID)
}

func (s *FollowService) sync(ctx context.Context, viewerID string) ([]string, error) {
	ids, err := s.followRepo.Following(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if err := s.app.SetFollowing(viewerID, ids); err != nil {
		observability.Logger.WarnContext(ctx, "persist following failed",
			slog.String("viewer_id", viewerID), slog.String("error", err.Error()))
	}
	if s.onChange != nil {
		s.onChange(viewerID)
	}
	return ids, nil
}
