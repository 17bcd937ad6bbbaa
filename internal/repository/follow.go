package repository

import (
	"context"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"
)

// FollowRepository defines the interface for the follow graph.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followedID string) error
	Unfollow(ctx context.Context, followerID, followedID string) error
	Following(ctx context.Context, followerID string) ([]string, error)
}

type followRepository struct {
	store docstore.Store
	log   *observability.RepoLogger
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(store docstore.Store) FollowRepository {
	return &followRepository{store: store, log: observability.NewRepoLogger(docstore.CollectionFollows)}
}

func (r *followRepository) Follow(ctx context.Context, followerID, followedID string) error {
	if followerID == "" || followedID == "" {
		return models.NewValidationError("both user ids are required")
	}
	if followerID == followedID {
		return models.NewValidationError("You cannot follow yourself")
	}
	if err := r.store.Follow(ctx, followerID, followedID); err != nil {
		return MapStoreError(err, "User", followedID)
	}
	r.log.LogWrite(ctx, "follow", map[string]any{"follower_id": followerID, "followed_id": followedID})
	return nil
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followedID string) error {
	if err := r.store.Unfollow(ctx, followerID, followedID); err != nil {
		return MapStoreError(err, "Follow", followedID)
	}
	r.log.LogWrite(ctx, "unfollow", map[string]any{"follower_id": followerID, "followed_id": followedID})
	return nil
}

func (r *followRepository) Following(ctx context.Context, followerID string) ([]string, error) {
	ids, err := r.store.ListFollowing(ctx, followerID)
	if err != nil {
		return nil, MapStoreError(err, "User", followerID)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
