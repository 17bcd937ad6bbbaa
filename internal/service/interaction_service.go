package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"
	"pawfeed/internal/repository"
	"pawfeed/internal/state"

	"github.com/google/uuid"
)

// Interaction operation labels.
const (
	OpToggleLike = "toggle_like"
	OpRepost     = "repost"
	OpUndoRepost = "undo_repost"
)

// repostNamespace scopes the deterministic repost document ids.
var repostNamespace = uuid.MustParse("5f0c1f8e-6a57-4d8c-9a43-2b8f5e0d7c11")

// RepostID is the document id of reposterID's repost of originalID. The same
// pair always maps to the same id, so a duplicate repost collides inside the
// creating transaction.
func RepostID(reposterID, originalID string) string {
	return uuid.NewSHA1(repostNamespace, []byte(reposterID+"/"+originalID)).String()
}

// InteractionService applies likes and reposts optimistically to the shared
// mirror and then commits them in a store transaction. Failures revert the
// mirror and come back as a failed models.Result.
type InteractionService struct {
	store  docstore.Store
	posts  repository.PostRepository
	mirror *state.Mirror
	now    func() time.Time
}

func NewInteractionService(store docstore.Store, posts repository.PostRepository, app *state.AppState) *InteractionService {
	return &InteractionService{
		store:  store,
		posts:  posts,
		mirror: app.Posts,
		now:    time.Now,
	}
}

// ToggleLike flips viewerID's like on postID. The mirror only predicts the
// outcome; the transaction decides from the likedBy it reads.
func (s *InteractionService) ToggleLike(ctx context.Context, postID, viewerID string) models.Result {
	if viewerID == "" {
		return s.finish(ctx, OpToggleLike, models.NewUnauthorizedError("Sign in to like posts"), nil)
	}

	snap, err := s.mirrored(ctx, postID)
	if err != nil {
		return s.finish(ctx, OpToggleLike, err, nil)
	}
	predicted := !snap.Liked(viewerID)
	optimistic, mirrored := s.mirror.Update(postID, func(p *state.PostSnapshot) { p.SetLiked(viewerID, predicted) })

	var final *models.Post
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		p, err := tx.GetPost(postID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return models.NewNotFoundError("Post", postID)
		}

		like := !slices.Contains(p.LikedBy, viewerID)
		likedBy, _ := setMembership(p.LikedBy, viewerID, like)
		if err := tx.UpdatePost(postID, docstore.Fields{
			docstore.FieldLikedBy:   likedBy,
			docstore.FieldLikeCount: len(likedBy),
		}); err != nil {
			return err
		}
		p.LikedBy, p.LikeCount = likedBy, len(likedBy)
		final = p
		return nil
	})
	if err != nil {
		st := snap.Interaction(viewerID)
		if mirrored {
			st = s.rollback(OpToggleLike, postID, viewerID, func(p *state.PostSnapshot) {
				// A reseed already replaced likedBy with the stored one.
				if p.Version == optimistic.Version {
					p.SetLiked(viewerID, !predicted)
				}
			})
		}
		return s.finish(ctx, OpToggleLike, repository.MapStoreError(err, "Post", postID), st)
	}

	return s.finish(ctx, OpToggleLike, nil, s.mirror.Seed(final, nil).Interaction(viewerID))
}

// Repost creates reposter's repost of originalPostID. Reposting a repost
// targets its original.
func (s *InteractionService) Repost(ctx context.Context, originalPostID string, reposter models.Reposter) models.Result {
	if reposter.ID == "" {
		return s.finish(ctx, OpRepost, models.NewUnauthorizedError("Sign in to repost"), nil)
	}

	original, err := s.resolveOriginal(ctx, originalPostID)
	if err != nil {
		return s.finish(ctx, OpRepost, err, nil)
	}
	if original.Deleted {
		return s.finish(ctx, OpRepost, models.NewNotFoundError("Post", original.ID), nil)
	}
	if original.OwnerID == reposter.ID {
		return s.finish(ctx, OpRepost, models.NewCannotRepostOwnError(), nil)
	}

	mine, err := s.posts.ListAllByOwner(ctx, reposter.ID)
	if err != nil {
		return s.finish(ctx, OpRepost, err, nil)
	}
	for _, p := range mine {
		if p.IsRepost() && p.OriginalPostID == original.ID && !p.Deleted {
			return s.finish(ctx, OpRepost, models.NewAlreadyRepostedError(), nil)
		}
	}

	if _, ok := s.mirror.Get(original.ID); !ok {
		s.mirror.Seed(original, nil)
	}
	optimistic, mirrored := s.mirror.Update(original.ID, func(p *state.PostSnapshot) { p.SetReposted(reposter.ID, true) })

	repostID := RepostID(reposter.ID, original.ID)
	var final *models.Post
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		o, err := tx.GetPost(original.ID)
		if err != nil {
			return err
		}
		if o.Deleted {
			return models.NewNotFoundError("Post", o.ID)
		}
		existing, err := tx.GetPost(repostID)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		if existing != nil && !existing.Deleted {
			return models.NewAlreadyRepostedError()
		}

		doc := s.buildRepost(repostID, o, reposter)
		if existing != nil {
			// A leftover hidden document is reused; it already counts
			// towards repostCount.
			doc.CreatedAt = time.Time{}
			if err := tx.SetPost(doc); err != nil {
				return err
			}
			final = o
			return nil
		}
		if err := tx.CreatePost(doc); err != nil {
			return err
		}
		o.RepostCount++
		if err := tx.UpdatePost(o.ID, docstore.Fields{docstore.FieldRepostCount: o.RepostCount}); err != nil {
			return err
		}
		final = o
		return nil
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		err = models.NewAlreadyRepostedError()
	}
	if err != nil {
		st := &models.Interaction{PostID: original.ID, LikeCount: original.LikeCount, RepostCount: original.RepostCount}
		if mirrored {
			st = s.rollback(OpRepost, original.ID, reposter.ID, func(p *state.PostSnapshot) {
				if p.Version == optimistic.Version {
					p.SetReposted(reposter.ID, false)
					return
				}
				delete(p.RepostedBy, reposter.ID)
			})
		}
		return s.finish(ctx, OpRepost, repository.MapStoreError(err, "Post", original.ID), st)
	}

	return s.finish(ctx, OpRepost, nil, s.mirror.Seed(final, nil).Interaction(reposter.ID))
}

// UndoRepost removes reposterID's repost of originalPostID and decrements the
// original's repostCount in the same transaction.
func (s *InteractionService) UndoRepost(ctx context.Context, originalPostID, reposterID string) models.Result {
	if reposterID == "" {
		return s.finish(ctx, OpUndoRepost, models.NewUnauthorizedError("Sign in to undo a repost"), nil)
	}

	originalID := originalPostID
	if p, err := s.posts.Get(ctx, originalPostID); err == nil && p.IsRepost() {
		originalID = p.OriginalPostID
	} else if err != nil && !models.IsKind(err, models.KindNotFound) {
		return s.finish(ctx, OpUndoRepost, err, nil)
	}

	repost, err := s.findRepost(ctx, originalID, reposterID)
	if err != nil {
		return s.finish(ctx, OpUndoRepost, err, nil)
	}

	optimistic, mirrored := s.mirror.Update(originalID, func(p *state.PostSnapshot) { p.SetReposted(reposterID, false) })

	if err := repository.DeleteRepostTx(ctx, s.store, originalID, repost.ID); err != nil {
		var st *models.Interaction
		if mirrored {
			st = s.rollback(OpUndoRepost, originalID, reposterID, func(p *state.PostSnapshot) {
				if p.Version == optimistic.Version {
					p.SetReposted(reposterID, true)
					return
				}
				p.RepostedBy[reposterID] = true
			})
		}
		return s.finish(ctx, OpUndoRepost, repository.MapStoreError(err, "Post", repost.ID), st)
	}

	original, err := s.posts.Get(ctx, originalID)
	if err != nil {
		// The repost is gone; the original may have been removed meanwhile.
		s.mirror.Forget(originalID)
		return s.finish(ctx, OpUndoRepost, nil, &models.Interaction{PostID: originalID})
	}
	return s.finish(ctx, OpUndoRepost, nil, s.mirror.Seed(original, nil).Interaction(reposterID))
}

// Reposted reports whether viewerID has a live repost of originalID.
func (s *InteractionService) Reposted(ctx context.Context, originalID, viewerID string) bool {
	if viewerID == "" {
		return false
	}
	if snap, ok := s.mirror.Get(originalID); ok && snap.Reposted(viewerID) {
		return true
	}
	p, err := s.posts.Get(ctx, RepostID(viewerID, originalID))
	return err == nil && !p.Deleted
}

// mirrored returns the mirror entry for postID, seeding it from the store on a miss.
func (s *InteractionService) mirrored(ctx context.Context, postID string) (state.PostSnapshot, error) {
	if snap, ok := s.mirror.Get(postID); ok {
		return snap, nil
	}
	p, err := s.posts.Get(ctx, postID)
	if err != nil {
		return state.PostSnapshot{}, err
	}
	if p.Deleted {
		return state.PostSnapshot{}, models.NewNotFoundError("Post", postID)
	}
	return s.mirror.Seed(p, nil), nil
}

func (s *InteractionService) resolveOriginal(ctx context.Context, postID string) (*models.Post, error) {
	p, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !p.IsRepost() {
		return p, nil
	}
	if p.OriginalPostID == "" {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return s.posts.Get(ctx, p.OriginalPostID)
}

// findRepost looks up the deterministic id first and falls back to scanning
// the reposter's posts for documents created under other ids.
func (s *InteractionService) findRepost(ctx context.Context, originalID, reposterID string) (*models.Post, error) {
	p, err := s.posts.Get(ctx, RepostID(reposterID, originalID))
	if err == nil && p.OwnerID == reposterID && p.OriginalPostID == originalID {
		return p, nil
	}
	if err != nil && !models.IsKind(err, models.KindNotFound) {
		return nil, err
	}

	mine, err := s.posts.ListAllByOwner(ctx, reposterID)
	if err != nil {
		return nil, err
	}
	for _, p := range mine {
		if p.IsRepost() && p.OriginalPostID == originalID {
			return p, nil
		}
	}
	return nil, models.NewNotFoundError("Repost", originalID)
}

func (s *InteractionService) buildRepost(id string, original *models.Post, reposter models.Reposter) *models.Post {
	r := reposter
	return &models.Post{
		ID:              id,
		OwnerID:         reposter.ID,
		Type:            models.PostTypeRepost,
		Caption:         original.Caption,
		PetName:         original.PetName,
		Hashtags:        []string{},
		Behaviors:       []string{},
		LikedBy:         []string{},
		OriginalPostID:  original.ID,
		Original:        original.Snapshot(),
		Reposter:        &r,
		DetectedBreed:   original.DetectedBreed,
		DetectedPetType: original.DetectedPetType,
		CreatedAt:       s.now().UTC(),
	}
}

// rollback reverts only this call's optimistic change, so changes other
// viewers committed meanwhile survive. It returns the reverted state.
func (s *InteractionService) rollback(operation, postID, viewerID string, undo func(p *state.PostSnapshot)) *models.Interaction {
	observability.OptimisticRollbacks.WithLabelValues(operation).Inc()
	cur, ok := s.mirror.Update(postID, undo)
	if !ok {
		return &models.Interaction{PostID: postID}
	}
	return cur.Interaction(viewerID)
}

// finish records the outcome and builds the Result.
func (s *InteractionService) finish(ctx context.Context, operation string, err error, st *models.Interaction) models.Result {
	if err == nil {
		observability.InteractionsTotal.WithLabelValues(operation, "ok").Inc()
		return models.Ok(st)
	}

	appErr := models.AsAppError(err)
	observability.InteractionsTotal.WithLabelValues(operation, appErr.Code).Inc()
	level := slog.LevelInfo
	if appErr.Kind == models.KindTransient || appErr.Kind == models.KindInternal {
		level = slog.LevelWarn
	}
	observability.Logger.Log(ctx, level, "interaction failed",
		slog.String("operation", operation),
		slog.String("code", appErr.Code),
		slog.String("error", appErr.Error()),
	)
	return models.Fail(appErr, st)
}

// setMembership returns ids with id present or absent, and whether that
// changed anything.
func setMembership(ids []string, id string, present bool) ([]string, bool) {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, v := range ids {
		if v == id {
			if found || !present {
				continue
			}
			found = true
		}
		out = append(out, v)
	}
	if present && !found {
		return append(out, id), true
	}
	return out, len(out) != len(ids)
}
