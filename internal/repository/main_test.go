package repository

import (
	"context"
	"errors"
	"testing"

	"pawfeed/internal/database"
	"pawfeed/internal/docstore"
	"pawfeed/internal/docstore/sqlstore"
	"pawfeed/internal/models"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := sqlstore.New(db, nil)
	require.NoError(t, store.AutoMigrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newOriginal(t *testing.T, repo PostRepository, owner string) *models.Post {
	t.Helper()
	p := &models.Post{OwnerID: owner, Type: models.PostTypeImage, MediaURL: "https://cdn.example/" + owner + ".jpg"}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

// seedRepost writes a repost document and bumps the original's counter the
// way the interaction service does.
func seedRepost(t *testing.T, store docstore.Store, original *models.Post, reposterID string) *models.Post {
	t.Helper()
	repost := &models.Post{
		OwnerID:        reposterID,
		Type:           models.PostTypeRepost,
		OriginalPostID: original.ID,
		Original:       original.Snapshot(),
		Reposter:       &models.Reposter{ID: reposterID},
	}
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		o, err := tx.GetPost(original.ID)
		if err != nil {
			return err
		}
		if err := tx.CreatePost(repost); err != nil {
			return err
		}
		return tx.UpdatePost(o.ID, docstore.Fields{docstore.FieldRepostCount: o.RepostCount + 1})
	})
	require.NoError(t, err)
	return repost
}

// flakyStore fails UpdatePost/DeletePost for selected ids.
type flakyStore struct {
	docstore.Store
	failIDs map[string]bool
}

var errInjected = errors.New("injected failure")

func (s *flakyStore) UpdatePost(ctx context.Context, id string, fields docstore.Fields) error {
	if s.failIDs[id] {
		return errInjected
	}
	return s.Store.UpdatePost(ctx, id, fields)
}

func (s *flakyStore) DeletePost(ctx context.Context, id string) error {
	if s.failIDs[id] {
		return errInjected
	}
	return s.Store.DeletePost(ctx, id)
}
