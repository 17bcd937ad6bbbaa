package repository

import (
	"context"
	"strings"
	"testing"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentRepository_AddAndDeleteKeepCountInStep(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	posts := NewPostRepository(store)
	repo := NewCommentRepository(store)
	ctx := context.Background()

	p := newOriginal(t, posts, "alice")
	first := &models.Comment{PostID: p.ID, AuthorID: "bob", Text: "  such good boy  "}
	second := &models.Comment{PostID: p.ID, AuthorID: "carol", Text: "zoomies!"}
	require.NoError(t, repo.Add(ctx, first))
	require.NoError(t, repo.Add(ctx, second))
	assert.Equal(t, "such good boy", first.Text)

	got, err := posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommentCount)

	err = repo.Delete(ctx, p.ID, first.ID, "carol")
	assert.True(t, models.IsKind(err, models.KindUnauthorized), "only the author may delete")

	require.NoError(t, repo.Delete(ctx, p.ID, first.ID, "bob"))
	got, err = posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentCount)

	list, err := repo.List(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	err = repo.Delete(ctx, p.ID, first.ID, "bob")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestCommentRepository_DeleteFloorsCountAtZero(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	posts := NewPostRepository(store)
	repo := NewCommentRepository(store)
	ctx := context.Background()

	p := newOriginal(t, posts, "alice")
	c := &models.Comment{PostID: p.ID, AuthorID: "bob", Text: "hi"}
	require.NoError(t, repo.Add(ctx, c))
	// Drift the counter below the real number of comments.
	require.NoError(t, store.UpdatePost(ctx, p.ID, docstore.Fields{docstore.FieldCommentCount: 0}))

	require.NoError(t, repo.Delete(ctx, p.ID, c.ID, "bob"))
	got, err := posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CommentCount)
}

func TestCommentRepository_AddValidation(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	posts := NewPostRepository(store)
	repo := NewCommentRepository(store)
	ctx := context.Background()

	p := newOriginal(t, posts, "alice")
	tests := []struct {
		name    string
		comment *models.Comment
		kind    models.ErrorKind
	}{
		{"empty text", &models.Comment{PostID: p.ID, AuthorID: "bob", Text: "  "}, models.KindValidation},
		{"no author", &models.Comment{PostID: p.ID, Text: "hi"}, models.KindValidation},
		{"too long", &models.Comment{PostID: p.ID, AuthorID: "bob", Text: strings.Repeat("a", MaxCommentLength+1)}, models.KindValidation},
		{"missing post", &models.Comment{PostID: "missing", AuthorID: "bob", Text: "hi"}, models.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Add(ctx, tt.comment)
			assert.True(t, models.IsKind(err, tt.kind), "got %v", err)
		})
	}

	_, err := posts.SoftDelete(ctx, p.ID)
	require.NoError(t, err)
	err = repo.Add(ctx, &models.Comment{PostID: p.ID, AuthorID: "bob", Text: "hi"})
	assert.True(t, models.IsKind(err, models.KindNotFound), "deleted posts take no comments")
}

func TestCommentRepository_LengthCountsCharacters(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	posts := NewPostRepository(store)
	repo := NewCommentRepository(store)
	ctx := context.Background()

	p := newOriginal(t, posts, "alice")
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"multibyte at limit", strings.Repeat("🐾", MaxCommentLength), false},
		{"accented at limit", strings.Repeat("é", MaxCommentLength), false},
		{"multibyte over limit", strings.Repeat("🐾", MaxCommentLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Add(ctx, &models.Comment{PostID: p.ID, AuthorID: "bob", Text: tt.text})
			if tt.wantErr {
				assert.True(t, models.IsKind(err, models.KindValidation), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFollowRepository(t *testing.T) {
	t.Parallel()
	repo := NewFollowRepository(setupStore(t))
	ctx := context.Background()

	assert.True(t, models.IsKind(repo.Follow(ctx, "alice", "alice"), models.KindValidation))

	following, err := repo.Following(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, following)
	assert.Empty(t, following)

	require.NoError(t, repo.Follow(ctx, "alice", "bob"))
	following, err = repo.Following(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, following)

	require.NoError(t, repo.Unfollow(ctx, "alice", "bob"))
	assert.True(t, models.IsKind(repo.Unfollow(ctx, "alice", "bob"), models.KindNotFound))
}
