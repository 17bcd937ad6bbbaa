package sqlstore

import (
	"errors"
	"fmt"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errReadAfterWrite mirrors managed document stores, which reject reads once a
// transaction has started writing.
var errReadAfterWrite = errors.New("docstore: transaction read after write")

// txn implements docstore.Tx. versions remembers the version of every post
// read so that later writes to it can compare-and-swap.
type txn struct {
	store    *Store
	db       *gorm.DB
	versions map[string]int64
	wrote    bool
	events   []docstore.ChangeEvent
}

func (t *txn) beforeRead() error {
	if t.wrote {
		return errReadAfterWrite
	}
	return nil
}

// bump tracks this transaction's own write so a second write to the same
// document does not conflict with the first.
func (t *txn) bump(id string) {
	if v := t.versions[id]; v != 0 {
		t.versions[id] = v + 1
	}
}

func (t *txn) GetPost(id string) (*models.Post, error) {
	if err := t.beforeRead(); err != nil {
		return nil, err
	}
	row, err := getPostRow(t.db, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			// A later create of this id must still see it absent.
			t.versions[id] = 0
		}
		return nil, err
	}
	t.versions[id] = row.Version
	return row.toModel(), nil
}

func (t *txn) CreatePost(post *models.Post) error {
	t.wrote = true
	if err := t.store.insertPost(t.db, post); err != nil {
		return err
	}
	t.versions[post.ID] = 1
	t.events = append(t.events, postEvent(post.ID, docstore.ChangeCreated))
	return nil
}

func (t *txn) SetPost(post *models.Post) error {
	t.wrote = true
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	expected, read := t.versions[post.ID]
	if read && expected == 0 {
		// Read as absent: the set must still create the document.
		if err := t.store.insertPost(t.db, post); err != nil {
			if errors.Is(err, docstore.ErrAlreadyExists) {
				return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
			}
			return err
		}
		t.versions[post.ID] = 1
		t.events = append(t.events, postEvent(post.ID, docstore.ChangeCreated))
		return nil
	}
	if err := t.store.upsertPost(t.db, post, expected); err != nil {
		return err
	}
	t.bump(post.ID)
	t.events = append(t.events, postEvent(post.ID, docstore.ChangeUpdated))
	return nil
}

func (t *txn) UpdatePost(id string, fields docstore.Fields) error {
	t.wrote = true
	if err := updatePost(t.db, id, fields, t.versions[id]); err != nil {
		return err
	}
	t.bump(id)
	t.events = append(t.events, postEvent(id, docstore.ChangeUpdated))
	return nil
}

func (t *txn) DeletePost(id string) error {
	t.wrote = true
	if err := deletePost(t.db, id, t.versions[id]); err != nil {
		return err
	}
	delete(t.versions, id)
	t.events = append(t.events, postEvent(id, docstore.ChangeDeleted))
	return nil
}

func (t *txn) GetComment(postID, commentID string) (*models.Comment, error) {
	if err := t.beforeRead(); err != nil {
		return nil, err
	}
	var row commentRow
	if err := t.db.Where("id = ? AND post_id = ?", commentID, postID).Take(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toModel(), nil
}

func (t *txn) CreateComment(comment *models.Comment) error {
	t.wrote = true
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.CreatedAt = t.store.now().UTC()
	if err := t.db.Create(toCommentRow(comment)).Error; err != nil {
		return translate(err)
	}
	t.events = append(t.events, docstore.ChangeEvent{
		Collection: docstore.CollectionComments, DocID: comment.ID, Kind: docstore.ChangeCreated,
	})
	return nil
}

func (t *txn) DeleteComment(postID, commentID string) error {
	t.wrote = true
	res := t.db.Where("id = ? AND post_id = ?", commentID, postID).Delete(&commentRow{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return docstore.ErrNotFound
	}
	t.events = append(t.events, docstore.ChangeEvent{
		Collection: docstore.CollectionComments, DocID: commentID, Kind: docstore.ChangeDeleted,
	})
	return nil
}

var _ docstore.Tx = (*txn)(nil)
