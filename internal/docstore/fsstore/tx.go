package fsstore

import (
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"

	"cloud.google.com/go/firestore"
)

// txn adapts a Firestore transaction to docstore.Tx. Firestore itself rejects
// reads issued after the first write.
type txn struct {
	store *Store
	tx    *firestore.Transaction
}

func (t *txn) GetPost(id string) (*models.Post, error) {
	snap, err := t.tx.Get(t.store.posts().Doc(id))
	if err != nil {
		return nil, translate(err)
	}
	return decodePost(snap)
}

func (t *txn) CreatePost(post *models.Post) error {
	ref := t.store.posts().NewDoc()
	if post.ID != "" {
		ref = t.store.posts().Doc(post.ID)
	}
	post.ID = ref.ID
	post.CreatedAt = time.Time{}
	if err := t.tx.Create(ref, post); err != nil {
		return translate(err)
	}
	// The stored value is the commit timestamp; this is the local estimate.
	post.CreatedAt = time.Now().UTC()
	return nil
}

func (t *txn) SetPost(post *models.Post) error {
	ref := t.store.posts().NewDoc()
	if post.ID != "" {
		ref = t.store.posts().Doc(post.ID)
	}
	post.ID = ref.ID
	return translate(t.tx.Set(ref, post))
}

func (t *txn) UpdatePost(id string, fields docstore.Fields) error {
	return translate(t.tx.Update(t.store.posts().Doc(id), updates(fields)))
}

func (t *txn) DeletePost(id string) error {
	return translate(t.tx.Delete(t.store.posts().Doc(id), firestore.Exists))
}

func (t *txn) GetComment(postID, commentID string) (*models.Comment, error) {
	snap, err := t.tx.Get(t.store.comments(postID).Doc(commentID))
	if err != nil {
		return nil, translate(err)
	}
	var c models.Comment
	if err := snap.DataTo(&c); err != nil {
		return nil, err
	}
	c.ID = snap.Ref.ID
	c.PostID = postID
	return &c, nil
}

func (t *txn) CreateComment(comment *models.Comment) error {
	ref := t.store.comments(comment.PostID).NewDoc()
	if comment.ID != "" {
		ref = t.store.comments(comment.PostID).Doc(comment.ID)
	}
	comment.ID = ref.ID
	comment.CreatedAt = time.Time{}
	if err := t.tx.Create(ref, comment); err != nil {
		return translate(err)
	}
	comment.CreatedAt = time.Now().UTC()
	return nil
}

func (t *txn) DeleteComment(postID, commentID string) error {
	return translate(t.tx.Delete(t.store.comments(postID).Doc(commentID), firestore.Exists))
}

var _ docstore.Tx = (*txn)(nil)
