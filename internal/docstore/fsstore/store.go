// Package fsstore implements the document store on Cloud Firestore.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const backend = "firestore"

// NewApp initialises a Firebase app. An empty credentials path falls back to
// application default credentials (or the emulator when FIRESTORE_EMULATOR_HOST is set).
func NewApp(ctx context.Context, projectID, credentialsPath string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

// Store is a Firestore-backed docstore.Store.
type Store struct {
	client *firestore.Client
	log    *observability.RepoLogger
}

// New opens a Firestore client from app.
func New(ctx context.Context, app *firebase.App) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}
	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *firestore.Client) *Store {
	return &Store{client: client, log: observability.NewRepoLogger(docstore.CollectionPosts)}
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) posts() *firestore.CollectionRef {
	return s.client.Collection(docstore.CollectionPosts)
}

func (s *Store) comments(postID string) *firestore.CollectionRef {
	return s.posts().Doc(postID).Collection(docstore.CollectionComments)
}

func (s *Store) follows() *firestore.CollectionRef {
	return s.client.Collection(docstore.CollectionFollows)
}

func followID(followerID, followedID string) string {
	return followerID + "_" + followedID
}

// translate maps gRPC status codes onto docstore sentinel errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	case codes.Aborted:
		return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %v", docstore.ErrUnsupportedQuery, err)
	}
	return err
}

func decodePost(snap *firestore.DocumentSnapshot) (*models.Post, error) {
	var p models.Post
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// updates converts a partial update into Firestore field paths; nil deletes the field.
func updates(fields docstore.Fields) []firestore.Update {
	out := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		if v == nil {
			v = firestore.Delete
		}
		out = append(out, firestore.Update{Path: path, Value: v})
	}
	return out
}

// GetPost implements docstore.Store.
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackStore("get", docstore.CollectionPosts)()
	snap, err := s.posts().Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return decodePost(snap)
}

// CreatePost implements docstore.Store. createdAt is a server timestamp.
func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore("create", docstore.CollectionPosts)()
	ref := s.posts().NewDoc()
	if post.ID != "" {
		ref = s.posts().Doc(post.ID)
	}
	post.CreatedAt = time.Time{}
	wr, err := ref.Create(ctx, post)
	if err != nil {
		return translate(err)
	}
	post.ID = ref.ID
	post.CreatedAt = wr.UpdateTime.UTC()
	return nil
}

// SetPost implements docstore.Store.
func (s *Store) SetPost(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore("set", docstore.CollectionPosts)()
	if post.ID == "" {
		return fmt.Errorf("set post: %w", docstore.ErrNotFound)
	}
	_, err := s.posts().Doc(post.ID).Set(ctx, post)
	return translate(err)
}

// UpdatePost implements docstore.Store.
func (s *Store) UpdatePost(ctx context.Context, id string, fields docstore.Fields) error {
	defer observability.TrackStore("update", docstore.CollectionPosts)()
	_, err := s.posts().Doc(id).Update(ctx, updates(fields))
	return translate(err)
}

// DeletePost implements docstore.Store.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	defer observability.TrackStore("delete", docstore.CollectionPosts)()
	_, err := s.posts().Doc(id).Delete(ctx, firestore.Exists)
	return translate(err)
}

func (s *Store) query(q docstore.Query) firestore.Query {
	fq := s.posts().Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.NewestFirst {
		fq = fq.OrderBy(docstore.FieldCreatedAt, firestore.Desc)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

// FindPosts implements docstore.Store.
func (s *Store) FindPosts(ctx context.Context, q docstore.Query) ([]*models.Post, error) {
	defer observability.TrackStore("find", docstore.CollectionPosts)()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	snaps, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, translate(err)
	}
	return decodeAll(snaps)
}

func decodeAll(snaps []*firestore.DocumentSnapshot) ([]*models.Post, error) {
	out := make([]*models.Post, 0, len(snaps))
	for _, snap := range snaps {
		p, err := decodePost(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// RunTransaction implements docstore.Store.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	defer observability.TrackStore("transaction", docstore.CollectionPosts)()
	span, ctx := observability.StartStoreSpan(ctx, backend, "transaction", docstore.CollectionPosts)
	defer span.End()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		return fn(ctx, &txn{store: s, tx: ftx})
	})
	if err != nil {
		err = translate(err)
		span.SetError(err)
	}
	return err
}

// ListComments implements docstore.Store, newest first.
func (s *Store) ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	defer observability.TrackStore("list", docstore.CollectionComments)()
	q := s.comments(postID).OrderBy(docstore.FieldCreatedAt, firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*models.Comment, 0, len(snaps))
	for _, snap := range snaps {
		var c models.Comment
		if err := snap.DataTo(&c); err != nil {
			return nil, err
		}
		c.ID = snap.Ref.ID
		c.PostID = postID
		out = append(out, &c)
	}
	return out, nil
}

// DeleteComments implements docstore.Store.
func (s *Store) DeleteComments(ctx context.Context, postID string) (int, error) {
	defer observability.TrackStore("delete_all", docstore.CollectionComments)()
	refs, err := s.comments(postID).DocumentRefs(ctx).GetAll()
	if err != nil {
		return 0, translate(err)
	}
	if len(refs) == 0 {
		return 0, nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return 0, translate(err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = translate(err)
			}
			continue
		}
		deleted++
	}
	return deleted, firstErr
}

// Follow implements docstore.Store.
func (s *Store) Follow(ctx context.Context, followerID, followedID string) error {
	defer observability.TrackStore("create", docstore.CollectionFollows)()
	_, err := s.follows().Doc(followID(followerID, followedID)).Set(ctx, models.Follow{
		FollowerID: followerID,
		FollowedID: followedID,
	})
	return translate(err)
}

// Unfollow implements docstore.Store.
func (s *Store) Unfollow(ctx context.Context, followerID, followedID string) error {
	defer observability.TrackStore("delete", docstore.CollectionFollows)()
	_, err := s.follows().Doc(followID(followerID, followedID)).Delete(ctx, firestore.Exists)
	return translate(err)
}

// ListFollowing implements docstore.Store.
func (s *Store) ListFollowing(ctx context.Context, followerID string) ([]string, error) {
	defer observability.TrackStore("list", docstore.CollectionFollows)()
	iter := s.follows().Where("followerId", "==", followerID).Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, translate(err)
		}
		var f models.Follow
		if err := snap.DataTo(&f); err != nil {
			return nil, err
		}
		ids = append(ids, f.FollowedID)
	}
	return ids, nil
}

type watch struct {
	iter   *firestore.QuerySnapshotIterator
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *watch) Stop() {
	w.once.Do(func() {
		w.cancel()
		w.iter.Stop()
	})
	<-w.done
}

// WatchPosts implements docstore.Store on Firestore's snapshot listener.
func (s *Store) WatchPosts(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &watch{iter: s.query(q).Snapshots(wctx), cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		for {
			snap, err := w.iter.Next()
			if wctx.Err() != nil {
				return
			}
			if err != nil {
				s.log.LogError(wctx, translate(err), "watch", nil)
				return
			}
			posts, err := decodeAll(snapshotDocs(snap))
			if err != nil {
				s.log.LogError(wctx, err, "watch", nil)
				continue
			}
			s.deliver(fn, posts)
		}
	}()
	return w, nil
}

func snapshotDocs(snap *firestore.QuerySnapshot) []*firestore.DocumentSnapshot {
	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil
	}
	return docs
}

func (s *Store) deliver(fn docstore.SnapshotFunc, posts []*models.Post) {
	defer func() {
		if r := recover(); r != nil {
			observability.Logger.Error("panic in post watch",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn(posts)
}

var _ docstore.Store = (*Store)(nil)
