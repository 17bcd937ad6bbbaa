// Package sqlstore implements the document store on top of gorm, for
// PostgreSQL in production and SQLite in development and tests.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
	"pawfeed/internal/notifications"
	"pawfeed/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// equalColumns lists the fields FindPosts can filter by equality.
var equalColumns = map[string]string{
	docstore.FieldOwnerID:        "owner_id",
	docstore.FieldType:           "type",
	docstore.FieldOriginalPostID: "original_post_id",
	docstore.FieldDetectedBreed:  "detected_breed",
	docstore.FieldDeleted:        "deleted",
	docstore.FieldDeletedReason:  "deleted_reason",
}

var tagKinds = map[string]string{
	docstore.FieldHashtags:  tagHashtag,
	docstore.FieldBehaviors: tagBehavior,
}

// updateColumns lists the fields UpdatePost may write.
var updateColumns = map[string]string{
	docstore.FieldLikeCount:     "like_count",
	docstore.FieldLikedBy:       "liked_by",
	docstore.FieldRepostCount:   "repost_count",
	docstore.FieldCommentCount:  "comment_count",
	docstore.FieldDeleted:       "deleted",
	docstore.FieldDeletedAt:     "deleted_at",
	docstore.FieldDeletedReason: "deleted_reason",
	docstore.FieldHashtags:      "hashtags",
	docstore.FieldBehaviors:     "behaviors",
}

// Store is a gorm-backed docstore.Store.
type Store struct {
	db      *gorm.DB
	changes docstore.ChangeNotifier
	backend string
	now     func() time.Time
	log     *observability.RepoLogger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the server clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps db. A nil notifier keeps change delivery in-process.
func New(db *gorm.DB, changes docstore.ChangeNotifier, opts ...Option) *Store {
	if changes == nil {
		changes = notifications.NewBus(nil)
	}
	s := &Store{
		db:      db,
		changes: changes,
		backend: db.Dialector.Name(),
		now:     time.Now,
		log:     observability.NewRepoLogger(docstore.CollectionPosts),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates or updates the store tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&postRow{}, &postTagRow{}, &commentRow{}, &followRow{})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) notify(ctx context.Context, events ...docstore.ChangeEvent) {
	if len(events) > 0 {
		s.changes.Notify(context.WithoutCancel(ctx), events...)
	}
}

func postEvent(id, kind string) docstore.ChangeEvent {
	return docstore.ChangeEvent{Collection: docstore.CollectionPosts, DocID: id, Kind: kind}
}

// GetPost implements docstore.Store.
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackStore("get", docstore.CollectionPosts)()
	return getPost(s.db.WithContext(ctx), id)
}

func getPost(db *gorm.DB, id string) (*models.Post, error) {
	row, err := getPostRow(db, id)
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func getPostRow(db *gorm.DB, id string) (*postRow, error) {
	var row postRow
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// CreatePost implements docstore.Store.
func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore("create", docstore.CollectionPosts)()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return s.insertPost(db, post)
	})
	if err != nil {
		return translate(err)
	}
	s.notify(ctx, postEvent(post.ID, docstore.ChangeCreated))
	return nil
}

// insertPost assigns id and createdAt, then writes the row and its tags.
func (s *Store) insertPost(db *gorm.DB, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	post.CreatedAt = s.now().UTC()
	row := toPostRow(post)
	row.Version = 1
	if err := db.Create(row).Error; err != nil {
		return translate(err)
	}
	return writeTags(db, post)
}

func writeTags(db *gorm.DB, post *models.Post) error {
	if err := db.Where("post_id = ?", post.ID).Delete(&postTagRow{}).Error; err != nil {
		return err
	}
	rows := tagRows(post)
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}

// SetPost implements docstore.Store.
func (s *Store) SetPost(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore("set", docstore.CollectionPosts)()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return s.upsertPost(db, post, 0)
	})
	if err != nil {
		return translate(err)
	}
	s.notify(ctx, postEvent(post.ID, docstore.ChangeUpdated))
	return nil
}

// upsertPost replaces the whole document. A non-zero expected version turns
// the replace into a compare-and-swap.
func (s *Store) upsertPost(db *gorm.DB, post *models.Post, expected int64) error {
	if post.ID == "" {
		return fmt.Errorf("set post: %w", docstore.ErrNotFound)
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.now().UTC()
	}
	row := toPostRow(post)

	var existing postRow
	err := db.Select("version").Where("id = ?", post.ID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if expected != 0 {
			return docstore.ErrConflict
		}
		row.Version = 1
		if err := db.Create(row).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if expected != 0 && existing.Version != expected {
			return docstore.ErrConflict
		}
		row.Version = existing.Version + 1
		res := db.Model(&postRow{}).
			Where("id = ? AND version = ?", post.ID, existing.Version).
			Select("*").
			Omit("id").
			Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return docstore.ErrConflict
		}
	}
	return writeTags(db, post)
}

// UpdatePost implements docstore.Store.
func (s *Store) UpdatePost(ctx context.Context, id string, fields docstore.Fields) error {
	defer observability.TrackStore("update", docstore.CollectionPosts)()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return updatePost(db, id, fields, 0)
	})
	if err != nil {
		return translate(err)
	}
	s.notify(ctx, postEvent(id, docstore.ChangeUpdated))
	return nil
}

// updatePost writes a partial update. With expected == 0 the version is
// bumped unconditionally; otherwise the write fails with ErrConflict when the
// row moved on since it was read.
func updatePost(db *gorm.DB, id string, fields docstore.Fields, expected int64) error {
	values, err := columnValues(fields)
	if err != nil {
		return err
	}
	values["version"] = gorm.Expr("version + 1")

	q := db.Model(&postRow{}).Where("id = ?", id)
	if expected != 0 {
		q = q.Where("version = ?", expected)
	}
	res := q.Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if expected != 0 {
			return docstore.ErrConflict
		}
		return docstore.ErrNotFound
	}

	_, hashtags := fields[docstore.FieldHashtags]
	_, behaviors := fields[docstore.FieldBehaviors]
	if hashtags || behaviors {
		row, err := getPostRow(db, id)
		if err != nil {
			return err
		}
		return writeTags(db, row.toModel())
	}
	return nil
}

func columnValues(fields docstore.Fields) (map[string]any, error) {
	values := make(map[string]any, len(fields)+1)
	for field, v := range fields {
		col, ok := updateColumns[field]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not updatable", docstore.ErrUnsupportedQuery, field)
		}
		switch tv := v.(type) {
		case []string:
			values[col] = strings2JSON(tv)
		case time.Time:
			values[col] = tv.UTC()
		case nil:
			values[col] = gorm.Expr("NULL")
		default:
			values[col] = v
		}
	}
	return values, nil
}

// DeletePost implements docstore.Store.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	defer observability.TrackStore("delete", docstore.CollectionPosts)()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return deletePost(db, id, 0)
	})
	if err != nil {
		return translate(err)
	}
	s.notify(ctx, postEvent(id, docstore.ChangeDeleted))
	return nil
}

func deletePost(db *gorm.DB, id string, expected int64) error {
	q := db.Where("id = ?", id)
	if expected != 0 {
		q = q.Where("version = ?", expected)
	}
	res := q.Delete(&postRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if expected != 0 {
			return docstore.ErrConflict
		}
		return docstore.ErrNotFound
	}
	return db.Where("post_id = ?", id).Delete(&postTagRow{}).Error
}

// FindPosts implements docstore.Store.
func (s *Store) FindPosts(ctx context.Context, q docstore.Query) ([]*models.Post, error) {
	defer observability.TrackStore("find", docstore.CollectionPosts)()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx).Model(&postRow{})
	for _, f := range q.Filters {
		value := normalizeValue(f.Value)
		switch f.Op {
		case docstore.OpEqual:
			col, ok := equalColumns[f.Field]
			if !ok {
				return nil, fmt.Errorf("%w: no equality filter on %q", docstore.ErrUnsupportedQuery, f.Field)
			}
			db = db.Where(clause.Eq{Column: clause.Column{Name: col}, Value: value})
		case docstore.OpArrayContains:
			sub := s.db.Model(&postTagRow{}).Select("post_id").
				Where("kind = ? AND value = ?", tagKinds[f.Field], value)
			db = db.Where("id IN (?)", sub)
		}
	}
	if q.NewestFirst {
		db = db.Order("created_at DESC").Order("id DESC")
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []postRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*models.Post, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch tv := v.(type) {
	case models.PostType:
		return string(tv)
	case fmt.Stringer:
		return tv.String()
	default:
		return v
	}
}

// RunTransaction implements docstore.Store. Writes check the version each
// document had when the transaction read it, so a concurrent commit makes
// this one fail with ErrConflict instead of overwriting it.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	defer observability.TrackStore("transaction", docstore.CollectionPosts)()
	span, ctx := observability.StartStoreSpan(ctx, s.backend, "transaction", docstore.CollectionPosts)
	defer span.End()

	var events []docstore.ChangeEvent
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		t := &txn{store: s, db: db, versions: make(map[string]int64)}
		if err := fn(ctx, t); err != nil {
			return err
		}
		events = t.events
		return nil
	})
	if err != nil {
		err = translate(err)
		span.SetError(err)
		return err
	}
	s.notify(ctx, events...)
	return nil
}

// ListComments implements docstore.Store, newest first.
func (s *Store) ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	defer observability.TrackStore("list", docstore.CollectionComments)()
	q := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []commentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*models.Comment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// DeleteComments implements docstore.Store.
func (s *Store) DeleteComments(ctx context.Context, postID string) (int, error) {
	defer observability.TrackStore("delete_all", docstore.CollectionComments)()
	res := s.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&commentRow{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	if res.RowsAffected > 0 {
		s.notify(ctx, docstore.ChangeEvent{Collection: docstore.CollectionComments, DocID: postID, Kind: docstore.ChangeDeleted})
	}
	return int(res.RowsAffected), nil
}

// Follow implements docstore.Store. Following twice is a no-op.
func (s *Store) Follow(ctx context.Context, followerID, followedID string) error {
	defer observability.TrackStore("create", docstore.CollectionFollows)()
	row := followRow{FollowerID: followerID, FollowedID: followedID, CreatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return translate(err)
	}
	s.notify(ctx, docstore.ChangeEvent{Collection: docstore.CollectionFollows, DocID: followerID, Kind: docstore.ChangeUpdated})
	return nil
}

// Unfollow implements docstore.Store.
func (s *Store) Unfollow(ctx context.Context, followerID, followedID string) error {
	defer observability.TrackStore("delete", docstore.CollectionFollows)()
	res := s.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&followRow{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return docstore.ErrNotFound
	}
	s.notify(ctx, docstore.ChangeEvent{Collection: docstore.CollectionFollows, DocID: followerID, Kind: docstore.ChangeUpdated})
	return nil
}

// ListFollowing implements docstore.Store.
func (s *Store) ListFollowing(ctx context.Context, followerID string) ([]string, error) {
	defer observability.TrackStore("list", docstore.CollectionFollows)()
	var ids []string
	err := s.db.WithContext(ctx).Model(&followRow{}).
		Where("follower_id = ?", followerID).
		Order("created_at ASC").
		Pluck("followed_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

var _ docstore.Store = (*Store)(nil)
