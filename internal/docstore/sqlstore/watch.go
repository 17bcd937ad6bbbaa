package sqlstore

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"pawfeed/internal/docstore"
	"pawfeed/internal/observability"
)

// watch re-runs a query whenever a post change is announced and pushes the
// full result set. Bursts of changes coalesce into one re-run.
type watch struct {
	cancel       context.CancelFunc
	cancelListen func()
	done         chan struct{}
	once         sync.Once
}

// Stop detaches the watch and waits for an in-flight delivery to finish.
// It must not be called from inside the snapshot callback.
func (w *watch) Stop() {
	w.once.Do(func() {
		w.cancelListen()
		w.cancel()
	})
	<-w.done
}

// WatchPosts implements docstore.Store. The first snapshot is delivered
// asynchronously right after subscribing.
func (s *Store) WatchPosts(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	wake := make(chan struct{}, 1)
	w := &watch{cancel: cancel, done: make(chan struct{})}
	w.cancelListen = s.changes.Listen(func(ev docstore.ChangeEvent) {
		if ev.Collection != docstore.CollectionPosts {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(w.done)
		for {
			s.deliver(wctx, q, fn)
			select {
			case <-wctx.Done():
				return
			case <-wake:
			}
		}
	}()

	return w, nil
}

func (s *Store) deliver(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) {
	defer func() {
		if r := recover(); r != nil {
			observability.Logger.Error("panic in post watch",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	posts, err := s.FindPosts(ctx, q)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.log.LogError(ctx, err, "watch", nil)
		return
	}
	fn(posts)
}
