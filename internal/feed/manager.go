package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pawfeed/internal/docstore"
	"pawfeed/internal/featureflags"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// State is the lifecycle of one subscription.
type State string

const (
	StateIdle         State = "idle"
	StateSubscribed   State = "subscribed"
	StateRecomputing  State = "recomputing"
	StatePublished    State = "published"
	StateUnsubscribed State = "unsubscribed"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultWindow      = 100
	DefaultLoadTimeout = 8 * time.Second
	seedCount          = 12
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("feed: manager closed")

// Snapshot is one published feed state.
type Snapshot struct {
	Seq      uint64             `json:"seq"`
	ViewerID string             `json:"viewerId,omitempty"`
	Tab      Tab                `json:"tab"`
	Entries  []models.FeedEntry `json:"entries"`
	Seed     bool               `json:"seed"`
}

// PublishFunc receives snapshots in order. It runs on the subscription's
// worker and must not call Stop on the same subscription.
type PublishFunc func(Snapshot)

// FollowingSource resolves a viewer's following set.
type FollowingSource interface {
	Following(ctx context.Context, followerID string) ([]string, error)
}

// Config tunes the manager.
type Config struct {
	Window      int
	LoadTimeout time.Duration
	// Seed returns fallback posts for the for-you tab; nil disables the fallback.
	Seed  func(n int) []*models.Post
	Flags *featureflags.Manager
}

// Request identifies a subscription. Key defaults to ViewerID; anonymous
// viewers need a per-connection key.
type Request struct {
	Key      string
	ViewerID string
	Tab      Tab
}

func (r Request) key() string {
	if r.Key != "" {
		return r.Key
	}
	return r.ViewerID
}

// Manager owns at most one live subscription per key.
type Manager struct {
	store   docstore.Store
	follows FollowingSource
	cfg     Config

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

func NewManager(store docstore.Store, follows FollowingSource, cfg Config) *Manager {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	return &Manager{store: store, follows: follows, cfg: cfg, subs: make(map[string]*Subscription)}
}

// Subscribe starts a live feed for req. An existing subscription under the
// same key is stopped before the new one is established.
func (m *Manager) Subscribe(ctx context.Context, req Request, publish PublishFunc) (*Subscription, error) {
	if req.key() == "" {
		return nil, models.NewValidationError("subscription key is required")
	}
	if req.Tab == "" {
		req.Tab = TabForYou
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if old := m.subs[req.key()]; old != nil {
		delete(m.subs, req.key())
		old.stop()
	}

	sub, err := m.start(ctx, req, publish)
	if err != nil {
		return nil, err
	}
	m.subs[req.key()] = sub
	return sub, nil
}

// FollowingChanged re-subscribes viewerID's following-tab feed so it picks up
// the new following set.
func (m *Manager) FollowingChanged(viewerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	old := m.subs[viewerID]
	if old == nil || old.req.Tab != TabFollowing {
		return
	}
	delete(m.subs, viewerID)
	old.stop()

	sub, err := m.start(old.baseCtx, old.req, old.publish)
	if err != nil {
		observability.Logger.Warn("feed resubscribe failed",
			slog.String("viewer_id", viewerID), slog.String("error", err.Error()))
		return
	}
	sub.origin = old.origin
	m.subs[viewerID] = sub
}

// Active returns the live subscription under key, if any.
func (m *Manager) Active(key string) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[key]
}

// Close stops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for key, sub := range m.subs {
		delete(m.subs, key)
		sub.stop()
	}
}

// release unregisters the live subscription that sub started, if any.
func (m *Manager) release(sub *Subscription) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.subs[sub.req.key()]
	if cur == nil || cur.origin != sub.origin {
		return nil
	}
	delete(m.subs, sub.req.key())
	return cur
}

// start must be called with m.mu held.
func (m *Manager) start(ctx context.Context, req Request, publish PublishFunc) (*Subscription, error) {
	base := context.WithoutCancel(ctx)
	sctx, cancel := context.WithCancel(base)
	sub := &Subscription{
		mgr:     m,
		req:     req,
		publish: publish,
		baseCtx: base,
		ctx:     sctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
	sub.origin = sub

	if req.Tab == TabFollowing {
		sub.following = make(map[string]bool)
		if req.ViewerID != "" {
			ids, err := m.follows.Following(sctx, req.ViewerID)
			if err != nil {
				cancel()
				return nil, err
			}
			for _, id := range ids {
				sub.following[id] = true
			}
		}
	}

	q := docstore.Query{NewestFirst: true, Limit: m.cfg.Window}
	watch, err := m.store.WatchPosts(sctx, q, sub.offer)
	if err != nil {
		cancel()
		return nil, err
	}
	sub.watch = watch
	sub.setState(StateSubscribed)
	observability.FeedSubscriptions.Inc()

	var fallback <-chan time.Time
	if m.seedEnabled(req) {
		sub.timer = time.NewTimer(m.cfg.LoadTimeout)
		fallback = sub.timer.C
	}
	go sub.run(fallback)
	return sub, nil
}

func (m *Manager) seedEnabled(req Request) bool {
	if req.Tab != TabForYou || m.cfg.Seed == nil {
		return false
	}
	return m.cfg.Flags == nil || m.cfg.Flags.Enabled(featureflags.FeedSeedFallback, req.ViewerID)
}

// Subscription is one live consolidated feed.
type Subscription struct {
	mgr       *Manager
	// origin is the subscription the caller holds; FollowingChanged
	// replacements keep it so Stop on the original handle reaches them.
	origin    *Subscription
	req       Request
	publish   PublishFunc
	following map[string]bool

	baseCtx context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	watch   docstore.Subscription
	timer   *time.Timer

	// single-slot mailbox: only the newest pending window is kept
	mu      sync.Mutex
	pending []*models.Post
	has     bool
	state   State
	wake    chan struct{}
	done    chan struct{}

	seq      uint64
	hasPosts bool
	showSeed bool
	stopOnce sync.Once
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tab returns the subscribed tab.
func (s *Subscription) Tab() Tab { return s.req.Tab }

// Stop detaches the store listener and waits for the worker to exit. No
// snapshot is published after Stop returns, including from a replacement
// started by FollowingChanged.
func (s *Subscription) Stop() {
	if cur := s.mgr.release(s); cur != nil && cur != s {
		cur.stop()
	}
	s.stop()
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		s.setState(StateUnsubscribed)
		s.watch.Stop()
		s.cancel()
		<-s.done
		if s.timer != nil {
			s.timer.Stop()
		}
		observability.FeedSubscriptions.Dec()
	})
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnsubscribed {
		return
	}
	s.state = st
}

// offer is the store callback. It replaces any window not yet processed.
func (s *Subscription) offer(posts []*models.Post) {
	s.mu.Lock()
	s.pending, s.has = posts, true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) take() ([]*models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, ok := s.pending, s.has
	s.pending, s.has = nil, false
	return posts, ok
}

func (s *Subscription) run(fallback <-chan time.Time) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-fallback:
			fallback = nil
			if !s.hasPosts {
				s.showSeed = true
				s.emit(SeedEntries(s.mgr.cfg.Seed(seedCount), s.req.ViewerID), true)
			}
		case <-s.wake:
			posts, ok := s.take()
			if !ok {
				continue
			}
			s.recompute(posts)
		}
	}
}

func (s *Subscription) recompute(posts []*models.Post) {
	s.setState(StateRecomputing)
	start := time.Now()
	span, ctx := observability.NewSpan(s.ctx, "feed.recompute",
		attribute.String("feed.tab", string(s.req.Tab)),
		attribute.Int("feed.window", len(posts)),
	)
	defer span.End()

	view := View{ViewerID: s.req.ViewerID, Tab: s.req.Tab, Following: s.following}
	entries := Consolidate(ctx, posts, view, s.mgr.fetch)
	observability.FeedRecomputeLatency.WithLabelValues(string(s.req.Tab)).Observe(time.Since(start).Seconds())
	if ctx.Err() != nil {
		return
	}

	if len(entries) > 0 {
		s.hasPosts = true
		s.showSeed = false
	}
	if len(entries) == 0 && s.showSeed {
		s.emit(SeedEntries(s.mgr.cfg.Seed(seedCount), s.req.ViewerID), true)
		return
	}
	s.emit(entries, false)
}

func (s *Subscription) emit(entries []models.FeedEntry, seed bool) {
	if s.ctx.Err() != nil {
		return
	}
	s.seq++
	source := "store"
	if seed {
		source = "seed"
	}
	s.publish(Snapshot{
		Seq:      s.seq,
		ViewerID: s.req.ViewerID,
		Tab:      s.req.Tab,
		Entries:  entries,
		Seed:     seed,
	})
	observability.FeedPublishes.WithLabelValues(string(s.req.Tab), source).Inc()
	s.setState(StatePublished)
}

func (m *Manager) fetch(ctx context.Context, id string) (*models.Post, error) {
	p, err := m.store.GetPost(ctx, id)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		observability.Logger.WarnContext(ctx, "feed original fetch failed",
			slog.String("post_id", id), slog.String("error", err.Error()))
	}
	return p, err
}
