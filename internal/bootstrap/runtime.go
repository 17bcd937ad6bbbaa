// Package bootstrap wires configuration into live infrastructure and the
// service graph shared by the server and seed commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pawfeed/internal/cache"
	"pawfeed/internal/config"
	"pawfeed/internal/database"
	"pawfeed/internal/docstore"
	"pawfeed/internal/docstore/fsstore"
	"pawfeed/internal/docstore/sqlstore"
	"pawfeed/internal/featureflags"
	"pawfeed/internal/feed"
	"pawfeed/internal/middleware"
	"pawfeed/internal/notifications"
	"pawfeed/internal/observability"
	"pawfeed/internal/repository"
	"pawfeed/internal/seed"
	"pawfeed/internal/service"
	"pawfeed/internal/state"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
)

// Runtime is the infrastructure a process talks to.
type Runtime struct {
	Config   *config.Config
	Redis    *redis.Client
	Bus      *notifications.Bus
	Store    docstore.Store
	Firebase *firebase.App
	// Ping checks the document store for readiness.
	Ping func(ctx context.Context) error
}

// InitRuntime connects Redis (optional) and opens the configured document store.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	// Nil when unreachable: no cache and no cross-process change relay.
	rt.Redis = cache.Connect(cfg.RedisURL)
	rt.Bus = notifications.NewBus(rt.Redis)

	if err := rt.openStore(ctx); err != nil {
		rt.closeRedis()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.StoreBackend {
	case config.BackendPostgres, config.BackendSQLite:
		db, err := database.Connect(cfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		store := sqlstore.New(db, rt.Bus)
		if err := store.AutoMigrate(); err != nil {
			_ = store.Close()
			return fmt.Errorf("migrate store: %w", err)
		}
		rt.Store = store
		rt.Ping = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	case config.BackendFirestore:
		app, err := rt.firebaseApp(ctx)
		if err != nil {
			return err
		}
		store, err := fsstore.New(ctx, app)
		if err != nil {
			return err
		}
		rt.Store = store
		rt.Ping = func(ctx context.Context) error {
			_, err := store.FindPosts(ctx, docstore.Query{Limit: 1})
			return err
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	observability.Logger.Info("document store ready", slog.String("backend", cfg.StoreBackend))
	return nil
}

func (rt *Runtime) firebaseApp(ctx context.Context) (*firebase.App, error) {
	if rt.Firebase != nil {
		return rt.Firebase, nil
	}
	app, err := fsstore.NewApp(ctx, rt.Config.FirestoreProj, rt.Config.FirebaseCreds)
	if err != nil {
		return nil, err
	}
	rt.Firebase = app
	return app, nil
}

// Verifier returns the bearer-token verifier selected by IDENTITY_PROVIDER.
func (rt *Runtime) Verifier(ctx context.Context) (middleware.Verifier, error) {
	switch rt.Config.IdentityProv {
	case config.IdentityFirebase:
		app, err := rt.firebaseApp(ctx)
		if err != nil {
			return nil, err
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firebase auth client: %w", err)
		}
		return middleware.NewFirebaseVerifier(client), nil
	case config.IdentityJWT, "":
		return middleware.NewJWTVerifier(rt.Config.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", rt.Config.IdentityProv)
	}
}

// StartRelay forwards change events from other processes to local watchers.
func (rt *Runtime) StartRelay(ctx context.Context) error {
	return rt.Bus.StartRelay(ctx)
}

// Close releases the store and Redis connections.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	errs = append(errs, rt.closeRedis())
	return errors.Join(errs...)
}

func (rt *Runtime) closeRedis() error {
	if rt.Redis == nil {
		return nil
	}
	return rt.Redis.Close()
}

// Services is the repository and service graph over one Runtime.
type Services struct {
	State        *state.AppState
	Flags        *featureflags.Manager
	Posts        repository.PostRepository
	FollowRepo   repository.FollowRepository
	PostSvc      *service.PostService
	Interactions *service.InteractionService
	Comments     *service.CommentService
	Follows      *service.FollowService
	Discovery    *service.DiscoveryService
	Feeds        *feed.Manager
}

// NewServices builds the services over rt. Follow changes re-subscribe the
// affected following-tab feeds.
func NewServices(rt *Runtime, app *state.AppState) *Services {
	cfg := rt.Config
	store := rt.Store
	flags := featureflags.NewManager(cfg.FeatureFlags)
	observability.Logger.Info("feature flags loaded", slog.Any("flags", flags.Raw()))
	moderators := cfg.Moderators()

	posts := repository.NewPostRepository(store)
	followRepo := repository.NewFollowRepository(store)
	interactions := service.NewInteractionService(store, posts, app)
	follows := service.NewFollowService(followRepo, app)
	feeds := feed.NewManager(store, follows, feed.Config{
		Window:      cfg.FeedWindow,
		LoadTimeout: cfg.FeedLoadTimeout,
		Seed:        seed.FallbackPosts,
		Flags:       flags,
	})
	follows.OnChange(feeds.FollowingChanged)

	discovery := service.NewDiscoveryService(store, cache.New(rt.Redis), flags, app,
		service.WithCacheTTL(cfg.DiscoveryCacheTTL))
	postSvc := service.NewPostService(posts, interactions, app, func(id string) bool { return moderators[id] })
	postSvc.OnVisibilityChange(discovery.InvalidateTrending)

	return &Services{
		State:        app,
		Flags:        flags,
		Posts:        posts,
		FollowRepo:   followRepo,
		PostSvc:      postSvc,
		Interactions: interactions,
		Comments:     service.NewCommentService(repository.NewCommentRepository(store)),
		Follows:      follows,
		Discovery:    discovery,
		Feeds:        feeds,
	}
}
