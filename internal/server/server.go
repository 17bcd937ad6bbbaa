// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pawfeed/internal/config"
	"pawfeed/internal/featureflags"
	"pawfeed/internal/feed"
	"pawfeed/internal/middleware"
	"pawfeed/internal/observability"
	"pawfeed/internal/service"
	"pawfeed/internal/state"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Deps are the already-initialized collaborators of a Server.
type Deps struct {
	Config       *config.Config
	Redis        *redis.Client
	State        *state.AppState
	Posts        *service.PostService
	Interactions *service.InteractionService
	Comments     *service.CommentService
	Follows      *service.FollowService
	Discovery    *service.DiscoveryService
	Feeds        *feed.Manager
	Flags        *featureflags.Manager
	Verifier     middleware.Verifier
	// Ping checks the document store for readiness.
	Ping func(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	Deps
	app  *fiber.App
	prom *fiberprometheus.FiberPrometheus
}

// New builds the Fiber app with middleware and routes installed.
func New(d Deps) *Server {
	s := &Server{Deps: d}
	s.app = fiber.New(fiber.Config{
		AppName:      "pawfeed",
		ErrorHandler: errorHandler,
		UnescapePath: true,
	})
	s.prom = httpMetrics()
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s
}

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors on the default registry once, so
// /metrics also serves the domain metrics.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.NewWithRegistry(prometheus.DefaultRegisterer, "pawfeed-api", "http", "", nil)
	})
	return prom
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	s.prom.RegisterAt(app, "/metrics")
	app.Use(s.prom.Middleware)

	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.StructuredLogger())

	origins := s.Config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: !strings.Contains(origins, "*"),
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.ReadinessCheck)
	app.Get("/health/live", s.LivenessCheck)

	identity := []fiber.Handler{middleware.Identity(s.Verifier), middleware.ContextMiddleware()}
	auth := middleware.RequireViewer
	writes := s.writeLimit("writes", 60)

	api := app.Group("/api", identity...)
	api.Get("/feature-flags", s.GetFeatureFlags)

	posts := api.Group("/posts")
	posts.Post("/", auth, writes, s.CreatePost)
	posts.Get("/:id", s.GetPost)
	posts.Delete("/:id", auth, s.DeletePost)
	posts.Post("/:id/restore", auth, s.RestorePost)
	posts.Delete("/:id/hard", auth, s.HardDeletePost)
	posts.Post("/:id/like", auth, s.writeLimit("likes", 120), s.ToggleLike)
	posts.Post("/:id/repost", auth, writes, s.Repost)
	posts.Delete("/:id/repost", auth, s.UndoRepost)
	posts.Get("/:id/comments", s.ListComments)
	posts.Post("/:id/comments", auth, writes, s.CreateComment)
	posts.Delete("/:id/comments/:commentId", auth, s.DeleteComment)

	users := api.Group("/users")
	users.Get("/:id/posts", s.GetUserPosts)
	users.Get("/:id/following", s.GetFollowing)
	users.Post("/:id/follow", auth, s.Follow)
	users.Delete("/:id/follow", auth, s.Unfollow)

	discover := api.Group("/discover")
	discover.Get("/trending", s.Trending)
	discover.Get("/hashtag/:tag", s.ByHashtag)
	discover.Get("/breed/:breed", s.ByBreed)
	discover.Get("/behavior/:behavior", s.ByBehavior)
	discover.Get("/for-you", s.Personalized)

	me := api.Group("/me", auth)
	me.Get("/preferences", s.GetPreferences)
	me.Put("/preferences", s.UpdatePreferences)

	app.Get("/ws/feed", append(identity, s.FeedUpgrade, s.FeedSocket())...)
}

// writeLimit rate-limits writes outside development.
func (s *Server) writeLimit(resource string, perMinute int) fiber.Handler {
	if s.Redis == nil || !s.Config.IsProduction() {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.Redis, perMinute, time.Minute, resource)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if s.Ping != nil {
		if err := s.Ping(ctx); err != nil {
			storeStatus = "unhealthy"
		}
	}

	// Redis only backs the cache and the change relay, so it is optional.
	redisStatus := "unavailable"
	if s.Redis != nil {
		redisStatus = "healthy"
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if storeStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	observability.Logger.Info("server starting", slog.String("port", s.Config.Port))
	return s.app.Listen(":" + s.Config.Port)
}

// Shutdown stops accepting requests and closes every live feed.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.Feeds != nil {
		s.Feeds.Close()
	}
	if s.State != nil {
		if serr := s.State.Save(); serr != nil {
			observability.Logger.Warn("saving local state failed", slog.String("error", serr.Error()))
		}
	}
	return err
}
