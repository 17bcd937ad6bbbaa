package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pawfeed/internal/feed"
	"pawfeed/internal/middleware"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const feedWriteTimeout = 10 * time.Second

// feedCommand is sent by clients to switch tabs on an open feed socket.
type feedCommand struct {
	Tab string `json:"tab"`
}

// FeedUpgrade rejects plain HTTP requests to the feed socket.
func (s *Server) FeedUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// FeedSocket handles GET /ws/feed?tab=for_you|following. Each socket holds one
// feed subscription; snapshots are written newest-wins so a slow client never
// stalls the recompute worker.
func (s *Server) FeedSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		viewerID, _ := conn.Locals(middleware.LocalViewerID).(string)
		key := viewerID
		if key == "" {
			key = "anon-" + uuid.NewString()
		}

		ctx := observability.WithViewerID(context.Background(), viewerID)
		latest := make(chan feed.Snapshot, 1)
		publish := func(snap feed.Snapshot) {
			select {
			case <-latest:
			default:
			}
			latest <- snap
		}

		subscribe := func(tab feed.Tab) *feed.Subscription {
			sub, err := s.Feeds.Subscribe(ctx, feed.Request{Key: key, ViewerID: viewerID, Tab: tab}, publish)
			if err != nil {
				observability.Logger.WarnContext(ctx, "feed subscribe failed", slog.String("error", err.Error()))
				_ = conn.WriteJSON(models.ErrorResponse{Error: "feed unavailable"})
				return nil
			}
			return sub
		}

		sub := subscribe(feed.ParseTab(conn.Query("tab")))
		if sub == nil {
			_ = conn.Close()
			return
		}
		defer func() {
			if sub != nil {
				sub.Stop()
			}
		}()

		commands := make(chan feed.Tab)
		closed := make(chan struct{})
		done := make(chan struct{})
		defer close(done)
		go func() {
			defer close(closed)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var cmd feedCommand
				if json.Unmarshal(raw, &cmd) != nil || cmd.Tab == "" {
					continue
				}
				select {
				case commands <- feed.ParseTab(cmd.Tab):
				case <-done:
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case tab := <-commands:
				if tab == sub.Tab() {
					continue
				}
				sub.Stop()
				// drop a snapshot of the old tab still waiting to be written
				select {
				case <-latest:
				default:
				}
				if sub = subscribe(tab); sub == nil {
					return
				}
			case snap := <-latest:
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			}
		}
	})
}
