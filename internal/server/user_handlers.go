package server

import (
	"errors"
	"log/slog"

	"pawfeed/internal/middleware"
	"pawfeed/internal/models"
	"pawfeed/internal/observability"
	"pawfeed/internal/state"

	"github.com/gofiber/fiber/v2"
)

// Follow handles POST /api/users/:id/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	following, err := s.Follows.Follow(c.UserContext(), middleware.ViewerID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"following": following})
}

// Unfollow handles DELETE /api/users/:id/follow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	following, err := s.Follows.Unfollow(c.UserContext(), middleware.ViewerID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"following": following})
}

// GetFollowing handles GET /api/users/:id/following
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	following, err := s.Follows.Following(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"following": following})
}

// GetPreferences handles GET /api/me/preferences
func (s *Server) GetPreferences(c *fiber.Ctx) error {
	return c.JSON(s.State.Preferences(middleware.ViewerID(c)))
}

// UpdatePreferences handles PUT /api/me/preferences
func (s *Server) UpdatePreferences(c *fiber.Ctx) error {
	var req state.Preferences
	if err := parseBody(c, &req); err != nil {
		return err
	}

	viewerID := middleware.ViewerID(c)
	if err := s.State.SetPreferences(viewerID, req); err != nil {
		if errors.Is(err, state.ErrUnknownTheme) {
			return models.NewValidationError(err.Error())
		}
		// The in-memory update stands; only persistence failed.
		observability.Logger.WarnContext(c.UserContext(), "saving preferences failed", slog.String("error", err.Error()))
	}
	return c.JSON(s.State.Preferences(viewerID))
}

// GetFeatureFlags handles GET /api/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"flags": s.Flags.Snapshot(middleware.ViewerID(c)),
	})
}
