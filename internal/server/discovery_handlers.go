package server

import (
	"strings"

	"pawfeed/internal/middleware"
	"pawfeed/internal/models"
	"pawfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

func discoveryResponse(c *fiber.Ctx, posts []models.RankedPost, err error) error {
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// Trending handles GET /api/discover/trending
func (s *Server) Trending(c *fiber.Ctx) error {
	posts, err := s.Discovery.Trending(c.UserContext(), queryLimit(c))
	return discoveryResponse(c, posts, err)
}

// ByHashtag handles GET /api/discover/hashtag/:tag
func (s *Server) ByHashtag(c *fiber.Ctx) error {
	posts, err := s.Discovery.ByHashtag(c.UserContext(), c.Params("tag"), queryLimit(c))
	return discoveryResponse(c, posts, err)
}

// ByBreed handles GET /api/discover/breed/:breed
func (s *Server) ByBreed(c *fiber.Ctx) error {
	posts, err := s.Discovery.ByBreed(c.UserContext(), c.Params("breed"), queryLimit(c))
	return discoveryResponse(c, posts, err)
}

// ByBehavior handles GET /api/discover/behavior/:behavior
func (s *Server) ByBehavior(c *fiber.Ctx) error {
	posts, err := s.Discovery.ByBehavior(c.UserContext(), c.Params("behavior"), queryLimit(c))
	return discoveryResponse(c, posts, err)
}

// Personalized handles GET /api/discover/for-you?behaviors=a,b
func (s *Server) Personalized(c *fiber.Ctx) error {
	var behaviors []string
	for _, b := range strings.Split(c.Query("behaviors"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			behaviors = append(behaviors, b)
		}
	}
	posts, err := s.Discovery.Personalized(c.UserContext(), service.PersonalizedInput{
		ViewerID:  middleware.ViewerID(c),
		Behaviors: behaviors,
		Limit:     queryLimit(c),
	})
	return discoveryResponse(c, posts, err)
}
