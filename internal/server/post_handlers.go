package server

import (
	"pawfeed/internal/middleware"
	"pawfeed/internal/models"
	"pawfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Type            models.PostType     `json:"type"`
	MediaURL        string              `json:"mediaUrl"`
	MediaURLs       []string            `json:"mediaUrls"`
	Caption         string              `json:"caption"`
	TextOverlay     *models.TextOverlay `json:"textOverlay"`
	PetName         string              `json:"petName"`
	Hashtags        []string            `json:"hashtags"`
	Behaviors       []string            `json:"behaviors"`
	DetectedBreed   string              `json:"detectedBreed"`
	DetectedPetType string              `json:"detectedPetType"`
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	post, err := s.Posts.CreatePost(c.UserContext(), service.CreatePostInput{
		OwnerID:         middleware.ViewerID(c),
		Type:            req.Type,
		MediaURL:        req.MediaURL,
		MediaURLs:       req.MediaURLs,
		Caption:         req.Caption,
		TextOverlay:     req.TextOverlay,
		PetName:         req.PetName,
		Hashtags:        req.Hashtags,
		Behaviors:       req.Behaviors,
		DetectedBreed:   req.DetectedBreed,
		DetectedPetType: req.DetectedPetType,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.Posts.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(post)
}

// GetUserPosts handles GET /api/users/:id/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	posts, err := s.Posts.ListUserPosts(c.UserContext(), c.Params("id"), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(posts)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	result, err := s.Posts.DeletePost(c.UserContext(), s.deleteInput(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// RestorePost handles POST /api/posts/:id/restore
func (s *Server) RestorePost(c *fiber.Ctx) error {
	result, err := s.Posts.RestorePost(c.UserContext(), s.deleteInput(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// HardDeletePost handles DELETE /api/posts/:id/hard
func (s *Server) HardDeletePost(c *fiber.Ctx) error {
	result, err := s.Posts.HardDeletePost(c.UserContext(), s.deleteInput(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) deleteInput(c *fiber.Ctx) service.DeletePostInput {
	return service.DeletePostInput{RequesterID: middleware.ViewerID(c), PostID: c.Params("id")}
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	return respondResult(c, s.Interactions.ToggleLike(c.UserContext(), c.Params("id"), middleware.ViewerID(c)))
}

type repostRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// Repost handles POST /api/posts/:id/repost
func (s *Server) Repost(c *fiber.Ctx) error {
	var req repostRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	reposter := models.Reposter{ID: middleware.ViewerID(c), DisplayName: req.DisplayName, PhotoURL: req.PhotoURL}
	return respondResult(c, s.Interactions.Repost(c.UserContext(), c.Params("id"), reposter))
}

// UndoRepost handles DELETE /api/posts/:id/repost
func (s *Server) UndoRepost(c *fiber.Ctx) error {
	return respondResult(c, s.Interactions.UndoRepost(c.UserContext(), c.Params("id"), middleware.ViewerID(c)))
}
