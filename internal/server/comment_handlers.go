package server

import (
	"pawfeed/internal/middleware"
	"pawfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListComments handles GET /api/posts/:id/comments
func (s *Server) ListComments(c *fiber.Ctx) error {
	comments, err := s.Comments.ListComments(c.UserContext(), c.Params("id"), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req struct {
		Text       string `json:"text"`
		AuthorName string `json:"authorName"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}

	comment, err := s.Comments.CreateComment(c.UserContext(), service.CreateCommentInput{
		AuthorID:   middleware.ViewerID(c),
		AuthorName: req.AuthorName,
		PostID:     c.Params("id"),
		Text:       req.Text,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	err := s.Comments.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		RequesterID: middleware.ViewerID(c),
		PostID:      c.Params("id"),
		CommentID:   c.Params("commentId"),
	})
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
