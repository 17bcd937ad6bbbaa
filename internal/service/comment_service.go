package service

import (
	"context"

	"pawfeed/internal/models"
	"pawfeed/internal/repository"
)

type CommentService struct {
	commentRepo repository.CommentRepository
}

type CreateCommentInput struct {
	AuthorID   string
	AuthorName string
	PostID     string
	Text       string
}

type DeleteCommentInput struct {
	RequesterID string
	PostID      string
	CommentID   string
}

func NewCommentService(commentRepo repository.CommentRepository) *CommentService {
	return &CommentService{commentRepo: commentRepo}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.AuthorID == "" {
		return nil, models.NewUnauthorizedError("Sign in to comment")
	}
	comment := &models.Comment{
		PostID:     in.PostID,
		AuthorID:   in.AuthorID,
		AuthorName: in.AuthorName,
		Text:       in.Text,
	}
	if err := s.commentRepo.Add(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	if in.RequesterID == "" {
		return models.NewUnauthorizedError("Sign in to delete comments")
	}
	return s.commentRepo.Delete(ctx, in.PostID, in.CommentID, in.RequesterID)
}

func (s *CommentService) ListComments(ctx context.Context, postID string, limit int) ([]*models.Comment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.commentRepo.List(ctx, postID, limit)
}
