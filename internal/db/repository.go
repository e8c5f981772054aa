package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/steemit/commentd/internal/models"
)

// ErrParentNotFound is returned when a reply names a parent that does not exist under the same slug
var ErrParentNotFound = errors.New("parent comment not found")

// Repository provides database access methods
type Repository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewRepository creates a new repository. A zero timeout leaves the caller's deadline alone.
func NewRepository(db *gorm.DB, timeout time.Duration) *Repository {
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// CommentRepository provides comment-related database operations
type CommentRepository struct {
	*Repository
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(repo *Repository) *CommentRepository {
	return &CommentRepository{Repository: repo}
}

// Create inserts a comment. Replies are checked against their parent in the same transaction.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if comment.ParentID.Valid {
			var count int64
			if err := tx.Model(&models.Comment{}).
				Where("id = ? AND slug = ?", comment.ParentID.Int64, comment.Slug).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrParentNotFound
			}
		}
		return tx.Create(comment).Error
	})
}

// ListBySlug returns one page of comments for a slug, newest first
func (r *CommentRepository) ListBySlug(ctx context.Context, slug string, page, limit int) ([]models.Comment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// ListThread returns the newest max comments for a slug, newest first
func (r *CommentRepository) ListThread(ctx context.Context, slug string, max int) ([]models.Comment, error) {
	return r.ListBySlug(ctx, slug, 1, max)
}
