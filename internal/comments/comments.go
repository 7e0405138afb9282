package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"blog_service/internal/guard"
	sl "blog_service/internal/lib/logger"
	"blog_service/internal/models"
	"blog_service/internal/storage"
)

var (
	ErrParentNotFound     = errors.New("parent comment not found")
	ErrParentMismatch     = errors.New("parent comment belongs to a different post")
	ErrEmptyBody          = errors.New("comment body is empty")
	ErrOwnershipViolation = errors.New("not the author of the comment")
)

type CommentStorage interface {
	SaveComment(ctx context.Context, postID int64, name, body string, parentID *int64) (models.Comment, error)
	Comment(ctx context.Context, id int64) (models.Comment, error)
	CommentsByPost(ctx context.Context, postID int64) ([]models.Comment, error)
	UpdateComment(ctx context.Context, id int64, body string) error
	DeleteComment(ctx context.Context, id int64) error
}

type PostProvider interface {
	Post(ctx context.Context, id int64) (models.Post, error)
}

// Node is a comment with its eagerly loaded replies.
type Node struct {
	models.Comment
	Children []*Node
}

// Comments maintains the self-referential comment tree of each post.
type Comments struct {
	log     *slog.Logger
	storage CommentStorage
	posts   PostProvider
}

func New(log *slog.Logger, commentStorage CommentStorage, posts PostProvider) *Comments {
	return &Comments{
		log:     log,
		storage: commentStorage,
		posts:   posts,
	}
}

// Create appends a comment to the post. With a parent id the comment
// becomes a reply: the parent must exist and belong to the same post.
// Without one the comment is a new root.
func (c *Comments) Create(ctx context.Context, postID int64, author, body string, parentID *int64) (models.Comment, error) {
	const op = "comments.Create"

	log := c.log.With(slog.String("op", op))

	if body == "" {
		return models.Comment{}, ErrEmptyBody
	}

	if _, err := c.posts.Post(ctx, postID); err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return models.Comment{}, storage.ErrPostNotFound
		}

		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	if parentID != nil {
		parent, err := c.storage.Comment(ctx, *parentID)
		if err != nil {
			if errors.Is(err, storage.ErrCommentNotFound) {
				return models.Comment{}, ErrParentNotFound
			}

			return models.Comment{}, fmt.Errorf("%s: %w", op, err)
		}

		if parent.PostID != postID {
			return models.Comment{}, ErrParentMismatch
		}
	}

	comment, err := c.storage.SaveComment(ctx, postID, author, body, parentID)
	if err != nil {
		log.Error("failed to save comment", sl.Err(err))
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("comment created",
		slog.Int64("id", comment.ID),
		slog.Int64("post_id", postID),
	)

	return comment, nil
}

// List returns the post's root comments with their full subtrees attached.
// The storage hands back one flat creation-ordered slice; the forest is
// assembled here from an id-keyed arena, so recursion depth never touches
// the database.
func (c *Comments) List(ctx context.Context, postID int64) ([]*Node, error) {
	const op = "comments.List"

	if _, err := c.posts.Post(ctx, postID); err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return nil, storage.ErrPostNotFound
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	flat, err := c.storage.CommentsByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return BuildForest(flat), nil
}

// BuildForest links a flat comment slice into root nodes with children.
// Input order is preserved for roots and within each child list.
func BuildForest(flat []models.Comment) []*Node {
	arena := make(map[int64]*Node, len(flat))
	for _, comment := range flat {
		arena[comment.ID] = &Node{Comment: comment}
	}

	var roots []*Node

	for _, comment := range flat {
		node := arena[comment.ID]

		if comment.ParentID == nil {
			roots = append(roots, node)
			continue
		}

		parent, ok := arena[*comment.ParentID]
		if !ok {
			// parent outside this post's slice; treat as root rather than drop
			roots = append(roots, node)
			continue
		}

		parent.Children = append(parent.Children, node)
	}

	return roots
}

// Update replaces the comment body. Existence is reported before
// ownership, and an empty body is rejected after both.
func (c *Comments) Update(ctx context.Context, identity guard.Identity, id int64, body string) (models.Comment, error) {
	const op = "comments.Update"

	log := c.log.With(slog.String("op", op))

	comment, err := c.storage.Comment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return models.Comment{}, storage.ErrCommentNotFound
		}

		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	if !guard.CanModify(identity, comment.Name) {
		log.Warn("ownership violation",
			slog.String("caller", identity.Email),
			slog.String("author", comment.Name),
		)

		return models.Comment{}, ErrOwnershipViolation
	}

	if body == "" {
		return models.Comment{}, ErrEmptyBody
	}

	if err := c.storage.UpdateComment(ctx, id, body); err != nil {
		log.Error("failed to update comment", sl.Err(err))
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	comment.Body = body

	return comment, nil
}

// Delete removes the comment row. Replies go with it through the schema's
// ON DELETE CASCADE; the application does not cascade itself.
func (c *Comments) Delete(ctx context.Context, identity guard.Identity, id int64) error {
	const op = "comments.Delete"

	log := c.log.With(slog.String("op", op))

	comment, err := c.storage.Comment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return storage.ErrCommentNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !guard.CanModify(identity, comment.Name) {
		log.Warn("ownership violation",
			slog.String("caller", identity.Email),
			slog.String("author", comment.Name),
		)

		return ErrOwnershipViolation
	}

	if err := c.storage.DeleteComment(ctx, id); err != nil {
		log.Error("failed to delete comment", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("comment deleted", slog.Int64("id", id))

	return nil
}
