package posts

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

// ErrOwnershipViolation means the caller is authenticated and the post
// exists, but the caller is neither the owner nor an admin.
var ErrOwnershipViolation = errors.New("not the owner of the post")

type PostStorage interface {
	SavePost(ctx context.Context, ownerEmail, title, content string) (models.Post, error)
	Post(ctx context.Context, id int64) (models.Post, error)
	Posts(ctx context.Context) ([]models.Post, error)
	PostsByOwner(ctx context.Context, ownerEmail string) ([]models.Post, error)
	UpdatePost(ctx context.Context, id int64, title, content string) (models.Post, error)
	DeletePost(ctx context.Context, id int64) error
	InsertLike(ctx context.Context, userEmail string, postID int64) (bool, error)
	DeleteLike(ctx context.Context, userEmail string, postID int64) error
	Likes(ctx context.Context, postID int64) ([]string, error)
}

type Posts struct {
	log     *slog.Logger
	storage PostStorage
}

func New(log *slog.Logger, postStorage PostStorage) *Posts {
	return &Posts{
		log:     log,
		storage: postStorage,
	}
}

func (p *Posts) Create(ctx context.Context, identity guard.Identity, title, content string) (models.Post, error) {
	const op = "posts.Create"

	log := p.log.With(slog.String("op", op))

	post, err := p.storage.SavePost(ctx, identity.Email, title, content)
	if err != nil {
		log.Error("failed to save post", sl.Err(err))
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("post created", slog.Int64("id", post.ID), slog.String("owner", identity.Email))

	return post, nil
}

// Get returns the post together with the emails that liked it.
func (p *Posts) Get(ctx context.Context, id int64) (models.Post, []string, error) {
	const op = "posts.Get"

	post, err := p.storage.Post(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return models.Post{}, nil, storage.ErrPostNotFound
		}

		return models.Post{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	likes, err := p.storage.Likes(ctx, id)
	if err != nil {
		return models.Post{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	return post, likes, nil
}

func (p *Posts) List(ctx context.Context) ([]models.Post, error) {
	const op = "posts.List"

	posts, err := p.storage.Posts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return posts, nil
}

func (p *Posts) ListByOwner(ctx context.Context, ownerEmail string) ([]models.Post, error) {
	const op = "posts.ListByOwner"

	posts, err := p.storage.PostsByOwner(ctx, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return posts, nil
}

// Update mutates a post the caller owns (or any post, for admins).
// Existence is checked before ownership so a missing post is always
// reported as not found, never as forbidden.
func (p *Posts) Update(ctx context.Context, identity guard.Identity, id int64, title, content string) (models.Post, error) {
	const op = "posts.Update"

	log := p.log.With(slog.String("op", op))

	post, err := p.storage.Post(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return models.Post{}, storage.ErrPostNotFound
		}

		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	if !guard.CanModify(identity, post.OwnerEmail) {
		log.Warn("ownership violation",
			slog.String("caller", identity.Email),
			slog.String("owner", post.OwnerEmail),
		)

		return models.Post{}, ErrOwnershipViolation
	}

	updated, err := p.storage.UpdatePost(ctx, id, title, content)
	if err != nil {
		log.Error("failed to update post", sl.Err(err))
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("post updated", slog.Int64("id", id))

	return updated, nil
}

func (p *Posts) Delete(ctx context.Context, identity guard.Identity, id int64) error {
	const op = "posts.Delete"

	log := p.log.With(slog.String("op", op))

	post, err := p.storage.Post(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return storage.ErrPostNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !guard.CanModify(identity, post.OwnerEmail) {
		log.Warn("ownership violation",
			slog.String("caller", identity.Email),
			slog.String("owner", post.OwnerEmail),
		)

		return ErrOwnershipViolation
	}

	if err := p.storage.DeletePost(ctx, id); err != nil {
		log.Error("failed to delete post", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("post deleted", slog.Int64("id", id))

	return nil
}

// ToggleLike flips the caller's like on the post and reports the new
// state. The insert relies on the composite key's conflict rejection, so
// two concurrent toggles cannot both insert.
func (p *Posts) ToggleLike(ctx context.Context, identity guard.Identity, postID int64) (bool, error) {
	const op = "posts.ToggleLike"

	log := p.log.With(slog.String("op", op))

	if _, err := p.storage.Post(ctx, postID); err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return false, storage.ErrPostNotFound
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	inserted, err := p.storage.InsertLike(ctx, identity.Email, postID)
	if err != nil {
		log.Error("failed to insert like", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if inserted {
		return true, nil
	}

	if err := p.storage.DeleteLike(ctx, identity.Email, postID); err != nil {
		log.Error("failed to delete like", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}
