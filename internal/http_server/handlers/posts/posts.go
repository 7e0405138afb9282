package posts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"blog_service/internal/guard"
	resp "blog_service/internal/lib/api/response"
	sl "blog_service/internal/lib/logger"
	"blog_service/internal/models"
	"blog_service/internal/posts"
	"blog_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type Post struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	OwnerEmail     string    `json:"owner_email"`
	DateCreated    time.Time `json:"date_created"`
	DateLastUpdate time.Time `json:"date_last_update"`
}

type PostResponse struct {
	resp.Response
	Post Post `json:"post"`
}

type PostWithLikesResponse struct {
	resp.Response
	Post  Post     `json:"post"`
	Likes []string `json:"likes"`
}

type ListResponse struct {
	resp.Response
	Posts []Post `json:"posts"`
}

type LikeResponse struct {
	resp.Response
	Liked bool `json:"liked"`
}

func fromModel(p models.Post) Post {
	return Post{
		ID:             p.ID,
		Title:          p.Title,
		Content:        p.Content,
		OwnerEmail:     p.OwnerEmail,
		DateCreated:    p.DateCreated,
		DateLastUpdate: p.DateLastUpdate,
	}
}

func Create(
	log *slog.Logger,
	validate *validator.Validate,
	postService *posts.Posts,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.posts.Create"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := guard.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid credentials"))

			return
		}

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		post, err := postService.Create(ctx, identity, req.Title, req.Content)
		if err != nil {
			log.Error("failed to create post", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, PostResponse{
			Response: resp.OK(),
			Post:     fromModel(post),
		})
	}
}

func List(
	log *slog.Logger,
	postService *posts.Posts,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.posts.List"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var (
			records []models.Post
			err     error
		)

		if owner := r.URL.Query().Get("owner"); owner != "" {
			records, err = postService.ListByOwner(ctx, owner)
		} else {
			records, err = postService.List(ctx)
		}
		if err != nil {
			log.Error("failed to list posts", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		result := make([]Post, 0, len(records))
		for _, p := range records {
			result = append(result, fromModel(p))
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Posts:    result,
		})
	}
}

func Get(
	log *slog.Logger,
	postService *posts.Posts,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.posts.Get"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := postID(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid post id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		post, likes, err := postService.Get(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrPostNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Post not found"))

				return
			}

			log.Error("failed to get post", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if likes == nil {
			likes = []string{}
		}

		render.JSON(w, r, PostWithLikesResponse{
			Response: resp.OK(),
			Post:     fromModel(post),
			Likes:    likes,
		})
	}
}

func Update(
	log *slog.Logger,
	validate *validator.Validate,
	postService *posts.Posts,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.posts.Update"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := guard.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid credentials"))

			return
		}

		id, err := postID(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid post id"))

			return
		}

		var req Request

		err = render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		post, err := postService.Update(ctx, identity, id, req.Title, req.Content)
		if err != nil {
			writeMutationError(w, r, log, err)
			return
		}

		render.JSON(w, r, PostResponse{
			Response: resp.OK(),
			Post:     fromModel(post),
		})
	}
}

func Delete(
	log *slog.Logger,
	postService *posts.Posts,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.posts.Delete"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := guard.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid credentials"))

			return
		}

		id, err := postID(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid post id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := postService.Delete(ctx, identity, id); err != nil {
			writeMutationError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OK())
	}
}

func Like(
	log *slog.Logger,
	postService *posts.Posts,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.posts.Like"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := guard.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid credentials"))

			return
		}

		id, err := postID(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid post id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		liked, err := postService.ToggleLike(ctx, identity, id)
		if err != nil {
			if errors.Is(err, storage.ErrPostNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Post not found"))

				return
			}

			log.Error("failed to toggle like", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, LikeResponse{
			Response: resp.OK(),
			Liked:    liked,
		})
	}
}

func postID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeMutationError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, storage.ErrPostNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Post not found"))

		return
	}
	if errors.Is(err, posts.ErrOwnershipViolation) {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("Not the owner of the post"))

		return
	}

	log.Error("post mutation failed", sl.Err(err))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, resp.Error("Internal error"))
}
