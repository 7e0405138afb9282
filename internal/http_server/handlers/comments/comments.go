package comments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"blog_service/internal/comments"
	"blog_service/internal/guard"
	resp "blog_service/internal/lib/api/response"
	sl "blog_service/internal/lib/logger"
	"blog_service/internal/models"
	"blog_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type CreateRequest struct {
	Body     string `json:"body" validate:"required"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type UpdateRequest struct {
	Body string `json:"body" validate:"required"`
}

// Comment mirrors a tree node; Children is always present, empty for
// leaves.
type Comment struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"post_id"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	DateCreated time.Time `json:"date_created"`
	Children    []Comment `json:"children"`
}

type CommentResponse struct {
	resp.Response
	Comment Comment `json:"comment"`
}

type ListResponse struct {
	resp.Response
	Comments []Comment `json:"comments"`
}

func fromModel(c models.Comment) Comment {
	return Comment{
		ID:          c.ID,
		PostID:      c.PostID,
		Name:        c.Name,
		Body:        c.Body,
		ParentID:    c.ParentID,
		DateCreated: c.DateCreated,
		Children:    []Comment{},
	}
}

func fromNode(n *comments.Node) Comment {
	result := fromModel(n.Comment)
	for _, child := range n.Children {
		result.Children = append(result.Children, fromNode(child))
	}

	return result
}

func Create(
	log *slog.Logger,
	validate *validator.Validate,
	commentService *comments.Comments,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.comments.Create"

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

		postID, err := urlID(r, "id")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid post id"))

			return
		}

		var req CreateRequest

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

		comment, err := commentService.Create(ctx, postID, identity.Email, req.Body, req.ParentID)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrPostNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Post not found"))
			case errors.Is(err, comments.ErrParentNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Parent comment not found"))
			case errors.Is(err, comments.ErrParentMismatch):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Parent comment belongs to a different post"))
			case errors.Is(err, comments.ErrEmptyBody):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Comment body must not be empty"))
			default:
				log.Error("failed to create comment", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CommentResponse{
			Response: resp.OK(),
			Comment:  fromModel(comment),
		})
	}
}

func List(
	log *slog.Logger,
	commentService *comments.Comments,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.comments.List"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		postID, err := urlID(r, "id")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid post id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		forest, err := commentService.List(ctx, postID)
		if err != nil {
			if errors.Is(err, storage.ErrPostNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Post not found"))

				return
			}

			log.Error("failed to list comments", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		result := make([]Comment, 0, len(forest))
		for _, root := range forest {
			result = append(result, fromNode(root))
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Comments: result,
		})
	}
}

func Update(
	log *slog.Logger,
	validate *validator.Validate,
	commentService *comments.Comments,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.comments.Update"

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

		id, err := urlID(r, "id")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid comment id"))

			return
		}

		var req UpdateRequest

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

		comment, err := commentService.Update(ctx, identity, id, req.Body)
		if err != nil {
			writeMutationError(w, r, log, err)
			return
		}

		render.JSON(w, r, CommentResponse{
			Response: resp.OK(),
			Comment:  fromModel(comment),
		})
	}
}

func Delete(
	log *slog.Logger,
	commentService *comments.Comments,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.comments.Delete"

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

		id, err := urlID(r, "id")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid comment id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := commentService.Delete(ctx, identity, id); err != nil {
			writeMutationError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OK())
	}
}

func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeMutationError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrCommentNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Comment not found"))
	case errors.Is(err, comments.ErrOwnershipViolation):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("Not the author of the comment"))
	case errors.Is(err, comments.ErrEmptyBody):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Comment body must not be empty"))
	default:
		log.Error("comment mutation failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}
