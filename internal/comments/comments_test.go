package comments

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"blog_service/internal/guard"
	"blog_service/internal/models"
	"blog_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommentStorage struct {
	comments map[int64]models.Comment
	order    []int64
	nextID   int64
}

func newFakeCommentStorage() *fakeCommentStorage {
	return &fakeCommentStorage{
		comments: make(map[int64]models.Comment),
		nextID:   1,
	}
}

func (f *fakeCommentStorage) SaveComment(_ context.Context, postID int64, name, body string, parentID *int64) (models.Comment, error) {
	comment := models.Comment{
		ID:          f.nextID,
		PostID:      postID,
		Name:        name,
		Body:        body,
		ParentID:    parentID,
		DateCreated: time.Now(),
	}
	f.comments[f.nextID] = comment
	f.order = append(f.order, f.nextID)
	f.nextID++
	return comment, nil
}

func (f *fakeCommentStorage) Comment(_ context.Context, id int64) (models.Comment, error) {
	comment, ok := f.comments[id]
	if !ok {
		return models.Comment{}, storage.ErrCommentNotFound
	}
	return comment, nil
}

func (f *fakeCommentStorage) CommentsByPost(_ context.Context, postID int64) ([]models.Comment, error) {
	var result []models.Comment
	for _, id := range f.order {
		comment, ok := f.comments[id]
		if ok && comment.PostID == postID {
			result = append(result, comment)
		}
	}
	return result, nil
}

func (f *fakeCommentStorage) UpdateComment(_ context.Context, id int64, body string) error {
	comment, ok := f.comments[id]
	if !ok {
		return storage.ErrCommentNotFound
	}
	comment.Body = body
	f.comments[id] = comment
	return nil
}

func (f *fakeCommentStorage) DeleteComment(_ context.Context, id int64) error {
	if _, ok := f.comments[id]; !ok {
		return storage.ErrCommentNotFound
	}
	delete(f.comments, id)
	return nil
}

type fakePostProvider struct {
	posts map[int64]models.Post
}

func (f *fakePostProvider) Post(_ context.Context, id int64) (models.Post, error) {
	post, ok := f.posts[id]
	if !ok {
		return models.Post{}, storage.ErrPostNotFound
	}
	return post, nil
}

var (
	alice = guard.Identity{Email: "alice@example.com", Role: models.RoleUser}
	bob   = guard.Identity{Email: "bob@example.com", Role: models.RoleUser}
	admin = guard.Identity{Email: "root@example.com", Role: models.RoleAdmin}
)

func newTestComments(t *testing.T) (*Comments, *fakeCommentStorage) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFakeCommentStorage()
	posts := &fakePostProvider{posts: map[int64]models.Post{
		1: {ID: 1, Title: "Hello", OwnerEmail: "alice@example.com"},
		2: {ID: 2, Title: "Other", OwnerEmail: "bob@example.com"},
	}}

	return New(log, store, posts), store
}

func TestComments_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("root comment is listed as a root", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		forest, err := svc.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, forest, 1)
		assert.Equal(t, created.ID, forest[0].ID)
		assert.Empty(t, forest[0].Children)
	})

	t.Run("reply attaches under parent, not as a root", func(t *testing.T) {
		svc, _ := newTestComments(t)

		root, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		reply, err := svc.Create(ctx, 1, bob.Email, "welcome", &root.ID)
		require.NoError(t, err)

		forest, err := svc.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, forest, 1)
		require.Len(t, forest[0].Children, 1)
		assert.Equal(t, reply.ID, forest[0].Children[0].ID)
	})

	t.Run("missing post", func(t *testing.T) {
		svc, _ := newTestComments(t)

		_, err := svc.Create(ctx, 42, alice.Email, "hello?", nil)
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
	})

	t.Run("missing parent", func(t *testing.T) {
		svc, _ := newTestComments(t)

		ghost := int64(99)
		_, err := svc.Create(ctx, 1, alice.Email, "reply", &ghost)
		assert.ErrorIs(t, err, ErrParentNotFound)
	})

	t.Run("parent from another post", func(t *testing.T) {
		svc, _ := newTestComments(t)

		other, err := svc.Create(ctx, 2, bob.Email, "elsewhere", nil)
		require.NoError(t, err)

		_, err = svc.Create(ctx, 1, alice.Email, "reply", &other.ID)
		assert.ErrorIs(t, err, ErrParentMismatch)
	})

	t.Run("empty body", func(t *testing.T) {
		svc, _ := newTestComments(t)

		_, err := svc.Create(ctx, 1, alice.Email, "", nil)
		assert.ErrorIs(t, err, ErrEmptyBody)
	})
}

func TestComments_List(t *testing.T) {
	ctx := context.Background()

	t.Run("missing post", func(t *testing.T) {
		svc, _ := newTestComments(t)

		_, err := svc.List(ctx, 42)
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
	})

	t.Run("empty post yields empty forest", func(t *testing.T) {
		svc, _ := newTestComments(t)

		forest, err := svc.List(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, forest)
	})

	t.Run("deep thread keeps its shape", func(t *testing.T) {
		svc, _ := newTestComments(t)

		root, err := svc.Create(ctx, 1, alice.Email, "root", nil)
		require.NoError(t, err)
		child, err := svc.Create(ctx, 1, bob.Email, "child", &root.ID)
		require.NoError(t, err)
		_, err = svc.Create(ctx, 1, alice.Email, "grandchild", &child.ID)
		require.NoError(t, err)
		second, err := svc.Create(ctx, 1, bob.Email, "second root", nil)
		require.NoError(t, err)

		forest, err := svc.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, forest, 2)

		assert.Equal(t, root.ID, forest[0].ID)
		assert.Equal(t, second.ID, forest[1].ID)

		require.Len(t, forest[0].Children, 1)
		require.Len(t, forest[0].Children[0].Children, 1)
		assert.Equal(t, "grandchild", forest[0].Children[0].Children[0].Body)
	})
}

func TestBuildForest(t *testing.T) {
	id := func(n int64) *int64 { return &n }

	t.Run("sibling order follows input order", func(t *testing.T) {
		flat := []models.Comment{
			{ID: 1},
			{ID: 2},
			{ID: 3, ParentID: id(1)},
			{ID: 4, ParentID: id(1)},
		}

		forest := BuildForest(flat)
		require.Len(t, forest, 2)
		assert.Equal(t, int64(1), forest[0].ID)
		assert.Equal(t, int64(2), forest[1].ID)

		require.Len(t, forest[0].Children, 2)
		assert.Equal(t, int64(3), forest[0].Children[0].ID)
		assert.Equal(t, int64(4), forest[0].Children[1].ID)
	})

	t.Run("orphan becomes a root instead of vanishing", func(t *testing.T) {
		flat := []models.Comment{
			{ID: 2, ParentID: id(1)},
		}

		forest := BuildForest(flat)
		require.Len(t, forest, 1)
		assert.Equal(t, int64(2), forest[0].ID)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, BuildForest(nil))
	})
}

func TestComments_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("author edits own comment", func(t *testing.T) {
		svc, store := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		updated, err := svc.Update(ctx, alice, created.ID, "first, edited")
		require.NoError(t, err)
		assert.Equal(t, "first, edited", updated.Body)
		assert.Equal(t, "first, edited", store.comments[created.ID].Body)
	})

	t.Run("another user is rejected", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		_, err = svc.Update(ctx, bob, created.ID, "hijacked")
		assert.ErrorIs(t, err, ErrOwnershipViolation)
	})

	t.Run("admin edits any comment", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		_, err = svc.Update(ctx, admin, created.ID, "moderated")
		assert.NoError(t, err)
	})

	t.Run("empty body rejected after ownership", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		_, err = svc.Update(ctx, alice, created.ID, "")
		assert.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("missing comment", func(t *testing.T) {
		svc, _ := newTestComments(t)

		_, err := svc.Update(ctx, alice, 42, "anything")
		assert.ErrorIs(t, err, storage.ErrCommentNotFound)
	})
}

func TestComments_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("author deletes own comment", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, alice, created.ID))

		forest, err := svc.List(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, forest)
	})

	t.Run("another user is rejected", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		err = svc.Delete(ctx, bob, created.ID)
		assert.ErrorIs(t, err, ErrOwnershipViolation)
	})

	t.Run("admin deletes any comment", func(t *testing.T) {
		svc, _ := newTestComments(t)

		created, err := svc.Create(ctx, 1, alice.Email, "first!", nil)
		require.NoError(t, err)

		assert.NoError(t, svc.Delete(ctx, admin, created.ID))
	})

	t.Run("missing comment", func(t *testing.T) {
		svc, _ := newTestComments(t)

		err := svc.Delete(ctx, alice, 42)
		assert.ErrorIs(t, err, storage.ErrCommentNotFound)
	})
}
