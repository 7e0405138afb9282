package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blog_service/internal/config"
	"blog_service/internal/models"
	"blog_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// Bootstrap creates the schema when it does not exist yet. Child comments
// and likes are removed by ON DELETE CASCADE, not by application code.
func (r *PostgresRepo) Bootstrap(ctx context.Context) error {
	const op = "storage.postgres.Bootstrap"

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			role TEXT NOT NULL DEFAULT 'user'
		);`,
		`CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			owner_email TEXT NOT NULL REFERENCES users (email) ON DELETE CASCADE,
			date_created TIMESTAMPTZ NOT NULL DEFAULT now(),
			date_last_update TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id BIGSERIAL PRIMARY KEY,
			post_id BIGINT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			body TEXT NOT NULL,
			parent_id BIGINT REFERENCES comments (id) ON DELETE CASCADE,
			date_created TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS post_likes (
			user_email TEXT NOT NULL REFERENCES users (email) ON DELETE CASCADE,
			post_id BIGINT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
			PRIMARY KEY (user_email, post_id)
		);`,
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email string, passHash []byte) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2);
	`

	_, err := r.pool.Exec(ctx, query, email, string(passHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) User(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT email, password_hash, is_active, role
		FROM users
		WHERE email = $1;
	`

	row := r.pool.QueryRow(ctx, query, email)

	var u models.User
	err := row.Scan(
		&u.Email,
		&u.PassHash,
		&u.IsActive,
		&u.Role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) SetActive(ctx context.Context, email string) error {
	query := `UPDATE users SET is_active = TRUE WHERE email = $1`

	tag, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, email string, passHash []byte) error {
	query := `UPDATE users SET password_hash = $1 WHERE email = $2`

	tag, err := r.pool.Exec(ctx, query, string(passHash), email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, email string) error {
	query := `DELETE FROM users WHERE email = $1`

	tag, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SavePost(ctx context.Context, ownerEmail, title, content string) (models.Post, error) {
	const op = "storage.postgres.SavePost"

	query := `
		INSERT INTO posts (title, content, owner_email)
		VALUES ($1, $2, $3)
		RETURNING id, title, content, owner_email, date_created, date_last_update;
	`

	var p models.Post
	err := r.pool.QueryRow(ctx, query, title, content, ownerEmail).Scan(
		&p.ID,
		&p.Title,
		&p.Content,
		&p.OwnerEmail,
		&p.DateCreated,
		&p.DateLastUpdate,
	)
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PostgresRepo) Post(ctx context.Context, id int64) (models.Post, error) {
	query := `
		SELECT id, title, content, owner_email, date_created, date_last_update
		FROM posts
		WHERE id = $1;
	`

	var p models.Post
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Title,
		&p.Content,
		&p.OwnerEmail,
		&p.DateCreated,
		&p.DateLastUpdate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, storage.ErrPostNotFound
		}

		return models.Post{}, err
	}

	return p, nil
}

func (r *PostgresRepo) Posts(ctx context.Context) ([]models.Post, error) {
	query := `
		SELECT id, title, content, owner_email, date_created, date_last_update
		FROM posts
		ORDER BY date_created, id;
	`

	return r.queryPosts(ctx, query)
}

func (r *PostgresRepo) PostsByOwner(ctx context.Context, ownerEmail string) ([]models.Post, error) {
	query := `
		SELECT id, title, content, owner_email, date_created, date_last_update
		FROM posts
		WHERE owner_email = $1
		ORDER BY date_created, id;
	`

	return r.queryPosts(ctx, query, ownerEmail)
}

func (r *PostgresRepo) queryPosts(ctx context.Context, query string, args ...interface{}) ([]models.Post, error) {
	const op = "storage.postgres.queryPosts"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var posts []models.Post

	for rows.Next() {
		var p models.Post
		err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.Content,
			&p.OwnerEmail,
			&p.DateCreated,
			&p.DateLastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		posts = append(posts, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return posts, nil
}

func (r *PostgresRepo) UpdatePost(ctx context.Context, id int64, title, content string) (models.Post, error) {
	query := `
		UPDATE posts
		SET title = $1, content = $2, date_last_update = now()
		WHERE id = $3
		RETURNING id, title, content, owner_email, date_created, date_last_update;
	`

	var p models.Post
	err := r.pool.QueryRow(ctx, query, title, content, id).Scan(
		&p.ID,
		&p.Title,
		&p.Content,
		&p.OwnerEmail,
		&p.DateCreated,
		&p.DateLastUpdate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, storage.ErrPostNotFound
		}

		return models.Post{}, err
	}

	return p, nil
}

func (r *PostgresRepo) DeletePost(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPostNotFound
	}

	return nil
}

// InsertLike reports whether the row was inserted. A false result means the
// like already existed; the composite primary key arbitrates concurrent
// toggles, there is no application-level lock.
func (r *PostgresRepo) InsertLike(ctx context.Context, userEmail string, postID int64) (bool, error) {
	const op = "storage.postgres.InsertLike"

	query := `
		INSERT INTO post_likes (user_email, post_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING;
	`

	tag, err := r.pool.Exec(ctx, query, userEmail, postID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepo) DeleteLike(ctx context.Context, userEmail string, postID int64) error {
	query := `DELETE FROM post_likes WHERE user_email = $1 AND post_id = $2`

	_, err := r.pool.Exec(ctx, query, userEmail, postID)

	return err
}

func (r *PostgresRepo) Likes(ctx context.Context, postID int64) ([]string, error) {
	const op = "storage.postgres.Likes"

	query := `
		SELECT user_email
		FROM post_likes
		WHERE post_id = $1
		ORDER BY user_email;
	`

	rows, err := r.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var emails []string

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		emails = append(emails, email)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return emails, nil
}

func (r *PostgresRepo) SaveComment(ctx context.Context, postID int64, name, body string, parentID *int64) (models.Comment, error) {
	const op = "storage.postgres.SaveComment"

	query := `
		INSERT INTO comments (post_id, name, body, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, post_id, name, body, parent_id, date_created;
	`

	var c models.Comment
	err := r.pool.QueryRow(ctx, query, postID, name, body, parentID).Scan(
		&c.ID,
		&c.PostID,
		&c.Name,
		&c.Body,
		&c.ParentID,
		&c.DateCreated,
	)
	if err != nil {
		return models.Comment{}, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

func (r *PostgresRepo) Comment(ctx context.Context, id int64) (models.Comment, error) {
	query := `
		SELECT id, post_id, name, body, parent_id, date_created
		FROM comments
		WHERE id = $1;
	`

	var c models.Comment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.PostID,
		&c.Name,
		&c.Body,
		&c.ParentID,
		&c.DateCreated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, storage.ErrCommentNotFound
		}

		return models.Comment{}, err
	}

	return c, nil
}

// CommentsByPost returns every comment of the post as a flat, creation
// ordered slice; the tree is assembled by the comments service.
func (r *PostgresRepo) CommentsByPost(ctx context.Context, postID int64) ([]models.Comment, error) {
	const op = "storage.postgres.CommentsByPost"

	query := `
		SELECT id, post_id, name, body, parent_id, date_created
		FROM comments
		WHERE post_id = $1
		ORDER BY date_created, id;
	`

	rows, err := r.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var comments []models.Comment

	for rows.Next() {
		var c models.Comment
		err := rows.Scan(
			&c.ID,
			&c.PostID,
			&c.Name,
			&c.Body,
			&c.ParentID,
			&c.DateCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		comments = append(comments, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return comments, nil
}

func (r *PostgresRepo) UpdateComment(ctx context.Context, id int64, body string) error {
	query := `UPDATE comments SET body = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, body, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCommentNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteComment(ctx context.Context, id int64) error {
	query := `DELETE FROM comments WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCommentNotFound
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
