package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "blog_service/internal/lib/logger"
	"blog_service/internal/lib/random"
	"blog_service/internal/lib/tokens"
	"blog_service/internal/mailer"
	"blog_service/internal/models"
	"blog_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotActive      = errors.New("account is not activated")
)

type UserStorage interface {
	SaveUser(ctx context.Context, email string, passHash []byte) error
	User(ctx context.Context, email string) (models.User, error)
	SetActive(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, email string, passHash []byte) error
	DeleteUser(ctx context.Context, email string) error
}

type CodeStore interface {
	Set(ctx context.Context, email, code string, ttl time.Duration) error
	Get(ctx context.Context, email string) (string, error)
}

type MailPublisher interface {
	SendMessage(ctx context.Context, msg models.EmailMessage) error
}

type Accounts struct {
	log        *slog.Logger
	users      UserStorage
	codes      CodeStore
	mail       MailPublisher
	tokens     *tokens.Service
	codeTTL    time.Duration
	codeLength int
}

func New(
	log *slog.Logger,
	users UserStorage,
	codes CodeStore,
	mail MailPublisher,
	tokenService *tokens.Service,
	codeTTL time.Duration,
	codeLength int,
) *Accounts {
	return &Accounts{
		log:        log,
		users:      users,
		codes:      codes,
		mail:       mail,
		tokens:     tokenService,
		codeTTL:    codeTTL,
		codeLength: codeLength,
	}
}

// Register creates an inactive account with the user role and mails a
// verification code.
func (a *Accounts) Register(ctx context.Context, email, password string) error {
	const op = "accounts.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.SaveUser(ctx, email, passHash); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("email", email))

	return a.RequestVerification(ctx, email)
}

// RequestVerification stores a fresh code against the email, overwriting
// any prior one, and dispatches the verification mail.
func (a *Accounts) RequestVerification(ctx context.Context, email string) error {
	const op = "accounts.RequestVerification"

	log := a.log.With(slog.String("op", op))

	code := random.String(a.codeLength)

	if err := a.codes.Set(ctx, email, code, a.codeTTL); err != nil {
		log.Error("failed to store verification code", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.dispatch(models.EmailMessage{
		To:       email,
		Subject:  "Verify your account",
		Template: mailer.TemplateVerifyEmail,
		Vars: map[string]string{
			"code": code,
			"ttl":  a.codeTTL.String(),
		},
	})

	return nil
}

// Activate flips the account's active flag when the submitted code matches
// the stored one. A mismatch or an expired code is a normal negative
// result, not an error. The code is not consumed on success: repeated
// confirmations inside the TTL window all succeed.
func (a *Accounts) Activate(ctx context.Context, email, submittedCode string) (bool, error) {
	const op = "accounts.Activate"

	log := a.log.With(slog.String("op", op))

	stored, err := a.codes.Get(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			return false, nil
		}

		log.Error("failed to fetch verification code", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if stored != submittedCode {
		return false, nil
	}

	if err := a.users.SetActive(ctx, email); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return false, storage.ErrUserNotFound
		}

		log.Error("failed to activate user", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user activated", slog.String("email", email))

	return true, nil
}

// Login checks the credentials and returns a bearer token whose scopes are
// derived from the account's role.
func (a *Accounts) Login(ctx context.Context, email, password string) (string, error) {
	const op = "accounts.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return "", ErrInvalidCredentials
	}

	if !user.IsActive {
		return "", ErrUserNotActive
	}

	accessToken, err := a.tokens.Issue(user.Email, user.Scopes(), 0)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("email", email))

	return accessToken, nil
}

// ChangePassword rehashes and persists the new password. Outstanding
// tokens stay valid for their full TTL; there is no revocation.
func (a *Accounts) ChangePassword(ctx context.Context, email, newPassword string) error {
	const op = "accounts.ChangePassword"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.UpdatePassword(ctx, email, passHash); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed", slog.String("email", email))

	return nil
}

// ForgotPassword replaces the account's password with a generated one and
// mails the plaintext to the account. This is a direct credential
// mutation, not a reset-token flow.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	const op = "accounts.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	if _, err := a.users.User(ctx, email); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	newPassword := random.String(a.codeLength)

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.UpdatePassword(ctx, email, passHash); err != nil {
		log.Error("failed to persist new password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.dispatch(models.EmailMessage{
		To:       email,
		Subject:  "Your new password",
		Template: mailer.TemplateForgotPassword,
		Vars: map[string]string{
			"password": newPassword,
		},
	})

	log.Info("password reset", slog.String("email", email))

	return nil
}

// GetUser returns the stored account for the email.
func (a *Accounts) GetUser(ctx context.Context, email string) (models.User, error) {
	const op = "accounts.GetUser"

	user, err := a.users.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		a.log.With(slog.String("op", op)).Error("failed to get user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeleteUser removes the account. Scope gating (admin only) happens at the
// route level.
func (a *Accounts) DeleteUser(ctx context.Context, email string) error {
	const op = "accounts.DeleteUser"

	log := a.log.With(slog.String("op", op))

	if err := a.users.DeleteUser(ctx, email); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to delete user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user deleted", slog.String("email", email))

	return nil
}

// dispatch hands the mail to a background task. Publish errors are logged
// and swallowed: mail-server latency or failure never fails the request
// that triggered the mail.
func (a *Accounts) dispatch(msg models.EmailMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.mail.SendMessage(ctx, msg); err != nil {
			a.log.Error("failed to publish email message", sl.Err(err))
		}
	}()
}
