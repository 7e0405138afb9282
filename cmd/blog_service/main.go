package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blog_service/internal/accounts"
	"blog_service/internal/comments"
	"blog_service/internal/config"
	"blog_service/internal/guard"
	activateHandler "blog_service/internal/http_server/handlers/activate"
	changePassword "blog_service/internal/http_server/handlers/changepassword"
	commentHandlers "blog_service/internal/http_server/handlers/comments"
	forgotPassword "blog_service/internal/http_server/handlers/forgotpassword"
	loginHandler "blog_service/internal/http_server/handlers/login"
	postHandlers "blog_service/internal/http_server/handlers/posts"
	registerHandler "blog_service/internal/http_server/handlers/register"
	userHandlers "blog_service/internal/http_server/handlers/users"
	"blog_service/internal/lib/tokens"
	rateLimit "blog_service/internal/middleware/ratelimit"
	"blog_service/internal/models"
	"blog_service/internal/posts"
	"blog_service/internal/rabbitmq"
	"blog_service/internal/storage/postgres"
	redisStore "blog_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting blog service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	if err := storage.Bootstrap(ctx); err != nil {
		log.Error("failed to bootstrap schema", slog.String("err", err.Error()))
		os.Exit(1)
	}

	codeStore, err := redisStore.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer codeStore.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	tokenService := tokens.New(cfg.Tokens.Secret, cfg.Tokens.AccessTokenTTL)

	accountService := accounts.New(
		log, storage, codeStore, msgBroker, tokenService,
		cfg.Verification.CodeTTL, cfg.Verification.CodeLength,
	)
	postService := posts.New(log, storage)
	commentService := comments.New(log, storage, storage)

	authGuard := guard.New(log, tokenService, storage)

	router := setupRouter(log, authGuard, accountService, postService, commentService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authGuard *guard.Guard,
	accountService *accounts.Accounts,
	postService *posts.Posts,
	commentService *comments.Comments,
) *chi.Mux {
	validate := validator.New()

	anyUser := authGuard.RequireScopes(models.RoleUser, models.RoleAdmin)
	adminOnly := authGuard.RequireScopes(models.RoleAdmin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(authGuard.Authenticate)

	r.With(rateLimit.Register()).Post("/register",
		registerHandler.New(log, validate, accountService),
	)
	r.With(rateLimit.Login()).Post("/login",
		loginHandler.New(log, validate, accountService),
	)
	r.With(rateLimit.Activate()).Post("/activate",
		activateHandler.New(log, validate, accountService),
	)
	r.With(rateLimit.ForgotPassword()).Post("/forgot-password",
		forgotPassword.New(log, validate, accountService),
	)
	r.With(anyUser).Post("/change-password",
		changePassword.New(log, validate, accountService),
	)

	r.With(anyUser).Get("/me", userHandlers.Me(log))
	r.With(adminOnly).Get("/users/{email}", userHandlers.Get(log, accountService))
	r.With(adminOnly).Delete("/users/{email}", userHandlers.Delete(log, accountService))

	r.Route("/posts", func(r chi.Router) {
		r.Get("/", postHandlers.List(log, postService))
		r.With(anyUser).Post("/", postHandlers.Create(log, validate, postService))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", postHandlers.Get(log, postService))
			r.With(anyUser).Put("/", postHandlers.Update(log, validate, postService))
			r.With(anyUser).Delete("/", postHandlers.Delete(log, postService))
			r.With(anyUser).Post("/like", postHandlers.Like(log, postService))

			r.Get("/comments", commentHandlers.List(log, commentService))
			r.With(anyUser).Post("/comments", commentHandlers.Create(log, validate, commentService))
		})
	})

	r.Route("/comments/{id}", func(r chi.Router) {
		r.With(anyUser).Put("/", commentHandlers.Update(log, validate, commentService))
		r.With(anyUser).Delete("/", commentHandlers.Delete(log, commentService))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
