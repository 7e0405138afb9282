package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	resp "blog_service/internal/lib/api/response"
	sl "blog_service/internal/lib/logger"
	"blog_service/internal/lib/tokens"
	"blog_service/internal/models"
	"blog_service/internal/storage"

	"github.com/go-chi/render"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownSubject     = errors.New("unknown subject")
	ErrInsufficientScope  = errors.New("insufficient scope")
)

// Identity is the resolved caller of a request: the stored account plus
// the scopes granted by its bearer token.
type Identity struct {
	Email  string
	Role   string
	Scopes []string
}

type IdentityProvider interface {
	User(ctx context.Context, email string) (models.User, error)
}

// Guard resolves bearer tokens into identities and enforces scope gates.
// Per request it walks Anonymous -> TokenPresented -> TokenValidated ->
// IdentityResolved, then RequireScopes performs the scope check.
type Guard struct {
	log    *slog.Logger
	tokens *tokens.Service
	users  IdentityProvider
}

func New(log *slog.Logger, tokenService *tokens.Service, users IdentityProvider) *Guard {
	return &Guard{
		log:    log,
		tokens: tokenService,
		users:  users,
	}
}

type contextKey struct{}

var identityKey contextKey

// FromContext returns the identity resolved by Authenticate, if any.
// A missing identity means the request is anonymous.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Authenticate is the first middleware of every route. A request without
// an Authorization header passes through anonymous; a presented token must
// validate and resolve to a stored account or the request is denied.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "guard.Authenticate"

		log := g.log.With(slog.String("op", op))

		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.tokens.Validate(raw)
		if err != nil {
			log.Info("token validation failed", sl.Err(err))

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error(ErrInvalidCredentials.Error()))

			return
		}

		user, err := g.users.User(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				log.Warn("token subject no longer exists", slog.String("sub", claims.Subject))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(ErrUnknownSubject.Error()))

				return
			}

			log.Error("failed to resolve identity", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		identity := Identity{
			Email:  user.Email,
			Role:   user.Role,
			Scopes: claims.Scopes,
		}

		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), identityKey, identity),
		))
	})
}

type deniedResponse struct {
	resp.Response
	AcceptedScopes []string `json:"accepted_scopes"`
}

// RequireScopes gates a route on the token's granted scopes. The check is
// a set intersection: any one of the required scopes is sufficient. The
// denial carries the acceptable scopes so a client can react.
func (g *Guard) RequireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := FromContext(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(ErrInvalidCredentials.Error()))

				return
			}

			if len(required) > 0 && !hasAnyScope(identity.Scopes, required) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, deniedResponse{
					Response:       resp.Error(ErrInsufficientScope.Error()),
					AcceptedScopes: required,
				})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CanModify is the ownership rule for post and comment mutations: the
// caller must own the resource or hold the admin role. Callers confirm the
// resource exists before consulting it.
func CanModify(identity Identity, ownerEmail string) bool {
	return identity.Email == ownerEmail || identity.Role == models.RoleAdmin
}

func hasAnyScope(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		set[scope] = struct{}{}
	}

	for _, scope := range required {
		if _, ok := set[scope]; ok {
			return true
		}
	}

	return false
}

func bearerToken(header string) string {
	parts := strings.Split(header, " ")
	// auth scheme names are case-insensitive
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}

	return ""
}
