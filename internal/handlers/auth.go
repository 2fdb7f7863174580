package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/auth"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/internal/services"
	"github.com/steward-platform/apiserver/types"
)

// AuthHandler provides registration, login and user administration.
type AuthHandler struct {
	userService *services.UserService
	issuer      *auth.Issuer
	errs        errorResponder
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, issuer *auth.Issuer, logger *slog.Logger, verbose bool) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		issuer:      issuer,
		errs:        errorResponder{logger: logger, verbose: verbose},
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/me", handler.Me)
		r.Put("/me", handler.UpdateMe)

		r.Get("/users", handler.ListUsers)
		r.Get("/users/{id}", handler.GetUser)
		r.Put("/users/{id}", handler.UpdateUser)
		r.Delete("/users/{id}", handler.DeleteUser)
	})
}

// RequireAuth verifies the bearer token and stores the caller in the request
// context.
func RequireAuth(issuer *auth.Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireAuth(issuer, logger, bearerToken)
}

// RequireSocketAuth is RequireAuth for websocket upgrades, where browsers
// cannot set headers and the token may arrive as ?token=.
func RequireSocketAuth(issuer *auth.Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireAuth(issuer, logger, func(r *http.Request) (string, error) {
		if token, err := bearerToken(r); err == nil {
			return token, nil
		}
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization")
	})
}

func requireAuth(issuer *auth.Issuer, logger *slog.Logger, extract func(*http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extract(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Access denied. No token provided.")
				return
			}

			claims, err := issuer.Verify(tokenString)
			if err != nil {
				logger.Warn("authentication error", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusForbidden, "Invalid token.")
				return
			}

			ctx := withActor(r.Context(), policy.Actor{ID: claims.ID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a pending user and returns a token for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "register", err)
		return
	}

	user, err := h.userService.Register(r.Context(), services.Registration{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.errs.fail(w, r, "register", err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "login", err)
		return
	}

	user, err := h.userService.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		h.errs.fail(w, r, "login", err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	user, err := h.userService.GetByID(r.Context(), actor.ID)
	if err != nil {
		h.errs.fail(w, r, "get profile", err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// UpdateMe changes the caller's email or password.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var update types.UserUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.errs.fail(w, r, "update profile", err)
		return
	}
	user, err := h.userService.UpdateSelf(r.Context(), actor, update)
	if err != nil {
		h.errs.fail(w, r, "update profile", err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// ListUsers lists users filtered by role and status. Admin only.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	filter, err := userFilter(r)
	if err != nil {
		h.errs.fail(w, r, "list users", err)
		return
	}
	users, err := h.userService.List(r.Context(), actor, filter)
	if err != nil {
		h.errs.fail(w, r, "list users", err)
		return
	}
	writeList(w, users)
}

// GetUser returns one user. Admin only.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "user")
	if err != nil {
		h.errs.fail(w, r, "get user", err)
		return
	}
	user, err := h.userService.Get(r.Context(), actor, id)
	if err != nil {
		h.errs.fail(w, r, "get user", err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// UpdateUser changes any field of a user, including role and status. Admin only.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "user")
	if err != nil {
		h.errs.fail(w, r, "update user", err)
		return
	}
	var update types.UserUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.errs.fail(w, r, "update user", err)
		return
	}
	user, err := h.userService.Update(r.Context(), actor, id, update)
	if err != nil {
		h.errs.fail(w, r, "update user", err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// DeleteUser permanently removes a user. Admin only, never oneself.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "user")
	if err != nil {
		h.errs.fail(w, r, "delete user", err)
		return
	}
	if err := h.userService.Delete(r.Context(), actor, id); err != nil {
		h.errs.fail(w, r, "delete user", err)
		return
	}
	writeDeleted(w, "User deleted successfully")
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user types.User) {
	token, err := h.issuer.Issue(auth.Claims{ID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		h.errs.fail(w, r, "issue token", apperr.Persistence("issue token", err))
		return
	}
	writeData(w, status, AuthResponse{Token: token, User: user})
}

func userFilter(r *http.Request) (types.UserFilter, error) {
	var filter types.UserFilter
	if role := queryString(r, "role"); role != nil {
		value := types.Role(*role)
		filter.Role = &value
	}
	if status := queryString(r, "status"); status != nil {
		value := types.UserStatus(*status)
		filter.Status = &value
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

// RegisterRequest accepts a status so that clients sending one are not
// rejected, but new users always start pending.
type RegisterRequest struct {
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     types.Role       `json:"role,omitempty"`
	Status   types.UserStatus `json:"status,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
