// Package social exposes the JSON accounts surface: registration and
// login returning bearer tokens, profiles with follow counts, and the
// follow graph itself.
package social

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/platform/httpx"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// Handler serves the accounts API.
type Handler struct {
	logger   *slog.Logger
	accounts *auth.Service
	service  *Service
	tokens   *auth.TokenIssuer
	bearer   auth.Bearer
	guard    authz.Middleware
	roles    authz.Store
	validate *validator.Validate
}

// NewHandler builds Handler instance. The guard must be configured for
// JSON responses.
func NewHandler(logger *slog.Logger, accounts *auth.Service, service *Service, tokens *auth.TokenIssuer, guard authz.Middleware, roles authz.Store) *Handler {
	return &Handler{
		logger:   logger,
		accounts: accounts,
		service:  service,
		tokens:   tokens,
		bearer:   auth.Bearer{Tokens: tokens, Logger: logger},
		guard:    guard,
		roles:    roles,
		validate: validator.New(),
	}
}

// MountRoutes registers the accounts endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.bearer.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated())
		r.Get("/profile", h.profile)
		r.Post("/follow/{id}", h.follow)
		r.Delete("/follow/{id}", h.unfollow)
		r.Get("/followers", h.followers)
		r.Get("/following", h.following)
	})
}

type registerPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileResource struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	User  profileResource `json:"user"`
	Token string          `json:"token"`
}

type followEntryResource struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FollowedAt time.Time `json:"followed_at"`
}

type followList struct {
	Data []followEntryResource `json:"data"`
}

func newProfileResource(p Profile) profileResource {
	return profileResource{
		ID:        p.ID,
		Email:     p.Email,
		Username:  p.Username,
		Bio:       p.Bio,
		Followers: p.Followers,
		Following: p.Following,
		CreatedAt: p.CreatedAt,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if !h.decode(w, r, &payload) {
		return
	}
	user, err := h.accounts.Register(r.Context(), payload.Email, payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			httpx.Problem(w, http.StatusConflict, "Conflict", "email already registered")
		case errors.Is(err, auth.ErrUsernameTaken):
			httpx.Problem(w, http.StatusConflict, "Conflict", "username already taken")
		default:
			h.logger.Error("register account failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	h.respondWithToken(w, r, user, authz.RoleMember, http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if !h.decode(w, r, &payload) {
		return
	}
	user, err := h.accounts.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}
	role, err := h.roles.RoleOf(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("resolve role failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.respondWithToken(w, r, user, role, http.StatusOK)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, user *auth.User, role authz.Role, status int) {
	token, err := h.tokens.Issue(user, role)
	if err != nil {
		h.logger.Error("issue token failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	profile, err := h.service.Profile(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load profile failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, status, authResponse{User: newProfileResource(profile), Token: token})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFromContext(r.Context())
	profile, err := h.service.Profile(r.Context(), p.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newProfileResource(profile))
}

func (h *Handler) follow(w http.ResponseWriter, r *http.Request) {
	target, ok := h.parseID(w, r)
	if !ok {
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	if err := h.service.Follow(r.Context(), p.UserID, target); err != nil {
		switch {
		case errors.Is(err, ErrSelfFollow):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "cannot follow yourself")
		case errors.Is(err, ErrAlreadyFollowing):
			httpx.Problem(w, http.StatusConflict, "Conflict", "already following this user")
		default:
			h.respondError(w, err)
		}
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) unfollow(w http.ResponseWriter, r *http.Request) {
	target, ok := h.parseID(w, r)
	if !ok {
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	if err := h.service.Unfollow(r.Context(), p.UserID, target); err != nil {
		if errors.Is(err, ErrNotFollowing) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "not following this user")
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) followers(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFromContext(r.Context())
	entries, err := h.service.Followers(r.Context(), p.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newFollowList(entries))
}

func (h *Handler) following(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFromContext(r.Context())
	entries, err := h.service.Following(r.Context(), p.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newFollowList(entries))
}

func newFollowList(entries []FollowEntry) followList {
	data := make([]followEntryResource, 0, len(entries))
	for _, e := range entries {
		data = append(data, followEntryResource{ID: e.ID, Username: e.Username, Email: e.Email, FollowedAt: e.FollowedAt})
	}
	return followList{Data: data}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", validationDetail(err))
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	h.logger.Error("accounts api request failed", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return 0, false
	}
	return id, true
}

func validationDetail(err error) string {
	fieldNames := map[string]string{
		"Email":    "email",
		"Username": "username",
		"Password": "password",
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "request body failed validation"
	}
	detail := ""
	for i, fieldErr := range validationErrs {
		name := fieldNames[fieldErr.Field()]
		if name == "" {
			name = fieldErr.Field()
		}
		if i > 0 {
			detail += "; "
		}
		switch fieldErr.Tag() {
		case "required":
			detail += name + " is required"
		case "email":
			detail += name + " must be a valid email address"
		case "min":
			detail += name + " is too short"
		case "max":
			detail += name + " is too long"
		case "alphanum":
			detail += name + " may only contain letters and digits"
		default:
			detail += name + " is invalid"
		}
	}
	return detail
}
