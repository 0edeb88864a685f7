package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/shared"
	"github.com/athenaeum-app/athenaeum/internal/view"
)

// Handler manages user administration endpoints and the self-service
// profile page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	grants    authz.Store
	audit     *shared.AuditLogger
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware, grants authz.Store, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		grants:    grants,
		audit:     audit,
		validate:  validator.New(),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated())
		r.Get("/profile", h.showProfile)
		r.Post("/profile", h.updateProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersEdit))
		r.Post("/{id}/role", h.assignRole)
		r.Post("/{id}/groups", h.addToGroup)
		r.Post("/{id}/groups/{groupID}/remove", h.removeFromGroup)
	})
}

type formErrors map[string]string

type profileForm struct {
	Username string `validate:"required,min=3,max=32,alphanum"`
	Bio      string `validate:"max=500"`
}

// permissionSection groups matrix rows for one module on the profile page.
type permissionSection struct {
	Title  string
	Grants []permissionGrant
}

type permissionGrant struct {
	Name    string
	Granted bool
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": "could not load users"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", map[string]any{"Users": users}, http.StatusOK)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load user failed", slog.Int64("user_id", id), slog.Any("error", err))
		h.render(w, r, "pages/users/detail.html", map[string]any{"Errors": formErrors{"general": "could not load user"}}, http.StatusInternalServerError)
		return
	}

	memberOf, err := h.service.GroupsOf(r.Context(), id)
	if err != nil {
		h.logger.Error("load user groups failed", slog.Int64("user_id", id), slog.Any("error", err))
	}
	available, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("load groups failed", slog.Any("error", err))
	}
	available = withoutGroups(available, memberOf)

	history, err := h.audit.RecentFor(r.Context(), "user", strconv.FormatInt(id, 10), 10)
	if err != nil {
		h.logger.Warn("load user audit trail failed", slog.Int64("user_id", id), slog.Any("error", err))
	}

	canEdit, err := h.guard.Gate.HasPermission(r.Context(), authz.PrincipalFromContext(r.Context()), shared.PermUsersEdit)
	if err != nil {
		h.logger.Error("check edit permission failed", slog.Any("error", err))
	}

	h.render(w, r, "pages/users/detail.html", map[string]any{
		"User":            user,
		"Groups":          memberOf,
		"AvailableGroups": available,
		"Roles":           authz.AssignableRoles(),
		"History":         history,
		"CanEdit":         canEdit,
	}, http.StatusOK)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Invalid form submission")
		return
	}
	role, ok := authz.ParseRole(r.FormValue("role"))
	if !ok {
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Unknown role")
		return
	}
	if err := h.service.AssignRole(r.Context(), id, role); err != nil {
		h.logger.Error("assign role failed", slog.Int64("user_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Could not update role")
		return
	}
	h.recordAudit(r, "users.role_assigned", "user", strconv.FormatInt(id, 10), map[string]any{"role": role.String()})
	h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "success", "Role updated")
}

func (h *Handler) addToGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Invalid form submission")
		return
	}
	groupID, err := strconv.ParseInt(r.FormValue("group_id"), 10, 64)
	if err != nil {
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Unknown group")
		return
	}
	if err := h.service.AddToGroup(r.Context(), id, groupID); err != nil {
		h.logger.Error("add group membership failed", slog.Int64("user_id", id), slog.Int64("group_id", groupID), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Could not add group membership")
		return
	}
	h.recordAudit(r, "users.group_added", "user", strconv.FormatInt(id, 10), map[string]any{"group_id": groupID})
	h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "success", "Group membership added")
}

func (h *Handler) removeFromGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.RemoveFromGroup(r.Context(), id, groupID); err != nil {
		h.logger.Error("remove group membership failed", slog.Int64("user_id", id), slog.Int64("group_id", groupID), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "error", "Could not remove group membership")
		return
	}
	h.recordAudit(r, "users.group_removed", "user", strconv.FormatInt(id, 10), map[string]any{"group_id": groupID})
	h.redirectWithFlash(w, r, "/users/"+strconv.FormatInt(id, 10), "success", "Group membership removed")
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("load profile failed", slog.Int64("user_id", p.UserID), slog.Any("error", err))
		h.render(w, r, "pages/users/profile.html", map[string]any{"Errors": formErrors{"general": "could not load profile"}}, http.StatusInternalServerError)
		return
	}
	h.renderProfile(w, r, user, formErrors{}, http.StatusOK)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("load profile failed", slog.Int64("user_id", p.UserID), slog.Any("error", err))
		h.render(w, r, "pages/users/profile.html", map[string]any{"Errors": formErrors{"general": "could not load profile"}}, http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderProfile(w, r, user, formErrors{"general": "Invalid form submission"}, http.StatusBadRequest)
		return
	}

	form := profileForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Bio:      strings.TrimSpace(r.FormValue("bio")),
	}
	if err := h.validate.Struct(form); err != nil {
		errs := formErrors{}
		for _, fieldErr := range err.(validator.ValidationErrors) {
			switch fieldErr.Field() {
			case "Username":
				errs["username"] = "Username must be 3-32 letters or digits"
			case "Bio":
				errs["bio"] = "Bio must be at most 500 characters"
			}
		}
		user.Username = form.Username
		user.Bio = form.Bio
		h.renderProfile(w, r, user, errs, http.StatusUnprocessableEntity)
		return
	}

	if err := h.service.UpdateProfile(r.Context(), p.UserID, form.Username, form.Bio); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			user.Username = form.Username
			user.Bio = form.Bio
			h.renderProfile(w, r, user, formErrors{"username": "Username already taken"}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("update profile failed", slog.Int64("user_id", p.UserID), slog.Any("error", err))
		h.renderProfile(w, r, user, formErrors{"general": "Could not save profile"}, http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "users.profile_updated", "user", strconv.FormatInt(p.UserID, 10), nil)
	h.redirectWithFlash(w, r, "/users/profile", "success", "Profile updated")
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, user User, errs formErrors, status int) {
	memberOf, err := h.service.GroupsOf(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load profile groups failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	matrix, err := h.permissionMatrix(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load permission matrix failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	h.render(w, r, "pages/users/profile.html", map[string]any{
		"User":   user,
		"Groups": memberOf,
		"Matrix": matrix,
		"Errors": errs,
	}, status)
}

// permissionMatrix resolves which of the declared permissions the user
// holds, grouped per module for the dashboard table.
func (h *Handler) permissionMatrix(ctx context.Context, userID int64) ([]permissionSection, error) {
	granted, err := h.grants.PermissionsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(granted))
	for _, name := range granted {
		held[name] = struct{}{}
	}
	sections := []struct {
		title string
		keys  []string
	}{
		{"Core", shared.CoreScopes()},
		{"Catalog", shared.CatalogScopes()},
		{"Blog", shared.BlogScopes()},
	}
	matrix := make([]permissionSection, 0, len(sections))
	for _, section := range sections {
		rows := make([]permissionGrant, 0, len(section.keys))
		for _, key := range section.keys {
			_, ok := held[key]
			rows = append(rows, permissionGrant{Name: key, Granted: ok})
		}
		matrix = append(matrix, permissionSection{Title: section.title, Grants: rows})
	}
	return matrix, nil
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handler) recordAudit(r *http.Request, action, entity, entityID string, meta map[string]any) {
	p := authz.PrincipalFromContext(r.Context())
	if err := h.audit.Record(r.Context(), shared.AuditLog{ActorID: p.UserID, Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		h.logger.Warn("record audit entry failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	p := authz.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       "Users",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Viewer:      view.Viewer{Email: p.Email, Role: authz.ViewerRoleFromContext(r.Context()).String(), Authenticated: p.Authenticated},
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func withoutGroups(all, member []Group) []Group {
	if len(member) == 0 {
		return all
	}
	taken := make(map[int64]struct{}, len(member))
	for _, g := range member {
		taken[g.ID] = struct{}{}
	}
	filtered := make([]Group, 0, len(all))
	for _, g := range all {
		if _, ok := taken[g.ID]; ok {
			continue
		}
		filtered = append(filtered, g)
	}
	return filtered
}
