package groups

import (
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

// Handler manages group administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	audit     *shared.AuditLogger
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		audit:     audit,
		validate:  validator.New(),
	}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listGroups)
		r.Get("/{id}", h.showGroup)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRolesEdit))
		r.Get("/new", h.showCreateGroupForm)
		r.Post("/", h.createGroup)
		r.Post("/{id}/permissions", h.replacePermissions)
	})
}

type formErrors map[string]string

type groupForm struct {
	Name        string `validate:"required,min=3,max=64"`
	Description string `validate:"max=255"`
}

// permissionChoice is one row of the permission checkbox form.
type permissionChoice struct {
	Permission authz.Permission
	Granted    bool
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("list groups failed", slog.Any("error", err))
		h.render(w, r, "pages/groups/list.html", map[string]any{"Errors": formErrors{"general": "could not load groups"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/groups/list.html", map[string]any{"Groups": groups}, http.StatusOK)
}

func (h *Handler) showGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load group failed", slog.Int64("group_id", id), slog.Any("error", err))
		h.render(w, r, "pages/groups/detail.html", map[string]any{"Errors": formErrors{"general": "could not load group"}}, http.StatusInternalServerError)
		return
	}

	choices, err := h.permissionChoices(r, id)
	if err != nil {
		h.logger.Error("load group permissions failed", slog.Int64("group_id", id), slog.Any("error", err))
	}
	members, err := h.service.Members(r.Context(), id)
	if err != nil {
		h.logger.Error("load group members failed", slog.Int64("group_id", id), slog.Any("error", err))
	}
	canEdit, err := h.guard.Gate.HasPermission(r.Context(), authz.PrincipalFromContext(r.Context()), shared.PermRolesEdit)
	if err != nil {
		h.logger.Error("check edit permission failed", slog.Any("error", err))
	}

	h.render(w, r, "pages/groups/detail.html", map[string]any{
		"Group":       group,
		"Permissions": choices,
		"Members":     members,
		"CanEdit":     canEdit,
	}, http.StatusOK)
}

func (h *Handler) showCreateGroupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/groups/form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "pages/groups/form.html", map[string]any{"Errors": formErrors{"general": "Invalid form submission"}}, http.StatusBadRequest)
		return
	}
	form := groupForm{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := h.validate.Struct(form); err != nil {
		errs := formErrors{}
		for _, fieldErr := range err.(validator.ValidationErrors) {
			switch fieldErr.Field() {
			case "Name":
				errs["name"] = "Name must be 3-64 characters"
			case "Description":
				errs["description"] = "Description must be at most 255 characters"
			}
		}
		h.render(w, r, "pages/groups/form.html", map[string]any{"Errors": errs, "Form": form}, http.StatusUnprocessableEntity)
		return
	}

	group, err := h.service.CreateGroup(r.Context(), form.Name, form.Description)
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			h.render(w, r, "pages/groups/form.html", map[string]any{"Errors": formErrors{"name": "A group with this name already exists"}, "Form": form}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create group failed", slog.Any("error", err))
		h.render(w, r, "pages/groups/form.html", map[string]any{"Errors": formErrors{"general": "Could not create group"}, "Form": form}, http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "groups.created", strconv.FormatInt(group.ID, 10), map[string]any{"name": group.Name})
	h.redirectWithFlash(w, r, "/groups/"+strconv.FormatInt(group.ID, 10), "success", "Group created")
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/groups/"+strconv.FormatInt(id, 10), "error", "Invalid form submission")
		return
	}
	raw := r.PostForm["permissions"]
	permissionIDs := make([]int64, 0, len(raw))
	for _, value := range raw {
		permissionID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			h.redirectWithFlash(w, r, "/groups/"+strconv.FormatInt(id, 10), "error", "Unknown permission")
			return
		}
		permissionIDs = append(permissionIDs, permissionID)
	}

	if err := h.service.ReplacePermissions(r.Context(), id, permissionIDs); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("replace group permissions failed", slog.Int64("group_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/groups/"+strconv.FormatInt(id, 10), "error", "Could not update permissions")
		return
	}
	h.recordAudit(r, "groups.permissions_replaced", strconv.FormatInt(id, 10), map[string]any{"permission_ids": permissionIDs})
	h.redirectWithFlash(w, r, "/groups/"+strconv.FormatInt(id, 10), "success", "Permissions updated")
}

// permissionChoices pairs the full catalog with the group's current set.
func (h *Handler) permissionChoices(r *http.Request, groupID int64) ([]permissionChoice, error) {
	catalog, err := h.service.ListPermissions(r.Context())
	if err != nil {
		return nil, err
	}
	granted, err := h.service.PermissionsOf(r.Context(), groupID)
	if err != nil {
		return nil, err
	}
	held := make(map[int64]struct{}, len(granted))
	for _, p := range granted {
		held[p.ID] = struct{}{}
	}
	choices := make([]permissionChoice, 0, len(catalog))
	for _, p := range catalog {
		_, ok := held[p.ID]
		choices = append(choices, permissionChoice{Permission: p, Granted: ok})
	}
	return choices, nil
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handler) recordAudit(r *http.Request, action, entityID string, meta map[string]any) {
	p := authz.PrincipalFromContext(r.Context())
	if err := h.audit.Record(r.Context(), shared.AuditLog{ActorID: p.UserID, Action: action, Entity: "group", EntityID: entityID, Meta: meta}); err != nil {
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
		Title:       "Groups",
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
