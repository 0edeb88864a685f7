package blog

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

// Handler serves the blog pages. Reading is public; writing needs a
// signed-in author, and touching someone else's post needs the matching
// moderation permission, checked explicitly before the service call.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		validate:  validator.New(),
	}
}

// MountRoutes registers blog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPosts)
	r.Get("/{id}", h.showPost)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated())
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createPost)
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.updatePost)
		r.Get("/{id}/delete", h.confirmDelete)
		r.Post("/{id}/delete", h.deletePost)
	})
}

type formErrors map[string]string

type postForm struct {
	Title   string `validate:"required,max=200"`
	Content string `validate:"required"`
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	page, err := h.service.BrowsePosts(r.Context(), pageNum)
	if err != nil {
		h.logger.Error("browse posts failed", slog.Any("error", err))
		h.render(w, r, "pages/blog/list.html", map[string]any{"Errors": formErrors{"general": "could not load posts"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/blog/list.html", map[string]any{
		"Posts":      page.Posts,
		"Pagination": page.Pagination,
	}, http.StatusOK)
}

func (h *Handler) showPost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load post failed", slog.Int64("post_id", id), slog.Any("error", err))
		h.render(w, r, "pages/blog/detail.html", map[string]any{"Errors": formErrors{"general": "could not load post"}}, http.StatusInternalServerError)
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	canEdit := p.Authenticated && post.AuthorID == p.UserID
	if !canEdit && p.Authenticated {
		if ok, err := h.guard.Gate.HasPermission(r.Context(), p, shared.PermBlogPostEdit); err == nil && ok {
			canEdit = true
		}
	}
	h.render(w, r, "pages/blog/detail.html", map[string]any{"Post": post, "CanEdit": canEdit}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/blog/form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/blog/form.html", map[string]any{"Errors": errs, "Form": form}, http.StatusUnprocessableEntity)
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	post, err := h.service.CreatePost(r.Context(), form.Title, form.Content, p.UserID)
	if err != nil {
		h.logger.Error("create post failed", slog.Any("error", err))
		h.render(w, r, "pages/blog/form.html", map[string]any{"Errors": formErrors{"general": "Could not publish post"}, "Form": form}, http.StatusInternalServerError)
		return
	}
	h.redirectWithFlash(w, r, "/blog/"+strconv.FormatInt(post.ID, 10), "success", "Post published")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load post failed", slog.Int64("post_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/blog", "error", "Could not load post")
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	if post.AuthorID != p.UserID && !h.canModerate(r, shared.PermBlogPostEdit) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	form := postForm{Title: post.Title, Content: post.Content}
	h.render(w, r, "pages/blog/form.html", map[string]any{"Errors": formErrors{}, "Form": form, "PostID": id}, http.StatusOK)
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	form, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/blog/form.html", map[string]any{"Errors": errs, "Form": form, "PostID": id}, http.StatusUnprocessableEntity)
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	post, err := h.service.UpdatePost(r.Context(), id, form.Title, form.Content, p.UserID, h.canModerate(r, shared.PermBlogPostEdit))
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, ErrNotAuthor):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("update post failed", slog.Int64("post_id", id), slog.Any("error", err))
			h.render(w, r, "pages/blog/form.html", map[string]any{"Errors": formErrors{"general": "Could not update post"}, "Form": form, "PostID": id}, http.StatusInternalServerError)
		}
		return
	}
	h.redirectWithFlash(w, r, "/blog/"+strconv.FormatInt(post.ID, 10), "success", "Post updated")
}

func (h *Handler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load post failed", slog.Int64("post_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/blog", "error", "Could not load post")
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	if post.AuthorID != p.UserID && !h.canModerate(r, shared.PermBlogPostDelete) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	h.render(w, r, "pages/blog/delete.html", map[string]any{"Post": post}, http.StatusOK)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	err := h.service.DeletePost(r.Context(), id, p.UserID, h.canModerate(r, shared.PermBlogPostDelete))
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, ErrNotAuthor):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("delete post failed", slog.Int64("post_id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/blog", "error", "Could not delete post")
		}
		return
	}
	h.redirectWithFlash(w, r, "/blog", "success", "Post deleted")
}

// canModerate asks the gate for a moderation permission. Store trouble
// resolves to false; the author path still works.
func (h *Handler) canModerate(r *http.Request, key string) bool {
	p := authz.PrincipalFromContext(r.Context())
	ok, err := h.guard.Gate.HasPermission(r.Context(), p, key)
	if err != nil {
		h.logger.Error("check moderation permission failed", slog.String("permission", key), slog.Any("error", err))
		return false
	}
	return ok
}

func (h *Handler) parseForm(r *http.Request) (postForm, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission"
		return postForm{}, errs
	}
	form := postForm{
		Title:   strings.TrimSpace(r.FormValue("title")),
		Content: strings.TrimSpace(r.FormValue("content")),
	}
	if err := h.validate.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			switch fieldErr.Field() {
			case "Title":
				errs["title"] = "Title is required and must be at most 200 characters"
			case "Content":
				errs["content"] = "Content is required"
			}
		}
	}
	return form, errs
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
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
		Title:       "Blog",
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
