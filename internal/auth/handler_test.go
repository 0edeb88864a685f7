package auth_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/shared"
	"github.com/athenaeum-app/athenaeum/internal/view"
	_ "github.com/athenaeum-app/athenaeum/testing"
)

type createdAccount struct {
	email    string
	username string
	hash     string
}

type stubRepo struct {
	user      *auth.User
	createErr error
	created   []createdAccount
	sessions  map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrInvalidCredentials
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, email, username, passwordHash string) (*auth.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, createdAccount{email: email, username: username, hash: passwordHash})
	return &auth.User{ID: 7, Email: email, Username: username, PasswordHash: passwordHash, IsActive: true}, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(logWriter{t}, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), templates, sessionManager, csrfManager, nil)
	return handler, sessionManager
}

// serveWithSession loads (or creates) the session for the request, runs the
// handler, commits, and returns the recorder together with the session.
func serveWithSession(t *testing.T, sm *shared.SessionManager, req *http.Request, fn http.HandlerFunc) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	fn(res, req)
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func postForm(target string, data url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(data.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login?next=%2Fcatalog%2Fmanage", nil)
	res, _ := serveWithSession(t, sessionManager, req, handler.ShowLoginForTest)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "<form") {
		t.Fatalf("expected login form in body")
	}
	if !strings.Contains(body, "/catalog/manage") {
		t.Fatalf("expected next target carried into the form")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("email", "user@test.local")
	postData.Set("password", "wrongpassword")

	res, _ := serveWithSession(t, sessionManager, postForm("/auth/login", postData), handler.HandleLoginForTest)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email atau password tidak valid") {
		t.Fatalf("expected error message in response")
	}
	if len(repo.sessions) != 0 {
		t.Fatalf("no session must be registered for failed logins")
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass1"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: false}}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("email", "user@test.local")
	postData.Set("password", "correctpass1")

	res, _ := serveWithSession(t, sessionManager, postForm("/auth/login", postData), handler.HandleLoginForTest)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inactive account, got %d", res.Code)
	}
}

func TestLoginSuccess(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass1"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 42, Email: "reader@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("email", "  Reader@Test.LOCAL ")
	postData.Set("password", "correctpass1")

	res, sess := serveWithSession(t, sessionManager, postForm("/auth/login", postData), handler.HandleLoginForTest)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
	if sess.User() != "42" {
		t.Fatalf("expected session bound to user 42, got %q", sess.User())
	}
	if got := repo.sessions[sess.ID]; got != 42 {
		t.Fatalf("expected session record for user 42, got %d", got)
	}
}

func TestLoginRedirectsToNext(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass1"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	cases := map[string]string{
		"/catalog/manage":  "/catalog/manage",
		"https://evil.com": "/",
		"//evil.com":       "/",
		"":                 "/",
	}
	for next, want := range cases {
		postData := url.Values{}
		postData.Set("email", "user@test.local")
		postData.Set("password", "correctpass1")
		postData.Set("next", next)

		res, _ := serveWithSession(t, sessionManager, postForm("/auth/login", postData), handler.HandleLoginForTest)

		if res.Code != http.StatusSeeOther {
			t.Fatalf("next=%q: expected 303, got %d", next, res.Code)
		}
		if loc := res.Header().Get("Location"); loc != want {
			t.Fatalf("next=%q: expected redirect to %q, got %q", next, want, loc)
		}
	}
}

func TestRegisterSuccess(t *testing.T) {
	repo := &stubRepo{}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("email", "  New@Test.LOCAL ")
	postData.Set("username", " newreader ")
	postData.Set("password", "longenoughpass")
	postData.Set("password_confirm", "longenoughpass")

	res, sess := serveWithSession(t, sessionManager, postForm("/auth/register", postData), handler.HandleRegisterForTest)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", res.Code, res.Body.String())
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one account created, got %d", len(repo.created))
	}
	acc := repo.created[0]
	if acc.email != "new@test.local" {
		t.Fatalf("expected normalised email, got %q", acc.email)
	}
	if acc.username != "newreader" {
		t.Fatalf("expected trimmed username, got %q", acc.username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.hash), []byte("longenoughpass")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if sess.User() != "7" {
		t.Fatalf("expected session bound to the new account, got %q", sess.User())
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	repo := &stubRepo{}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("email", "new@test.local")
	postData.Set("username", "newreader")
	postData.Set("password", "longenoughpass")
	postData.Set("password_confirm", "different-pass")

	res, _ := serveWithSession(t, sessionManager, postForm("/auth/register", postData), handler.HandleRegisterForTest)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(repo.created) != 0 {
		t.Fatalf("no account may be created on validation failure")
	}
}

func TestRegisterEmailTaken(t *testing.T) {
	repo := &stubRepo{createErr: auth.ErrEmailTaken}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("email", "taken@test.local")
	postData.Set("username", "newreader")
	postData.Set("password", "longenoughpass")
	postData.Set("password_confirm", "longenoughpass")

	res, _ := serveWithSession(t, sessionManager, postForm("/auth/register", postData), handler.HandleRegisterForTest)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email sudah terdaftar") {
		t.Fatalf("expected duplicate email message")
	}
}
