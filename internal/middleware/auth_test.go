package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/repository"
)

const testSecret = "test-secret-test-secret-test-secret"

func issueCookie(t *testing.T, m *AuthMiddleware, userID int64, role model.Role) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	if err := m.SetAuthCookie(w, userID, role); err != nil {
		t.Fatalf("SetAuthCookie error: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware(testSecret, false)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		s, ok := GetSessionFromContext(r.Context())
		if !ok {
			t.Fatalf("session not in context")
		}
		if s.UserID != 42 {
			t.Fatalf("user id from context = %d, want 42", s.UserID)
		}
		if s.Role != model.RoleAdmin {
			t.Fatalf("role from context = %q, want admin", s.Role)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(issueCookie(t, m, 42, model.RoleAdmin))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware(testSecret, false)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	issuer := NewAuthMiddleware("another-secret-another-secret-another", false)
	m := NewAuthMiddleware(testSecret, false)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(issueCookie(t, issuer, 42, model.RoleUser))

	m.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, false)
	cookie := issueCookie(t, m, 42, model.RoleUser)

	m.now = func() time.Time { return time.Now().Add(authCookieTTL + time.Minute) }

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookie)

	m.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestClearAuthCookie(t *testing.T) {
	m := NewAuthMiddleware(testSecret, true)

	w := httptest.NewRecorder()
	m.ClearAuthCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	if cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("cookie is not cleared: %+v", cookies[0])
	}
	if !cookies[0].Secure {
		t.Fatalf("cookie must be secure")
	}
}

type stubRoles struct {
	role model.Role
	err  error
}

func (s stubRoles) GetUserRole(ctx context.Context, userID int64) (model.Role, error) {
	return s.role, s.err
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		lookup     stubRoles
		withUser   bool
		wantStatus int
	}{
		{name: "admin passes", lookup: stubRoles{role: model.RoleAdmin}, withUser: true, wantStatus: http.StatusOK},
		{name: "user forbidden", lookup: stubRoles{role: model.RoleUser}, withUser: true, wantStatus: http.StatusForbidden},
		{name: "deleted user", lookup: stubRoles{err: repository.ErrUserNotFound}, withUser: true, wantStatus: http.StatusUnauthorized},
		{name: "lookup failure", lookup: stubRoles{err: errors.New("db down")}, withUser: true, wantStatus: http.StatusInternalServerError},
		{name: "no session", lookup: stubRoles{role: model.RoleAdmin}, withUser: false, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			if tt.withUser {
				ctx := context.WithValue(r.Context(), sessionKey, Session{UserID: 7, Role: model.RoleAdmin})
				r = r.WithContext(ctx)
			}

			w := httptest.NewRecorder()
			RequireRole(tt.lookup, model.RoleAdmin)(next).ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
