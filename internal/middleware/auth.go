package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role decides what a signed in user may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// SessionCookie carries the session token.
const SessionCookie = "session"

type session struct {
	role    Role
	expires time.Time
}

// Sessions is an in-memory session store. Sessions do not survive a restart.
type Sessions struct {
	mu      sync.RWMutex
	entries map[string]session
	ttl     time.Duration
	now     func() time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		entries: make(map[string]session),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create starts a session for role and returns its token.
func (s *Sessions) Create(role Role) string {
	token := uuid.NewString()

	s.mu.Lock()
	s.entries[token] = session{role: role, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token
}

// Lookup returns the role of a live session. Expired sessions are dropped.
func (s *Sessions) Lookup(token string) (Role, bool) {
	if token == "" {
		return "", false
	}

	s.mu.RLock()
	entry, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if s.ttl > 0 && s.now().After(entry.expires) {
		s.Delete(token)
		return "", false
	}
	return entry.role, true
}

func (s *Sessions) Delete(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

type roleKey struct{}

// RoleFrom returns the role the middleware attached to the request context.
func RoleFrom(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleKey{}).(Role)
	return role, ok
}

func isPublic(path string) bool {
	return path == "/login" ||
		path == "/auth/login" ||
		strings.HasPrefix(path, "/static/") ||
		strings.HasPrefix(path, "/css/") ||
		strings.HasPrefix(path, "/js/")
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.HasPrefix(r.URL.Path, "/logs/") ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// viewerAllowed reports whether a viewer may issue r. Viewers can read and
// sign out, nothing else.
func viewerAllowed(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return true
	}
	return r.URL.Path == "/auth/logout"
}

// AuthMiddleware requires a valid session for everything except the login
// page and static assets. API callers get 401; browsers are sent to /login.
func AuthMiddleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			var role Role
			var ok bool
			if cookie, err := r.Cookie(SessionCookie); err == nil {
				role, ok = sessions.Lookup(cookie.Value)
			}
			if !ok {
				if isAPI(r) {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			if role == RoleViewer && !viewerAllowed(r) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
		})
	}
}
