package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"codetrace/internal/config"
	"codetrace/internal/logger"
	"codetrace/internal/middleware"
)

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func matches(given, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// roleFor maps a password to the role it unlocks.
func roleFor(cfg *config.Config, password string) (middleware.Role, bool) {
	switch {
	case matches(password, cfg.Password):
		return middleware.RoleAdmin, true
	case matches(password, cfg.ViewerPassword):
		return middleware.RoleViewer, true
	}
	return "", false
}

// LoginHandler accepts the password as a form field or a JSON body and starts
// a session. Form posts are redirected to the index page.
func LoginHandler(cfg *config.Config, sessions *middleware.Sessions, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var password string
		if wantsJSON(r) {
			req, err := parseJSON[loginRequest](r)
			if err != nil {
				writeError(w, logger, http.StatusBadRequest, err.Error())
				return
			}
			password = req.Password
		} else {
			password = r.FormValue("password")
		}

		role, ok := roleFor(cfg, password)
		if !ok {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    sessions.Create(role),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		logger.Info("User signed in as %s from %s", role, r.RemoteAddr)

		if wantsJSON(r) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]middleware.Role{"role": role})
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutHandler ends the session and clears the cookie.
func LogoutHandler(sessions *middleware.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
			sessions.Delete(cookie.Value)
		}

		http.SetCookie(w, &http.Cookie{
			Name:   middleware.SessionCookie,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// MeHandler returns the role of the current session.
func MeHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, _ := middleware.RoleFrom(r.Context())
		writeJSON(w, logger, http.StatusOK, map[string]middleware.Role{"role": role})
	}
}
