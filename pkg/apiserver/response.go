package apiserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/illmade-knight/go-apicache/pkg/render"
	"github.com/illmade-knight/go-apicache/pkg/upstream"
)

// Messages shown to callers. Internal error detail never leaves the server.
const (
	msgNotLoggedIn   = "You must be logged in to refresh data."
	msgNoPermission  = "You do not have permission to refresh data."
	msgSecurityCheck = "Security check failed."
	msgRefreshed     = "Data refreshed successfully!"
	msgUnavailable   = "Data is currently unavailable."
	msgPagePerms     = "You do not have sufficient permissions to access this page."
	msgLoginFailed   = "That token is not valid or has expired."
)

const (
	adminPath = "/admin"
	loginPath = "/admin/login"
)

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type messageData struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, success bool, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: success, Data: data}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write JSON response.")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, false, messageData{Message: message})
}

// publicMessage returns the short, user-facing text for err.
func publicMessage(err error) string {
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return ue.Message
	}
	return msgUnavailable
}

func (s *Server) denyJSON(w http.ResponseWriter, _ *http.Request, status int, err error) {
	if status == http.StatusUnauthorized || auth.IsUnauthenticated(err) {
		s.writeError(w, http.StatusUnauthorized, msgNotLoggedIn)
		return
	}
	s.writeError(w, http.StatusForbidden, msgNoPermission)
}

// denyHTML shows the login form to anonymous browsers and a plain
// permissions message to everyone else.
func (s *Server) denyHTML(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	w.Header().Set("Cache-Control", "no-store")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="apicache"`)
		s.writeLogin(w, status, "")
		return
	}
	http.Error(w, msgPagePerms, status)
}

func (s *Server) writeLogin(w http.ResponseWriter, status int, message string) {
	view := render.LoginView{Action: loginPath, Error: message}
	s.writeHTML(w, status, func(buf *bytes.Buffer) error { return s.renderer.Login(buf, view) })
}
