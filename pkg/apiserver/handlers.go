package apiserver

import (
	"bytes"
	"net/http"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/illmade-knight/go-apicache/pkg/render"
)

type cacheInfoData struct {
	IsCached bool  `json:"is_cached"`
	CacheAge int64 `json:"cache_age"`
}

type dataResponse struct {
	Data      any           `json:"data"`
	CacheInfo cacheInfoData `json:"cache_info"`
	Timestamp string        `json:"timestamp"`
}

type refreshResponse struct {
	Data      any    `json:"data"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) timestamp() string {
	return s.now().Format(TimestampLayout)
}

// handleGetData serves the cached payload to anyone.
func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	payload, err := s.data.GetData(r.Context(), false)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, publicMessage(err))
		return
	}

	info := s.data.GetCacheInfo(r.Context())
	s.writeJSON(w, http.StatusOK, true, dataResponse{
		Data: render.SanitizePayload(payload),
		CacheInfo: cacheInfoData{
			IsCached: info.HasCache,
			CacheAge: info.AgeSeconds(),
		},
		Timestamp: s.timestamp(),
	})
}

// handleRefresh forces a fetch. The caller is already known to be an admin;
// the nonce is checked here.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if err := s.auth.VerifyNonce(auth.NonceFromRequest(r), id, auth.ActionRefresh); err != nil {
		s.logger.Warn().Err(err).Str("subject", id.Subject).Msg("Refresh rejected by nonce check.")
		s.writeError(w, http.StatusForbidden, msgSecurityCheck)
		return
	}

	payload, err := s.data.GetData(r.Context(), true)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, publicMessage(err))
		return
	}

	s.logger.Info().Str("subject", id.Subject).Msg("Data refreshed on request.")
	s.writeJSON(w, http.StatusOK, true, refreshResponse{
		Data:      render.SanitizePayload(payload),
		Message:   msgRefreshed,
		Timestamp: s.timestamp(),
	})
}

// handleNonce issues a refresh nonce to an admin.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, expires, err := s.auth.IssueNonce(auth.IdentityFromContext(r.Context()), auth.ActionRefresh)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue nonce.")
		s.writeError(w, http.StatusInternalServerError, msgUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, true, nonceResponse{Nonce: nonce, ExpiresAt: expires.UTC()})
}

// handleAdmin renders the admin page.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	view := render.AdminView{
		Endpoint:      s.cfg.Endpoint,
		CacheDuration: render.HumanDuration(s.data.TTL()),
		CLICommand:    s.cfg.CLICommand,
		RefreshURL:    "/api/refresh",
	}

	payload, err := s.data.GetData(r.Context(), false)
	if err != nil {
		view.Error = publicMessage(err)
	} else {
		view.Table = render.BuildTable(payload, render.TableOptions{})
	}
	view.Info = s.data.GetCacheInfo(r.Context())

	if nonce, expires, err := s.auth.IssueNonce(auth.IdentityFromContext(r.Context()), auth.ActionRefresh); err == nil {
		view.Nonce = nonce
		view.NonceExpiresIn = render.HumanDuration(expires.Sub(s.now()))
	}

	s.writeHTML(w, http.StatusOK, func(buf *bytes.Buffer) error { return s.renderer.Admin(buf, view) })
}

// handleLogin exchanges a pasted admin token for a session cookie so the
// admin page works from a browser.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	cookie, _, err := s.auth.Login(r, r.PostFormValue("token"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Admin login rejected.")
		status := http.StatusUnauthorized
		message := msgLoginFailed
		if !auth.IsUnauthenticated(err) {
			status, message = http.StatusForbidden, msgPagePerms
		}
		s.writeLogin(w, status, message)
		return
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, adminPath, http.StatusSeeOther)
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.LogoutCookie())
	http.Redirect(w, r, adminPath, http.StatusSeeOther)
}

// handleWidget renders the embeddable table. Query parameters: columns (comma
// separated keys to show), header (0 hides the header) and id (element id).
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := render.WidgetView{BlockID: q.Get("id")}

	payload, err := s.data.GetData(r.Context(), false)
	if err != nil {
		view.Error = publicMessage(err)
	} else {
		view.Table = render.BuildTable(payload, render.TableOptions{
			VisibleColumns: render.ParseColumns(q.Get("columns")),
			HideHeader:     q.Get("header") == "0",
		})
	}

	s.writeHTML(w, http.StatusOK, func(buf *bytes.Buffer) error { return s.renderer.Widget(buf, view) })
}

// writeHTML renders into a buffer first so a template error never leaves a
// half-written page behind.
func (s *Server) writeHTML(w http.ResponseWriter, status int, draw func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render page.")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
