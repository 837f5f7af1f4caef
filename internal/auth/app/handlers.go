package app

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/tbranch/accountlink/internal/auth/identity"
	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/platform/errors"
	"github.com/tbranch/accountlink/internal/platform/i18n"
)

const sessionCookie = "session_id"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps a domain error onto an HTTP response. Internal details
// stay in the log; clients see the code and message only.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.service.logger().Printf("auth handler: %v", err)
		writeJSONError(w, status, "internal error")
		return
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}

// ensureSession loads the browser session from its cookie, starting a
// fresh one when the cookie is absent, unknown, or expired.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (storage.Session, error) {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		sess, err := s.service.Store.GetSession(r.Context(), cookie.Value)
		if err == nil && sess.ExpiresAt.After(s.service.now()) {
			return sess, nil
		}
		if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			return storage.Session{}, err
		}
	}

	sess, err := s.service.Sessions.Begin(r.Context())
	if err != nil {
		return storage.Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

func (s *Server) locale(r *http.Request) string {
	return r.Header.Get("Accept-Language")
}

func (s *Server) handleProviderRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/auth/providers/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	providerName := parts[0]
	action := parts[1]

	switch action {
	case "start":
		s.handleProviderStart(w, r, providerName)
	case "callback":
		s.handleProviderCallback(w, r, providerName)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProviderStart(w http.ResponseWriter, r *http.Request, providerName string) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.service.Registry.Get(providerName); !ok {
		http.NotFound(w, r)
		return
	}

	sess, err := s.ensureSession(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	authURL, err := s.service.StartProviderFlow(r.Context(), providerName, sess.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleProviderCallback(w http.ResponseWriter, r *http.Request, providerName string) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.service.Registry.Get(providerName); !ok {
		http.NotFound(w, r)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeJSONError(w, http.StatusBadRequest, errParam)
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeJSONError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	sess, err := s.ensureSession(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	outcome, err := s.service.HandleCallback(r.Context(), providerName, code, state, &sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, rejected := outcome.(identity.Reject); rejected {
		// One generic refusal for every rejection reason; the reason is
		// not disclosed to the browser.
		tag := i18n.Match(s.locale(r))
		writeJSONError(w, http.StatusForbidden, i18n.Message(tag, i18n.MsgSignInRejected))
		return
	}

	status, err := s.service.Status(r.Context(), sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	sess, err := s.ensureSession(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.service.LoginWithPassword(r.Context(), req.Email, req.Password, &sess); err != nil {
		if errors.CodeOf(err) == errors.CodeInvalidCredential {
			tag := i18n.Match(s.locale(r))
			writeJSONError(w, http.StatusUnauthorized, i18n.Message(tag, i18n.MsgInvalidCredential))
			return
		}
		s.writeError(w, err)
		return
	}

	status, err := s.service.Status(r.Context(), sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if sess, err := s.service.Store.GetSession(r.Context(), cookie.Value); err == nil {
			s.service.Logout(r.Context(), &sess)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	tag := i18n.Match(s.locale(r))
	writeJSON(w, http.StatusOK, map[string]string{"message": i18n.Message(tag, i18n.MsgSignedOut)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess, err := s.ensureSession(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.service.Status(r.Context(), sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVerifyRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess, err := s.ensureSession(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.RequestVerification(r.Context(), sess); err != nil {
		s.writeError(w, err)
		return
	}

	tag := i18n.Match(s.locale(r))
	writeJSON(w, http.StatusAccepted, map[string]string{"message": i18n.Message(tag, i18n.MsgVerificationSent)})
}

func (s *Server) handleVerifyRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := s.service.RedeemVerification(r.Context(), token); err != nil {
		s.writeError(w, err)
		return
	}

	tag := i18n.Match(s.locale(r))
	writeJSON(w, http.StatusOK, map[string]string{"message": i18n.Message(tag, i18n.MsgEmailVerified)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
