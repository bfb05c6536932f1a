package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/email"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
)

const (
	sessionCookieName = "aisle_session"
	maxCodeAttempts   = 5
)

type AuthHandler struct {
	userStore      *store.UserStore
	sessionStore   *store.SessionStore
	magicLinkStore *store.MagicLinkStore
	resolver       *tenant.Resolver
	emailClient    *email.Client
	secureCookies  bool
	logger         *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	mls *store.MagicLinkStore,
	resolver *tenant.Resolver,
	ec *email.Client,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:      us,
		sessionStore:   ss,
		magicLinkStore: mls,
		resolver:       resolver,
		emailClient:    ec,
		secureCookies:  secureCookies,
		logger:         logger,
	}
}

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Register creates the user record and sends a sign-in code. The team is
// provisioned lazily on the first authenticated request, not here.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	existing, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "an account with this email already exists")
		return
	}

	if _, err := h.userStore.Create(req.Email, req.Name); err != nil {
		h.logger.Error("register create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.sendCode(req.Email, "register")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

type requestCodeRequest struct {
	Email string `json:"email"`
}

// RequestCode sends a sign-in code. Always answers 202 so the endpoint
// cannot be used to enumerate accounts.
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	defer writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("request code lookup", "error", err)
		return
	}
	if user == nil {
		return
	}

	h.sendCode(req.Email, "login")
}

func (h *AuthHandler) sendCode(emailAddr, purpose string) {
	_, code, err := h.magicLinkStore.Create(emailAddr, purpose)
	if err != nil {
		h.logger.Error("create auth code", "error", err)
		return
	}
	if err := h.emailClient.SendAuthCode(emailAddr, code, purpose); err != nil {
		h.logger.Error("send auth code", "email", emailAddr, "error", err)
	}
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Verify exchanges a valid code for a session cookie. Codes are single-use
// and locked after too many wrong attempts.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	ml, err := h.magicLinkStore.GetLatestByEmail(req.Email)
	if err != nil {
		h.logger.Error("verify lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ml == nil || ml.UsedAt != nil || time.Now().After(ml.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}
	if ml.Attempts >= maxCodeAttempts {
		writeError(w, http.StatusUnauthorized, "too many attempts, request a new code")
		return
	}

	if !store.Matches(ml, req.Code) {
		attempts, err := h.magicLinkStore.IncrementAttempts(ml.ID)
		if err != nil {
			h.logger.Error("verify increment attempts", "error", err)
		}
		if attempts >= maxCodeAttempts {
			writeError(w, http.StatusUnauthorized, "too many attempts, request a new code")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	if err := h.magicLinkStore.MarkUsed(ml.ID); err != nil {
		h.logger.Error("verify mark used", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil || user == nil {
		h.logger.Error("verify user load", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("verify create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// Logout deletes the session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("logout delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me returns the authenticated user plus their team context.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	tc := resolveTeam(w, r, h.resolver)
	if tc == nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"team":        tc.Team,
		"role":        tc.Role(),
		"permissions": tc.Permissions(),
	})
}
