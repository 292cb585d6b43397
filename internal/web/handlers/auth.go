package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new tenant account and provisions its campaign
// entry so the channel session starts pairing right away
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		h.respondError(w, http.StatusBadRequest, "username and password required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	_, err = h.db.Exec(
		"INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)",
		uuid.NewString(), creds.Username, string(hash),
	)
	if err != nil {
		h.respondError(w, http.StatusConflict, "user already exists")
		return
	}

	h.tenants.GetOrCreate(creds.Username)
	h.respondJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// Login verifies credentials and issues a session cookie
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		h.respondError(w, http.StatusBadRequest, "username and password required")
		return
	}

	var passwordHash string
	err := h.db.QueryRow(
		"SELECT password_hash FROM users WHERE username = ?",
		creds.Username,
	).Scan(&passwordHash)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(creds.Password)); err != nil {
		h.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Reattach the tenant's entry; the channel session survives logouts.
	h.tenants.GetOrCreate(creds.Username)

	sessionID := uuid.NewString()
	expiresAt := time.Now().Add(h.cfg.Auth.SessionTTL)
	if _, err := h.db.Exec(
		"INSERT INTO sessions (id, username, expires_at) VALUES (?, ?, ?)",
		sessionID, creds.Username, expiresAt,
	); err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cfg.Auth.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout deletes the session. The tenant's campaign and channel session
// are left running; logout only ends the browser session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil {
		h.db.Exec("DELETE FROM sessions WHERE id = ?", cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
