package controller

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookie = "pi_session"

// ValidateToken checks the Authorization header against AdminToken. An empty AdminToken
// disables token access.
func (c *Controller) ValidateToken(r *http.Request) bool {
	if c.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == c.AdminToken
}

// ValidateBasic checks HTTP basic credentials against the bcrypt hashes of Users.
func (c *Controller) ValidateBasic(r *http.Request) bool {
	username, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return c.checkPassword(username, password)
}

func (c *Controller) checkPassword(username, password string) bool {
	u, ok := c.Users[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.Hash, []byte(password)) == nil
}

// ValidateSessionCookie checks the session cookie issued by HandleLogin.
func (c *Controller) ValidateSessionCookie(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	tok, err := jwt.Parse(cookie.Value,
		func(*jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	return err == nil && tok.Valid
}

// RequireAuth middleware
func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.ValidateToken(r) || c.ValidateBasic(r) || c.ValidateSessionCookie(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// IssueSession sets a signed session cookie for username.
func (c *Controller) IssueSession(w http.ResponseWriter, username string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  username,
		"role": c.Users[username].Role,
		"exp":  now.Add(c.SessionTTL).Unix(),
		"iat":  now.Unix(),
	})
	ss, err := token.SignedString(c.JWTSecret)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    ss,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(c.SessionTTL.Seconds()),
	})
	return nil
}

// HandleLogin exchanges a username and password for a session cookie.
func (c *Controller) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if !c.checkPassword(in.Username, in.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := c.IssueSession(w, in.Username); err != nil {
		writeError(w, http.StatusInternalServerError, "session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// HandleLogout clears the session cookie.
func (c *Controller) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}
