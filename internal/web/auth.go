package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wuweiapp/wuwei/internal/tools"
	"github.com/wuweiapp/wuwei/internal/users"
)

type ctxKey int

const userKey ctxKey = 0

// userFrom returns the authenticated account on the request, or nil.
func userFrom(r *http.Request) *users.User {
	u, _ := r.Context().Value(userKey).(*users.User)
	return u
}

// identityFrom builds the tool/loop identity for the authenticated
// account. This is the only place identity enters the system; it is
// never read from a request body.
func identityFrom(r *http.Request) tools.Identity {
	u := userFrom(r)
	if u == nil {
		return tools.Identity{}
	}
	return tools.Identity{UserID: u.ID, AnthropicAPIKey: u.AnthropicAPIKey}
}

// requireAuth resolves the bearer token to an account and stores it on
// the request context. WebSocket clients cannot set headers from the
// browser API, so a ?token= query parameter is accepted too.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			s.errorResponse(w, http.StatusUnauthorized, "authentication required")
			return
		}

		u, err := s.stores.Users.GetByToken(token)
		if errors.Is(err, sql.ErrNoRows) {
			s.errorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			s.logger.Error("token lookup failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "auth lookup failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return ""
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Timezone string `json:"timezone,omitempty"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *users.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.stores.Users.Create(req.Email, req.Password, req.Timezone)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.stores.Users.CreateToken(u.ID)
	if err != nil {
		s.logger.Error("token create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	s.logger.Info("account created", "user", u.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, authResponse{Token: token, User: u}, s.logger)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.stores.Users.Authenticate(req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		s.errorResponse(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := s.stores.Users.CreateToken(u.ID)
	if err != nil {
		s.logger.Error("token create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, authResponse{Token: token, User: u}, s.logger)
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

// handleSetAPIKey stores (or clears) the user's personal model key.
func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u := userFrom(r)
	if err := s.stores.Users.SetAnthropicAPIKey(u.ID, req.APIKey); err != nil {
		s.logger.Error("api key update failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "update failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}
