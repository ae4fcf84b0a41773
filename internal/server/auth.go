package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bytesec/byte/internal/auth"
	"github.com/bytesec/byte/internal/user"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	if req.Name == "" {
		req.Name = "User"
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create account")
		return
	}

	created, err := s.users.Create(r.Context(), req.Email, req.Name, hash)
	if errors.Is(err, user.ErrEmailTaken) {
		writeError(w, http.StatusBadRequest, "email_taken", "Email already registered")
		return
	}
	if err != nil {
		s.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create account")
		return
	}

	s.issueToken(w, created)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	u, err := s.users.GetByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if errors.Is(err, user.ErrNotFound) || (err == nil && !auth.VerifyPassword(req.Password, u.PasswordHash)) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect email or password")
		return
	}
	if err != nil {
		s.logger.Error("look up user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not log in")
		return
	}

	s.issueToken(w, u)
}

func (s *Server) issueToken(w http.ResponseWriter, u *user.User) {
	token, err := s.auth.Issue(u.ID, u.Email)
	if err != nil {
		s.logger.Error("issue token", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    claims.UserID,
		"email": claims.Email,
	})
}
