package server

import (
	"encoding/json"
	"net/http"

	"legalmitra/pkg/domain"
	"legalmitra/services/api/internal/app"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type authResponse struct {
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, AvatarURL: u.AvatarURL}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "Too many signup attempts, please try again later") {
		s.audit(r, "auth.signup", "rate_limited")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.audit(r, "auth.signup", "fail", "reason", "invalid_body")
		writeAppError(w, r, err)
		return
	}
	user, token, err := s.app.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", string(app.KindOf(err)))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserResponse(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts, please try again later") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.audit(r, "auth.login", "fail", "reason", "invalid_body")
		writeAppError(w, r, err)
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", string(app.KindOf(err)))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Message: "Logged in Successfully",
		Token:   token,
		User:    toUserResponse(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logout successful - clear token on client side",
	})
}

const invalidBodyMessage = "Invalid request body"

// decodeJSON reads a size limited JSON body. Decoding errors raised by the
// target type itself, such as a malformed messages string, pass through.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if app.KindOf(err) == app.KindBadRequest {
			return err
		}
		return &app.Error{Kind: app.KindBadRequest, Message: invalidBodyMessage, Err: err}
	}
	return nil
}
