package http

import (
	"net/http"
	"strings"

	"moodtracker/internal/auth"
	applog "moodtracker/internal/log"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireAuth resolves the bearer token to a user before calling next.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			UnauthorizedError("Missing bearer token").Write(w)
			return
		}
		userID, err := s.auth.Authenticate(token)
		if err != nil {
			ErrorFor(err).Write(w)
			return
		}
		ctx := applog.NewContext(r.Context(), applog.FromContext(r.Context()).With(applog.FieldUserID, userID))
		next(w, r.WithContext(ctx), userID)
	}
}

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type profileRequest struct {
	FullName string `json:"full_name"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}

	session, err := s.auth.SignUp(r.Context(), auth.SignUpInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FullName:        strings.TrimSpace(req.FullName),
	})
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Sign-up rejected",
			applog.FieldOperation, applog.OpSignUp, applog.FieldError, err)
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(session).Write(w)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}

	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().Data(session).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		UnauthorizedError("Missing bearer token").Write(w)
		return
	}
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := s.auth.User(r.Context(), userID)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().Data(u).Write(w)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request, userID string) {
	var req passwordRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	if err := s.auth.UpdatePassword(r.Context(), userID, req.Password, req.ConfirmPassword); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, userID string) {
	var req profileRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}

	u, err := s.auth.UpdateProfile(r.Context(), userID, req.FullName)
	if err != nil {
		if u.ID == "" {
			ErrorFor(err).Write(w)
			return
		}
		// The profile is saved; only the ledger reload behind it failed.
		applog.LogError(r.Context(), "Ledger reload after profile update failed", err, applog.OpLoad, nil)
	}
	NewJSONResponse().Data(u).Notices(r).Write(w)
}
