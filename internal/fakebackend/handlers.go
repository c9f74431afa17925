package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nerrad567/expo-client-core/internal/auth"
)

// minPasswordLength mirrors the backend's registration rule.
const minPasswordLength = 6

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Company   string `json:"company"`
	Phone     string `json:"phone"`
}

// profileRequest fields are pointers so absent keys leave values alone.
type profileRequest struct {
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Company   *string `json:"company"`
	Phone     *string `json:"phone"`
	Bio       *string `json:"bio"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

type userResponse struct {
	User auth.User `json:"user"`
}

func decodeBody(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(r, &req) || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	acct, ok := s.accountByEmail(req.Email)
	if !ok {
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	match, err := checkPassword(req.Password, acct.passwordHash)
	if err != nil {
		s.logger.Error("stored hash unreadable", "user_id", acct.user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	if !match {
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	s.respondWithToken(w, http.StatusOK, acct.user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(r, &req) || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, msgWeakPassword)
		return
	}

	role := auth.RoleAttendee
	if req.Role != "" {
		parsed, err := auth.ParseRole(req.Role)
		// Admins are provisioned out of band, never self-registered.
		if err != nil || parsed == auth.RoleAdmin {
			writeError(w, http.StatusBadRequest, msgInvalidRole)
			return
		}
		role = parsed
	}

	if _, exists := s.accountByEmail(req.Email); exists {
		writeError(w, http.StatusBadRequest, msgUserExists)
		return
	}

	u, err := s.AddUser(auth.User{
		Role:      role,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Company:   req.Company,
		Phone:     req.Phone,
	}, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("account registered", "user_id", u.ID, "role", u.Role)
	s.respondWithToken(w, http.StatusCreated, u)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, u auth.User) {
	token, err := s.issueToken(&u, s.ttl)
	if err != nil {
		s.logger.Error("issuing token", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.account(userIDFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	id := userIDFrom(r.Context())
	s.mu.Lock()
	acct, ok := s.accounts[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if req.Email != nil && !strings.EqualFold(*req.Email, acct.user.Email) {
		key := strings.ToLower(*req.Email)
		if _, taken := s.byEmail[key]; taken || *req.Email == "" {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, msgUserExists)
			return
		}
		delete(s.byEmail, strings.ToLower(acct.user.Email))
		s.byEmail[key] = id
		acct.user.Email = *req.Email
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&acct.user.Username, req.Username)
	apply(&acct.user.FirstName, req.FirstName)
	apply(&acct.user.LastName, req.LastName)
	apply(&acct.user.Company, req.Company)
	apply(&acct.user.Phone, req.Phone)
	apply(&acct.user.Bio, req.Bio)
	updated := *acct.user.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, userResponse{User: updated})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeBody(r, &req) || req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, msgWeakPassword)
		return
	}

	id := userIDFrom(r.Context())
	s.mu.RLock()
	acct, ok := s.accounts[id]
	var current string
	if ok {
		current = acct.passwordHash
	}
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}

	match, err := checkPassword(req.CurrentPassword, current)
	if err != nil || !match {
		writeError(w, http.StatusBadRequest, msgWrongPassword)
		return
	}

	hash, err := hashPassword(req.NewPassword, s.hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	s.mu.Lock()
	if a, still := s.accounts[id]; still {
		a.passwordHash = hash
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, messageBody{Message: msgPasswordUpdated})
}

// handleForgotPassword answers 404 for unknown emails, as the production
// backend does.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeBody(r, &req) || req.Email == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if _, ok := s.accountByEmail(req.Email); !ok {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}

	s.mu.Lock()
	s.resets = append(s.resets, req.Email)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, messageBody{Message: msgResetSent})
}
