package fakebackend

import (
	"encoding/json"
	"net/http"
)

// errorBody is the shape every non-2xx response carries.
type errorBody struct {
	Error string `json:"error"`
}

// messageBody is returned by endpoints that only acknowledge.
type messageBody struct {
	Message string `json:"message"`
}

// Messages returned by the fixture, matching the production backend wording.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgNotAuthorized      = "Not authorized, token failed"
	msgNoToken            = "Not authorized, no token"
	msgUserExists         = "User already exists"
	msgUserNotFound       = "User not found"
	msgMissingFields      = "Please provide all required fields"
	msgInvalidRole        = "Invalid role"
	msgWrongPassword      = "Current password is incorrect"
	msgWeakPassword       = "Password must be at least 6 characters"
	msgPasswordUpdated    = "Password updated successfully"
	msgResetSent          = "Password reset email sent"
	msgServerError        = "Server error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
