package session

import (
	"errors"

	"github.com/nerrad567/expo-client-core/internal/apiclient"
	"github.com/nerrad567/expo-client-core/internal/auth"
)

// User-facing messages.
const (
	MsgGeneric              = "Something went wrong. Please try again."
	MsgUnreachable          = "Unable to reach the server. Please check your connection."
	MsgInProgress           = "authentication already in progress"
	MsgAlreadyAuthenticated = "already authenticated"
	MsgNotAuthenticated     = "not authenticated"
	MsgSessionExpired       = "Your session has expired. Please log in again."
	MsgCancelled            = "Sign-in was cancelled."
	MsgResetSent            = "If an account exists for this email, a reset link has been sent."
	MsgPasswordChanged      = "Password updated successfully."
	MsgNothingToUpdate      = "No changes to save."
)

// Result is the outcome of a session operation. Operations never return
// Go errors for expected failures; Error carries the message to show.
type Result struct {
	Success bool
	Error   string
	Message string
	User    *auth.User
}

func failure(msg string) Result {
	return Result{Error: msg}
}

// messageFor turns an API error into the text shown to the user.
func messageFor(err error) string {
	var apiErr *apiclient.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case apiclient.IsTransport(err):
		return MsgUnreachable
	default:
		return MsgGeneric
	}
}
