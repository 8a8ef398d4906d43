package models

import "time"

// User represents an account as exposed by the Subscribr backend.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Profile is a user record together with the subscription edges the backend
// embeds in the single-user response.
type Profile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Subscriptions []User `json:"subscriptions"`
}

// User returns the profile without its subscriptions.
func (p Profile) User() User {
	return User{ID: p.ID, Username: p.Username}
}

// VideoPost is the body sent when a user starts a video upload.
type VideoPost struct {
	Name            string `json:"name"`
	VideoUploaderID string `json:"videoUploaderId"`
}

// Severity classifies a notification for display.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is a transient message describing the outcome of an action or
// an inbound event.
type Notification struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}
