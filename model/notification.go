package model

import "time"

// Notification is a transient toast-style message for the UI.
type Notification struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
