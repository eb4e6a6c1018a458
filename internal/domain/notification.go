package domain

import "time"

// NotificationType groups user notifications in the inbox.
type NotificationType string

const (
	NotificationTypeOrder NotificationType = "ORDER"
)

// Notification is a message in a user's inbox.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// User is the subset of account data the settlement engine needs.
type User struct {
	ID        string
	Email     string
	FirstName string
}
