package models

import "time"

// Notification is an outbox row. Producers append notifications in the same
// logical step as the write that triggered them; a separate queue consumer
// performs delivery, so delivery failures never roll back the triggering
// write.
type Notification struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Message     string     `db:"message" json:"message"`
	Link        string     `db:"link" json:"link"`
	Read        bool       `db:"read" json:"read"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes listing queries.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
