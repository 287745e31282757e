package notifications

import "time"

type Notification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Mail is one outgoing message. An empty From uses the mailer default.
type Mail struct {
	From    string
	To      string
	Subject string
	Body    string
}
