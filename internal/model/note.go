package model

import "time"

type Attachment struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Note struct {
	ID         string      `json:"id"`
	OwnerID    string      `json:"owner_id"`
	Title      string      `json:"title"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
