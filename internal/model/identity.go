package model

import "time"

// Identity is an anonymous subject. The raw token only ever lives in the
// client's cookie; the database keeps its hash.
type Identity struct {
	Subject    string    `json:"subject"`
	TokenHash  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
