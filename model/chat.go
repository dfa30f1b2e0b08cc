package model

import "time"

// TranscriptMessage is one entry in the per-(user, lesson) tutor chat log
// kept in durable storage, outside the query cache.
type TranscriptMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
