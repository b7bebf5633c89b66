package model

import "time"

type ResultType string

const (
	ResultTypeText  ResultType = "text"
	ResultTypeImage ResultType = "image"
	ResultTypeVideo ResultType = "video"
	ResultTypeAudio ResultType = "audio"
)

// Result is the output of exactly one completed job. Content holds inline text
// or the relative storage path of the first artifact; Files lists every stored
// artifact path.
type Result struct {
	ID        string     `json:"id"`
	JobID     string     `json:"job_id"`
	Type      ResultType `json:"type"`
	Content   string     `json:"content"`
	Files     []string   `json:"files,omitempty"`
	Width     int        `json:"width,omitempty"`
	Height    int        `json:"height,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
