package models

import "time"

// NoteInfo is a lightweight entry returned by directory listings.
type NoteInfo struct {
	Path      string    `json:"path"`
	IsDir     bool      `json:"is_dir"`
	Size      int64     `json:"size,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// TaskItem is one checkbox task extracted from a note.
type TaskItem struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// SearchHit is one match from a vault content search.
type SearchHit struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}
