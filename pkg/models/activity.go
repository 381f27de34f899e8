package models

import "time"

// ActivityKind classifies a recorded operation.
type ActivityKind string

const (
	ActivityTool     ActivityKind = "tool"
	ActivityResource ActivityKind = "resource"
	ActivityPrompt   ActivityKind = "prompt"
	ActivityError    ActivityKind = "error"
)

// ActivityRecord is one recorded operation for a credential.
type ActivityRecord struct {
	Kind       ActivityKind   `json:"kind"`
	Operation  string         `json:"operation"`
	Timestamp  time.Time      `json:"timestamp"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	ClientAddr string         `json:"client_addr,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
}

// CredentialActivity aggregates the recorded operations of one credential.
// It lives only in memory and is rebuilt from zero on restart.
type CredentialActivity struct {
	CredentialName string           `json:"credential_name"`
	FirstSeen      time.Time        `json:"first_seen"`
	Records        []ActivityRecord `json:"records"`
}

// LastActive is the timestamp of the most recent record. An aggregate with
// no records yet reports the current time, which makes a freshly-connected
// but idle credential sort as more recently active than one with real but
// older history.
func (a *CredentialActivity) LastActive() time.Time {
	if len(a.Records) == 0 {
		return time.Now().UTC()
	}
	return a.Records[len(a.Records)-1].Timestamp
}
