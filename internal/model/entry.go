package model

import "time"

type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusInProgress EntryStatus = "in_progress"
	StatusDone       EntryStatus = "done"
	StatusNoResults  EntryStatus = "no_results"
	StatusError      EntryStatus = "error"
)

// Entry is one tracked account: the site plus the username used on it.
// The status field is the durable record of discovery progress for the entry.
type Entry struct {
	ID            int64       `json:"id"`
	URL           string      `json:"url"`
	Username      string      `json:"username"`
	Status        EntryStatus `json:"status"`
	PrivacyURL    *string     `json:"privacy_url,omitempty"`
	ScrapedEmails []string    `json:"scraped_emails,omitempty"`
	ErrorMessage  *string     `json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// DiscoveryResult is what one discovery run produced for an origin.
type DiscoveryResult struct {
	PrivacyURL *string  `json:"privacy_url,omitempty"`
	Emails     []string `json:"emails"`
}

// IsEmpty reports whether the run found neither a privacy page nor any emails.
func (r *DiscoveryResult) IsEmpty() bool {
	return r == nil || (r.PrivacyURL == nil && len(r.Emails) == 0)
}

// ScrapeProgress holds per-status entry counts. It is always derived from the
// store, never persisted.
type ScrapeProgress struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	NoResults  int `json:"no_results"`
	Error      int `json:"error"`
	Total      int `json:"total"`
}

// DiscoveryEvent is published to kafka after an entry finishes a discovery run.
type DiscoveryEvent struct {
	BatchID    string      `json:"batch_id,omitempty"`
	EntryID    int64       `json:"entry_id"`
	URL        string      `json:"url"`
	Status     EntryStatus `json:"status"`
	PrivacyURL string      `json:"privacy_url,omitempty"`
	Emails     []string    `json:"emails,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}
