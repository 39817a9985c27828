package domain

import (
	"time"
)

// SyncStatus is the delivery state of a queued report.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusFailed  SyncStatus = "failed"
	StatusSynced  SyncStatus = "synced"
)

// Normalize maps a missing status to pending. Entries written before the status
// field existed have none.
func (s SyncStatus) Normalize() SyncStatus {
	if s == "" {
		return StatusPending
	}
	return s
}

// Retryable reports whether an entry in this status is eligible for a commit attempt.
func (s SyncStatus) Retryable() bool {
	switch s.Normalize() {
	case StatusPending, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s:
//
//	pending|failed -> syncing
//	syncing        -> synced|failed
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	switch s.Normalize() {
	case StatusPending, StatusFailed:
		return next == StatusSyncing
	case StatusSyncing:
		return next == StatusSynced || next == StatusFailed
	default:
		return false
	}
}

// ReportStatus is the moderation state of a canonical report.
type ReportStatus string

const (
	ReportPending  ReportStatus = "Pending"
	ReportVerified ReportStatus = "Verified"
	ReportRejected ReportStatus = "Rejected"
)

// Submission is the report shape handed over by the reporting form.
type Submission struct {
	Barangay     string      `json:"barangay" validate:"required,max=120"`
	Description  string      `json:"description" validate:"required,max=4000"`
	IncidentType string      `json:"incident_type" validate:"required,max=80"`
	Category     string      `json:"category,omitempty" validate:"max=80"`
	Sensitive    bool        `json:"sensitive"`
	Location     Coordinates `json:"location"`
	SubmittedBy  string      `json:"submitted_by" validate:"required"`
	CreatedAt    time.Time   `json:"created_at"`
	MediaRefs    []string    `json:"media_refs,omitempty" validate:"max=10,dive,required,url"`
}

// OfflineReport is a submission held in the local queue until it is committed.
type OfflineReport struct {
	LocalID string `json:"local_id"`
	Submission

	SyncStatus    SyncStatus `json:"sync_status,omitempty"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt time.Time  `json:"last_attempt_at,omitzero"`
	LastError     string     `json:"last_error,omitempty"`
}

// SyncRecord proves that a local report was committed remotely.
type SyncRecord struct {
	LocalID  string    `json:"local_id"`
	RemoteID string    `json:"remote_id"`
	SyncedAt time.Time `json:"synced_at"`
	Attempts int       `json:"attempts"`
}

// Report is the canonical report as held by the remote store.
type Report struct {
	ID           string       `json:"id"`
	LocalID      string       `json:"local_id,omitempty"`
	Barangay     string       `json:"barangay"`
	Description  string       `json:"description"`
	IncidentType string       `json:"incident_type"`
	Category     string       `json:"category,omitempty"`
	Sensitive    bool         `json:"sensitive"`
	Location     Coordinates  `json:"location"`
	SubmittedBy  string       `json:"submitted_by"`
	Status       ReportStatus `json:"status"`
	Timestamp    time.Time    `json:"timestamp"`
	MediaRefs    []string     `json:"media_refs,omitempty"`
}
