// Package course defines core types shared across subsystems.
package course

import "time"

// Document is a downloadable file attached to a course listing.
type Document struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Course is a single training-course listing scraped from the federation
// catalog. Reference is the natural key used for upsert matching; it is
// stable across syncs.
type Course struct {
	Reference      string      `json:"reference"`
	Title          string      `json:"title"`
	Dates          []time.Time `json:"dates"`
	Location       string      `json:"location"`
	Discipline     string      `json:"discipline"`
	Lodging        string      `json:"lodging"`
	Capacity       int         `json:"capacity"`
	SeatsRemaining *int        `json:"seats_remaining"` // nil means unknown, not unlimited
	Price          int         `json:"price"`           // 0 means free or unspecified
	Organizer      string      `json:"organizer"`
	Responsible    string      `json:"responsible"`
	ContactEmail   string      `json:"contact_email,omitempty"`
	Documents      []Document  `json:"documents"`
	Status         string      `json:"status"`
	FirstSeenAt    time.Time   `json:"first_seen_at"`
	LastSeenAt     time.Time   `json:"last_seen_at"`
}

// RecordError captures a per-reference persistence or parse failure.
type RecordError struct {
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// SyncResult summarizes one pipeline run. It exists only for the duration
// of the run and is discarded after reporting.
type SyncResult struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    []RecordError `json:"errors,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Subscriber is a user subscribed to a discipline, as returned by the
// preference store.
type Subscriber struct {
	UserID int64
	Email  string
}

// DigestSection groups one discipline's qualifying courses inside a digest.
type DigestSection struct {
	Discipline string
	Courses    []Course
}

// Digest is one user's consolidated notification covering every subscribed
// discipline that has new courses for the run.
type Digest struct {
	UserID   int64
	Email    string
	Sections []DigestSection
}

// CourseCount returns the total number of courses across all sections.
func (d Digest) CourseCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Courses)
	}
	return n
}

// Disciplines lists the disciplines present in the digest, in section order.
func (d Digest) Disciplines() []string {
	out := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		out = append(out, s.Discipline)
	}
	return out
}

// NotifyError records one user's failed digest dispatch.
type NotifyError struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// NotificationResult summarizes one dispatch pass.
type NotificationResult struct {
	Notified int           `json:"notified"`
	Errors   []NotifyError `json:"errors,omitempty"`
}
