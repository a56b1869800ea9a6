package pipeline

import (
	"time"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// Status is the terminal state of one category in a run.
type Status string

const (
	StatusAlreadySeeded       Status = "already_seeded"
	StatusSourceUnavailable   Status = "source_unavailable"
	StatusGeocoderUnavailable Status = "geocoder_unavailable"
	StatusIngested            Status = "ingested"
	StatusCancelled           Status = "cancelled"
	StatusStorageFailed       Status = "storage_failed"
)

// CategoryReport summarizes one category. Rows counts data rows read;
// every row ends up in exactly one of Inserted, Skipped, or Failed unless
// the insert itself failed.
type CategoryReport struct {
	Category domain.Category `json:"category"`
	Status   Status          `json:"status"`
	Rows     int             `json:"rows"`
	Inserted int             `json:"inserted"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Duration time.Duration   `json:"duration"`
}

// Report summarizes a run in dispatch-table order.
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration"`
	Categories []CategoryReport `json:"categories"`
}

// Inserted returns the number of records written across all categories.
func (r Report) Inserted() int {
	var n int
	for _, c := range r.Categories {
		n += c.Inserted
	}
	return n
}

// Category returns the report for c, if it was reached.
func (r Report) Category(c domain.Category) (CategoryReport, bool) {
	for _, cr := range r.Categories {
		if cr.Category == c {
			return cr, true
		}
	}
	return CategoryReport{}, false
}
