package models

import (
	"time"
)

type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// IsTerminal reports whether the status is a final one. Runs never leave
// success or failure once recorded.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailure
}

// ScheduledReportRun is one execution attempt of a schedule's occurrence.
// Output bytes are stored inline with the row; the download token is kept
// only as a one-way hash, never in plaintext.
type ScheduledReportRun struct {
	ID                uint       `db:"id"`
	ScheduleID        uint       `db:"schedule_id"`
	Status            RunStatus  `db:"status"`
	StartedAt         *time.Time `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
	Error             *string    `db:"error"`
	OutputFilename    *string    `db:"output_filename"`
	OutputContentType *string    `db:"output_content_type"`
	OutputEncoding    *string    `db:"output_encoding"`
	OutputBytes       []byte     `db:"output_bytes"`
	OutputSizeBytes   *int64     `db:"output_size_bytes"`
	DownloadTokenHash *string    `db:"download_token_hash"`
	DownloadExpiresAt *time.Time `db:"download_expires_at"`
	DeliveredTo       []string   `db:"delivered_to"`
	CreatedAt         time.Time  `db:"created_at"`
}

func (ScheduledReportRun) TableName() string {
	return "scheduled_report_runs"
}
