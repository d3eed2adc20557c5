package schemas

import (
	"time"

	"reportserver/src/models"
)

// ReportArtifact is the rendered output of one report generation.
type ReportArtifact struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Encoding    string `json:"encoding"`
	Bytes       []byte `json:"-"`
}

// FinishRunRequest transitions a run into a terminal state. Artifact and
// token fields are optional: failures may carry partial output or none.
type FinishRunRequest struct {
	RunID             uint
	Status            models.RunStatus
	FinishedAt        time.Time
	Error             *string
	Artifact          *ReportArtifact
	DownloadTokenHash *string
	DownloadExpiresAt *time.Time
	DeliveredTo       []string
}

// RunResponse summarizes a run without its artifact bytes; AgeSeconds lets
// operators spot runs stuck in queued/running.
type RunResponse struct {
	ID                uint             `json:"id"`
	ScheduleID        uint             `json:"scheduleId"`
	Status            models.RunStatus `json:"status"`
	StartedAt         *time.Time       `json:"startedAt,omitempty"`
	FinishedAt        *time.Time       `json:"finishedAt,omitempty"`
	Error             *string          `json:"error,omitempty"`
	OutputFilename    *string          `json:"outputFilename,omitempty"`
	OutputContentType *string          `json:"outputContentType,omitempty"`
	OutputSizeBytes   *int64           `json:"outputSizeBytes,omitempty"`
	DownloadExpiresAt *time.Time       `json:"downloadExpiresAt,omitempty"`
	DeliveredTo       []string         `json:"deliveredTo"`
	CreatedAt         time.Time        `json:"createdAt"`
	AgeSeconds        int64            `json:"ageSeconds"`
}

func NewRunResponse(r *models.ScheduledReportRun, now time.Time) *RunResponse {
	return &RunResponse{
		ID:                r.ID,
		ScheduleID:        r.ScheduleID,
		Status:            r.Status,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		Error:             r.Error,
		OutputFilename:    r.OutputFilename,
		OutputContentType: r.OutputContentType,
		OutputSizeBytes:   r.OutputSizeBytes,
		DownloadExpiresAt: r.DownloadExpiresAt,
		DeliveredTo:       r.DeliveredTo,
		CreatedAt:         r.CreatedAt,
		AgeSeconds:        int64(now.Sub(r.CreatedAt).Seconds()),
	}
}
