package schemas

import (
	"time"

	"reportserver/src/models"
)

type CreateScheduleRequest struct {
	Name       string              `json:"name"`
	ReportKey  string              `json:"reportKey"`
	OrgID      *string             `json:"orgId,omitempty"`
	Cadence    models.Cadence      `json:"cadence"`
	TimeOfDay  string              `json:"timeOfDay"`
	DayOfWeek  *int                `json:"dayOfWeek,omitempty"`
	DayOfMonth *int                `json:"dayOfMonth,omitempty"`
	Format     models.ReportFormat `json:"format"`
	Recipients []string            `json:"recipients"`
	Enabled    *bool               `json:"enabled,omitempty"`
	CreatedBy  string              `json:"-"`
}

// UpdateScheduleRequest carries partial updates; nil fields keep their
// current values.
type UpdateScheduleRequest struct {
	ID         uint                 `json:"-"`
	Name       *string              `json:"name,omitempty"`
	ReportKey  *string              `json:"reportKey,omitempty"`
	OrgID      *string              `json:"orgId,omitempty"`
	Cadence    *models.Cadence      `json:"cadence,omitempty"`
	TimeOfDay  *string              `json:"timeOfDay,omitempty"`
	DayOfWeek  *int                 `json:"dayOfWeek,omitempty"`
	DayOfMonth *int                 `json:"dayOfMonth,omitempty"`
	Format     *models.ReportFormat `json:"format,omitempty"`
	Recipients *[]string            `json:"recipients,omitempty"`
	Enabled    *bool                `json:"enabled,omitempty"`
	UpdatedBy  string               `json:"-"`
}

type ScheduleResponse struct {
	ID         uint                `json:"id"`
	Name       string              `json:"name"`
	ReportKey  string              `json:"reportKey"`
	OrgID      *string             `json:"orgId,omitempty"`
	Cadence    models.Cadence      `json:"cadence"`
	TimeOfDay  string              `json:"timeOfDay"`
	DayOfWeek  *int                `json:"dayOfWeek,omitempty"`
	DayOfMonth *int                `json:"dayOfMonth,omitempty"`
	Format     models.ReportFormat `json:"format"`
	Recipients []string            `json:"recipients"`
	Enabled    bool                `json:"enabled"`
	NextRunAt  *time.Time          `json:"nextRunAt,omitempty"`
	LastRunAt  *time.Time          `json:"lastRunAt,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	CreatedBy  string              `json:"createdBy,omitempty"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	UpdatedBy  string              `json:"updatedBy,omitempty"`

	// Latest run summary, joined in by the listing query so dashboards do
	// not need one query per schedule.
	LastRunStatus     *models.RunStatus `json:"lastRunStatus,omitempty"`
	LastRunFinishedAt *time.Time        `json:"lastRunFinishedAt,omitempty"`
}

func NewScheduleResponse(s *models.ScheduledReportSchedule) *ScheduleResponse {
	return &ScheduleResponse{
		ID:         s.ID,
		Name:       s.Name,
		ReportKey:  s.ReportKey,
		OrgID:      s.OrgID,
		Cadence:    s.Cadence,
		TimeOfDay:  s.TimeOfDay,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		Format:     s.Format,
		Recipients: s.Recipients,
		Enabled:    s.Enabled,
		NextRunAt:  s.NextRunAt,
		LastRunAt:  s.LastRunAt,
		CreatedAt:  s.CreatedAt,
		CreatedBy:  s.CreatedBy,
		UpdatedAt:  s.UpdatedAt,
		UpdatedBy:  s.UpdatedBy,
	}
}
