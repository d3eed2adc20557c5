package models

import (
	"time"
)

type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

type ReportFormat string

const (
	FormatCSV  ReportFormat = "csv"
	FormatJSON ReportFormat = "json"
)

// ScheduledReportSchedule is a recurring report definition. NextRunAt is the
// scheduler's bookkeeping field: NULL iff the schedule is disabled, otherwise
// always strictly in the future relative to the instant it was computed from.
type ScheduledReportSchedule struct {
	ID         uint         `db:"id"`
	Name       string       `db:"name"`
	ReportKey  string       `db:"report_key"`
	OrgID      *string      `db:"org_id"`
	Cadence    Cadence      `db:"cadence"`
	TimeOfDay  string       `db:"time_of_day"`
	DayOfWeek  *int         `db:"day_of_week"`
	DayOfMonth *int         `db:"day_of_month"`
	Format     ReportFormat `db:"format"`
	Recipients []string     `db:"recipients"`
	Enabled    bool         `db:"enabled"`
	NextRunAt  *time.Time   `db:"next_run_at"`
	LastRunAt  *time.Time   `db:"last_run_at"`
	CreatedAt  time.Time    `db:"created_at"`
	CreatedBy  string       `db:"created_by"`
	UpdatedAt  time.Time    `db:"updated_at"`
	UpdatedBy  string       `db:"updated_by"`
}

func (ScheduledReportSchedule) TableName() string {
	return "scheduled_report_schedules"
}
