package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reportserver/src/models"
	"reportserver/src/scheduler"
	"reportserver/src/schemas"
)

const scheduleColumns = `
	id, name, report_key, org_id, cadence, time_of_day, day_of_week, day_of_month,
	format, recipients, enabled, next_run_at, last_run_at,
	created_at, created_by, updated_at, updated_by`

type ScheduleRepository interface {
	GetAllSchedules(ctx context.Context) ([]*schemas.ScheduleResponse, error)
	GetScheduleByID(ctx context.Context, id uint) (*models.ScheduledReportSchedule, error)
	CreateSchedule(ctx context.Context, req *schemas.CreateScheduleRequest) (*models.ScheduledReportSchedule, error)
	UpdateSchedule(ctx context.Context, req *schemas.UpdateScheduleRequest) (*models.ScheduledReportSchedule, error)
	DeleteSchedule(ctx context.Context, id uint) error
	RunNow(ctx context.Context, id uint) error
}

type scheduleRepo struct {
	DB *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepo{DB: db}
}

// GetAllSchedules lists every schedule joined to its most recent run's
// status and finish time in a single query, so dashboards avoid one
// run-history query per schedule.
func (r *scheduleRepo) GetAllSchedules(ctx context.Context) ([]*schemas.ScheduleResponse, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT
			s.id, s.name, s.report_key, s.org_id, s.cadence, s.time_of_day,
			s.day_of_week, s.day_of_month, s.format, s.recipients, s.enabled,
			s.next_run_at, s.last_run_at,
			s.created_at, s.created_by, s.updated_at, s.updated_by,
			lr.status, lr.finished_at
		FROM scheduled_report_schedules s
		LEFT JOIN LATERAL (
			SELECT status, finished_at
			FROM scheduled_report_runs
			WHERE schedule_id = s.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lr ON TRUE
		ORDER BY s.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*schemas.ScheduleResponse
	for rows.Next() {
		var (
			s              models.ScheduledReportSchedule
			cadence        string
			format         string
			recipientsJSON []byte
			lastStatus     *string
			lastFinishedAt *time.Time
		)
		err := rows.Scan(
			&s.ID, &s.Name, &s.ReportKey, &s.OrgID, &cadence, &s.TimeOfDay,
			&s.DayOfWeek, &s.DayOfMonth, &format, &recipientsJSON, &s.Enabled,
			&s.NextRunAt, &s.LastRunAt,
			&s.CreatedAt, &s.CreatedBy, &s.UpdatedAt, &s.UpdatedBy,
			&lastStatus, &lastFinishedAt,
		)
		if err != nil {
			return nil, err
		}
		s.Cadence = models.Cadence(cadence)
		s.Format = models.ReportFormat(format)
		if err := json.Unmarshal(recipientsJSON, &s.Recipients); err != nil {
			return nil, err
		}

		resp := schemas.NewScheduleResponse(&s)
		if lastStatus != nil {
			status := models.RunStatus(*lastStatus)
			resp.LastRunStatus = &status
			resp.LastRunFinishedAt = lastFinishedAt
		}
		responses = append(responses, resp)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return responses, nil
}

func (r *scheduleRepo) GetScheduleByID(ctx context.Context, id uint) (*models.ScheduledReportSchedule, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_report_schedules WHERE id = $1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *scheduleRepo) CreateSchedule(ctx context.Context, req *schemas.CreateScheduleRequest) (*models.ScheduledReportSchedule, error) {
	if err := validateScheduleFields(req.Name, req.Cadence, req.Format, req.DayOfWeek, req.DayOfMonth, req.ReportKey); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	timeOfDay := req.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "08:00"
	}

	var nextRunAt *time.Time
	if enabled {
		next := scheduler.NextRunAt(req.Cadence, timeOfDay, req.DayOfWeek, req.DayOfMonth, time.Now().UTC())
		nextRunAt = &next
	}

	recipientsJSON, err := marshalRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}

	row := r.DB.QueryRow(ctx, `
		INSERT INTO scheduled_report_schedules
			(name, report_key, org_id, cadence, time_of_day, day_of_week, day_of_month,
			 format, recipients, enabled, next_run_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING `+scheduleColumns,
		req.Name, req.ReportKey, req.OrgID, string(req.Cadence), timeOfDay,
		req.DayOfWeek, req.DayOfMonth, string(req.Format), recipientsJSON,
		enabled, nextRunAt, req.CreatedBy,
	)
	return scanSchedule(row)
}

// UpdateSchedule applies a partial edit inside one transaction, holding the
// row lock for the read-modify-write. Without the lock, an edit racing a
// claim could write the pre-claim next_run_at back and make the same
// occurrence due twice.
func (r *scheduleRepo) UpdateSchedule(ctx context.Context, req *schemas.UpdateScheduleRequest) (*models.ScheduledReportSchedule, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanSchedule(tx.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_report_schedules WHERE id = $1 FOR UPDATE`, req.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	// Apply partial updates; track whether any cadence-affecting field or
	// the enabled flag changed so next_run_at is recomputed only then.
	cadenceChanged := false
	enabledChanged := false

	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.ReportKey != nil {
		current.ReportKey = *req.ReportKey
	}
	if req.OrgID != nil {
		current.OrgID = req.OrgID
	}
	if req.Cadence != nil && *req.Cadence != current.Cadence {
		current.Cadence = *req.Cadence
		cadenceChanged = true
	}
	if req.TimeOfDay != nil && *req.TimeOfDay != current.TimeOfDay {
		current.TimeOfDay = *req.TimeOfDay
		cadenceChanged = true
	}
	if req.DayOfWeek != nil {
		current.DayOfWeek = req.DayOfWeek
		cadenceChanged = true
	}
	if req.DayOfMonth != nil {
		current.DayOfMonth = req.DayOfMonth
		cadenceChanged = true
	}
	if req.Format != nil {
		current.Format = *req.Format
	}
	if req.Recipients != nil {
		current.Recipients = *req.Recipients
	}
	if req.Enabled != nil && *req.Enabled != current.Enabled {
		current.Enabled = *req.Enabled
		enabledChanged = true
	}

	if err := validateScheduleFields(current.Name, current.Cadence, current.Format, current.DayOfWeek, current.DayOfMonth, current.ReportKey); err != nil {
		return nil, err
	}

	if !current.Enabled {
		current.NextRunAt = nil
	} else if cadenceChanged || enabledChanged || current.NextRunAt == nil {
		next := scheduler.NextRunAt(current.Cadence, current.TimeOfDay, current.DayOfWeek, current.DayOfMonth, time.Now().UTC())
		current.NextRunAt = &next
	}

	recipientsJSON, err := marshalRecipients(current.Recipients)
	if err != nil {
		return nil, err
	}

	updated, err := scanSchedule(tx.QueryRow(ctx, `
		UPDATE scheduled_report_schedules
		SET
			name = $1, report_key = $2, org_id = $3, cadence = $4, time_of_day = $5,
			day_of_week = $6, day_of_month = $7, format = $8, recipients = $9,
			enabled = $10, next_run_at = $11, updated_at = NOW(), updated_by = $12
		WHERE id = $13
		RETURNING `+scheduleColumns,
		current.Name, current.ReportKey, current.OrgID, string(current.Cadence),
		current.TimeOfDay, current.DayOfWeek, current.DayOfMonth,
		string(current.Format), recipientsJSON, current.Enabled,
		current.NextRunAt, req.UpdatedBy, req.ID,
	))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *scheduleRepo) DeleteSchedule(ctx context.Context, id uint) error {
	var exists bool
	err := r.DB.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM scheduled_report_schedules WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrScheduleNotFound
	}

	// Runs cascade via the schedule_id foreign key.
	_, err = r.DB.Exec(ctx, "DELETE FROM scheduled_report_schedules WHERE id = $1", id)
	return err
}

// RunNow marks a schedule due immediately so the next claim batch picks it
// up. This is the recovery path for failed or crashed occurrences, which the
// scheduler never retries on its own.
func (r *scheduleRepo) RunNow(ctx context.Context, id uint) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE scheduled_report_schedules
		SET next_run_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND enabled = TRUE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func validateScheduleFields(name string, cadence models.Cadence, format models.ReportFormat, dayOfWeek, dayOfMonth *int, reportKey string) error {
	if name == "" {
		return fmt.Errorf("schedule name must not be empty")
	}
	if reportKey == "" {
		return fmt.Errorf("report key must not be empty")
	}
	switch cadence {
	case models.CadenceDaily, models.CadenceWeekly, models.CadenceMonthly:
	default:
		return fmt.Errorf("invalid cadence %q", cadence)
	}
	switch format {
	case models.FormatCSV, models.FormatJSON:
	default:
		return fmt.Errorf("invalid format %q", format)
	}
	if dayOfWeek != nil && (*dayOfWeek < 0 || *dayOfWeek > 6) {
		return fmt.Errorf("day of week must be between 0 and 6")
	}
	if dayOfMonth != nil && (*dayOfMonth < 1 || *dayOfMonth > 31) {
		return fmt.Errorf("day of month must be between 1 and 31")
	}
	return nil
}

func marshalRecipients(recipients []string) ([]byte, error) {
	if recipients == nil {
		recipients = []string{}
	}
	return json.Marshal(recipients)
}

func scanSchedule(row pgx.Row) (*models.ScheduledReportSchedule, error) {
	var (
		s              models.ScheduledReportSchedule
		cadence        string
		format         string
		recipientsJSON []byte
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.ReportKey, &s.OrgID, &cadence, &s.TimeOfDay,
		&s.DayOfWeek, &s.DayOfMonth, &format, &recipientsJSON, &s.Enabled,
		&s.NextRunAt, &s.LastRunAt,
		&s.CreatedAt, &s.CreatedBy, &s.UpdatedAt, &s.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	s.Cadence = models.Cadence(cadence)
	s.Format = models.ReportFormat(format)
	if err := json.Unmarshal(recipientsJSON, &s.Recipients); err != nil {
		return nil, err
	}
	return &s, nil
}
