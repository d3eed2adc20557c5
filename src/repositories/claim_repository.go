package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"reportserver/src/models"
	"reportserver/src/scheduler"
)

type ClaimRepository interface {
	ClaimDue(ctx context.Context, limit int) ([]*models.ScheduledReportSchedule, error)
}

type claimRepo struct {
	DB *pgxpool.Pool
}

func NewClaimRepository(db *pgxpool.Pool) ClaimRepository {
	return &claimRepo{DB: db}
}

// ClaimDue atomically claims up to limit due schedules. Row locks with SKIP
// LOCKED keep concurrent workers from ever claiming the same occurrence:
// rows held by another transaction simply drop out of this batch. Each
// claimed schedule's next_run_at is advanced inside the same transaction,
// before the report is generated, so an occurrence is claimed at most once.
// A worker crash between claim and finish loses that occurrence; operators
// recover with RunNow.
func (r *claimRepo) ClaimDue(ctx context.Context, limit int) ([]*models.ScheduledReportSchedule, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_report_schedules
		WHERE enabled = TRUE
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= NOW()
		ORDER BY next_run_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	var claimed []*models.ScheduledReportSchedule
	for rows.Next() {
		var (
			s              models.ScheduledReportSchedule
			cadence        string
			format         string
			recipientsJSON []byte
		)
		err := rows.Scan(
			&s.ID, &s.Name, &s.ReportKey, &s.OrgID, &cadence, &s.TimeOfDay,
			&s.DayOfWeek, &s.DayOfMonth, &format, &recipientsJSON, &s.Enabled,
			&s.NextRunAt, &s.LastRunAt,
			&s.CreatedAt, &s.CreatedBy, &s.UpdatedAt, &s.UpdatedBy,
		)
		if err != nil {
			rows.Close()
			return nil, err
		}
		s.Cadence = models.Cadence(cadence)
		s.Format = models.ReportFormat(format)
		if err := json.Unmarshal(recipientsJSON, &s.Recipients); err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, &s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Advance each claimed schedule from the current instant, not from the
	// old next_run_at, so a long-overdue schedule does not immediately fire
	// again. The returned snapshots keep their pre-advance values.
	now := time.Now().UTC()
	for _, s := range claimed {
		next := scheduler.NextRunAt(s.Cadence, s.TimeOfDay, s.DayOfWeek, s.DayOfMonth, now)
		_, err := tx.Exec(ctx, `
			UPDATE scheduled_report_schedules
			SET next_run_at = $1, last_run_at = $2, updated_at = NOW()
			WHERE id = $3`, next, now, s.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}
