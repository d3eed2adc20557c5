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
	"reportserver/src/schemas"
)

type RunRepository interface {
	CreateRun(ctx context.Context, scheduleID uint, startedAt *time.Time) (uint, error)
	StartRun(ctx context.Context, runID uint, startedAt time.Time) error
	FinishRun(ctx context.Context, req *schemas.FinishRunRequest) error
	ListRuns(ctx context.Context, scheduleID uint, limit int) ([]*models.ScheduledReportRun, error)
	ReadRunForDownload(ctx context.Context, runID uint) (*models.ScheduledReportRun, error)
	ClearDownloadToken(ctx context.Context, runID uint) error
	UpdateScheduleAfterRun(ctx context.Context, scheduleID uint, lastRunAt time.Time, nextRunAt *time.Time) error
}

type runRepo struct {
	DB *pgxpool.Pool
}

func NewRunRepository(db *pgxpool.Pool) RunRepository {
	return &runRepo{DB: db}
}

func (r *runRepo) CreateRun(ctx context.Context, scheduleID uint, startedAt *time.Time) (uint, error) {
	var id uint
	err := r.DB.QueryRow(ctx, `
		INSERT INTO scheduled_report_runs (schedule_id, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		scheduleID, string(models.RunStatusQueued), startedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// StartRun moves a run from queued to running. The status guard keeps a
// terminal run from ever reappearing as running.
func (r *runRepo) StartRun(ctx context.Context, runID uint, startedAt time.Time) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE scheduled_report_runs
		SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4`,
		string(models.RunStatusRunning), startedAt, runID, string(models.RunStatusQueued))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FinishRun records a run's terminal state, artifact and download token
// hash. Callers must finish each run exactly once; the store does not guard
// against double finishes beyond rejecting non-terminal target states.
func (r *runRepo) FinishRun(ctx context.Context, req *schemas.FinishRunRequest) error {
	if !req.Status.IsTerminal() {
		return fmt.Errorf("finish status must be success or failure, got %q", req.Status)
	}

	var (
		filename    *string
		contentType *string
		encoding    *string
		bytes       []byte
		sizeBytes   *int64
	)
	if req.Artifact != nil {
		filename = &req.Artifact.Filename
		contentType = &req.Artifact.ContentType
		encoding = &req.Artifact.Encoding
		bytes = req.Artifact.Bytes
		size := int64(len(req.Artifact.Bytes))
		sizeBytes = &size
	}

	deliveredJSON, err := marshalRecipients(req.DeliveredTo)
	if err != nil {
		return err
	}

	tag, err := r.DB.Exec(ctx, `
		UPDATE scheduled_report_runs
		SET
			status = $1, finished_at = $2, error = $3,
			output_filename = $4, output_content_type = $5, output_encoding = $6,
			output_bytes = $7, output_size_bytes = $8,
			download_token_hash = $9, download_expires_at = $10,
			delivered_to = $11
		WHERE id = $12`,
		string(req.Status), req.FinishedAt, req.Error,
		filename, contentType, encoding,
		bytes, sizeBytes,
		req.DownloadTokenHash, req.DownloadExpiresAt,
		deliveredJSON, req.RunID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns a schedule's run history most-recent-first, without the
// artifact bytes.
func (r *runRepo) ListRuns(ctx context.Context, scheduleID uint, limit int) ([]*models.ScheduledReportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, `
		SELECT
			id, schedule_id, status, started_at, finished_at, error,
			output_filename, output_content_type, output_encoding, output_size_bytes,
			download_expires_at, delivered_to, created_at
		FROM scheduled_report_runs
		WHERE schedule_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.ScheduledReportRun
	for rows.Next() {
		var (
			run           models.ScheduledReportRun
			status        string
			deliveredJSON []byte
		)
		err := rows.Scan(
			&run.ID, &run.ScheduleID, &status, &run.StartedAt, &run.FinishedAt, &run.Error,
			&run.OutputFilename, &run.OutputContentType, &run.OutputEncoding, &run.OutputSizeBytes,
			&run.DownloadExpiresAt, &deliveredJSON, &run.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		run.Status = models.RunStatus(status)
		if err := json.Unmarshal(deliveredJSON, &run.DeliveredTo); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// ReadRunForDownload loads the artifact together with the token hash and
// expiry so the download endpoint can verify the presented token. The
// plaintext token is never stored, so this is all it can hand out.
func (r *runRepo) ReadRunForDownload(ctx context.Context, runID uint) (*models.ScheduledReportRun, error) {
	var (
		run           models.ScheduledReportRun
		status        string
		deliveredJSON []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT
			id, schedule_id, status, started_at, finished_at, error,
			output_filename, output_content_type, output_encoding,
			output_bytes, output_size_bytes,
			download_token_hash, download_expires_at, delivered_to, created_at
		FROM scheduled_report_runs
		WHERE id = $1`, runID).Scan(
		&run.ID, &run.ScheduleID, &status, &run.StartedAt, &run.FinishedAt, &run.Error,
		&run.OutputFilename, &run.OutputContentType, &run.OutputEncoding,
		&run.OutputBytes, &run.OutputSizeBytes,
		&run.DownloadTokenHash, &run.DownloadExpiresAt, &deliveredJSON, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if err := json.Unmarshal(deliveredJSON, &run.DeliveredTo); err != nil {
		return nil, err
	}
	return &run, nil
}

// ClearDownloadToken consumes a run's download credential. The hash guard
// makes the consume atomic: with concurrent requests presenting the same
// token, exactly one clear succeeds and the rest get ErrDownloadTokenUsed.
func (r *runRepo) ClearDownloadToken(ctx context.Context, runID uint) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE scheduled_report_runs
		SET download_token_hash = NULL, download_expires_at = NULL
		WHERE id = $1 AND download_token_hash IS NOT NULL`, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDownloadTokenUsed
	}
	return nil
}

// UpdateScheduleAfterRun reconciles the schedule's bookkeeping once a run
// completes. Distinct from the claim-time advance: the cadence fields may
// have been edited between claim and completion, so the caller recomputes
// next_run_at from the schedule's current definition. Disabled schedules
// keep next_run_at NULL.
func (r *runRepo) UpdateScheduleAfterRun(ctx context.Context, scheduleID uint, lastRunAt time.Time, nextRunAt *time.Time) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE scheduled_report_schedules
		SET
			last_run_at = $1,
			next_run_at = CASE WHEN enabled THEN $2::timestamptz ELSE NULL END,
			updated_at = NOW()
		WHERE id = $3`,
		lastRunAt, nextRunAt, scheduleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}
