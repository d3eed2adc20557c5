package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportserver/src/models"
	"reportserver/src/repositories"
	"reportserver/src/schemas"
	"reportserver/tests/init_test"
)

func setupScheduleTest(t *testing.T) (*pgxpool.Pool, repositories.ScheduleRepository) {
	db := init_test.SetupTestDB(t)
	repo := repositories.NewScheduleRepository(db)

	t.Cleanup(func() {
		init_test.TruncateTables(t, db)
	})

	return db, repo
}

func boolPtr(v bool) *bool {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func newDailySchedule(name string) *schemas.CreateScheduleRequest {
	return &schemas.CreateScheduleRequest{
		Name:       name,
		ReportKey:  "schedule_activity",
		Cadence:    models.CadenceDaily,
		TimeOfDay:  "09:00",
		Format:     models.FormatCSV,
		Recipients: []string{"ops@example.com"},
		CreatedBy:  "test-user",
	}
}

func TestCreateSchedule(t *testing.T) {
	_, repo := setupScheduleTest(t)
	ctx := context.Background()

	t.Run("computes next_run_at on creation", func(t *testing.T) {
		before := time.Now().UTC()
		schedule, err := repo.CreateSchedule(ctx, newDailySchedule("daily-report"))
		require.NoError(t, err)

		assert.NotZero(t, schedule.ID)
		assert.Equal(t, "daily-report", schedule.Name)
		assert.True(t, schedule.Enabled)
		require.NotNil(t, schedule.NextRunAt)
		assert.True(t, schedule.NextRunAt.After(before))
		assert.Nil(t, schedule.LastRunAt)
		assert.Equal(t, []string{"ops@example.com"}, schedule.Recipients)
	})

	t.Run("disabled schedule has no next_run_at", func(t *testing.T) {
		req := newDailySchedule("disabled-report")
		req.Enabled = boolPtr(false)
		schedule, err := repo.CreateSchedule(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, schedule.NextRunAt)
	})

	t.Run("rejects invalid fields before writing", func(t *testing.T) {
		cases := []struct {
			name string
			req  *schemas.CreateScheduleRequest
		}{
			{"empty name", &schemas.CreateScheduleRequest{ReportKey: "k", Cadence: models.CadenceDaily, Format: models.FormatCSV}},
			{"empty report key", &schemas.CreateScheduleRequest{Name: "n", Cadence: models.CadenceDaily, Format: models.FormatCSV}},
			{"bad cadence", &schemas.CreateScheduleRequest{Name: "n", ReportKey: "k", Cadence: "hourly", Format: models.FormatCSV}},
			{"bad format", &schemas.CreateScheduleRequest{Name: "n", ReportKey: "k", Cadence: models.CadenceDaily, Format: "xml"}},
			{"day of week out of range", &schemas.CreateScheduleRequest{Name: "n", ReportKey: "k", Cadence: models.CadenceWeekly, Format: models.FormatCSV, DayOfWeek: intPtr(7)}},
			{"day of month out of range", &schemas.CreateScheduleRequest{Name: "n", ReportKey: "k", Cadence: models.CadenceMonthly, Format: models.FormatCSV, DayOfMonth: intPtr(0)}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := repo.CreateSchedule(ctx, tc.req)
				assert.Error(t, err)
			})
		}
	})
}

func TestUpdateSchedule(t *testing.T) {
	_, repo := setupScheduleTest(t)
	ctx := context.Background()

	t.Run("disabling clears next_run_at and re-enabling recomputes", func(t *testing.T) {
		schedule, err := repo.CreateSchedule(ctx, newDailySchedule("toggle-report"))
		require.NoError(t, err)
		require.NotNil(t, schedule.NextRunAt)

		updated, err := repo.UpdateSchedule(ctx, &schemas.UpdateScheduleRequest{
			ID:        schedule.ID,
			Enabled:   boolPtr(false),
			UpdatedBy: "test-user",
		})
		require.NoError(t, err)
		assert.Nil(t, updated.NextRunAt)
		assert.False(t, updated.Enabled)

		before := time.Now().UTC()
		updated, err = repo.UpdateSchedule(ctx, &schemas.UpdateScheduleRequest{
			ID:        schedule.ID,
			Enabled:   boolPtr(true),
			UpdatedBy: "test-user",
		})
		require.NoError(t, err)
		require.NotNil(t, updated.NextRunAt)
		assert.True(t, updated.NextRunAt.After(before))
	})

	t.Run("cadence change recomputes next_run_at", func(t *testing.T) {
		schedule, err := repo.CreateSchedule(ctx, newDailySchedule("cadence-change"))
		require.NoError(t, err)
		original := *schedule.NextRunAt

		cadence := models.CadenceMonthly
		updated, err := repo.UpdateSchedule(ctx, &schemas.UpdateScheduleRequest{
			ID:         schedule.ID,
			Cadence:    &cadence,
			DayOfMonth: intPtr(15),
			UpdatedBy:  "test-user",
		})
		require.NoError(t, err)
		require.NotNil(t, updated.NextRunAt)
		assert.NotEqual(t, original, *updated.NextRunAt)
		assert.Equal(t, models.CadenceMonthly, updated.Cadence)
	})

	t.Run("non-cadence edit keeps next_run_at", func(t *testing.T) {
		schedule, err := repo.CreateSchedule(ctx, newDailySchedule("rename-only"))
		require.NoError(t, err)
		original := *schedule.NextRunAt

		updated, err := repo.UpdateSchedule(ctx, &schemas.UpdateScheduleRequest{
			ID:        schedule.ID,
			Name:      strPtr("renamed"),
			UpdatedBy: "test-user",
		})
		require.NoError(t, err)
		require.NotNil(t, updated.NextRunAt)
		assert.True(t, original.Equal(*updated.NextRunAt))
		assert.Equal(t, "renamed", updated.Name)
	})

	t.Run("unknown id returns not found", func(t *testing.T) {
		_, err := repo.UpdateSchedule(ctx, &schemas.UpdateScheduleRequest{ID: 999999})
		assert.ErrorIs(t, err, repositories.ErrScheduleNotFound)
	})
}

// An edit racing a claim must not write the pre-claim next_run_at back, or
// the same occurrence becomes due a second time.
func TestUpdateScheduleSeesConcurrentClaimAdvance(t *testing.T) {
	db, repo := setupScheduleTest(t)
	ctx := context.Background()

	schedule, err := repo.CreateSchedule(ctx, newDailySchedule("edit-during-claim"))
	require.NoError(t, err)

	advanced := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Millisecond)

	// Advance the row inside an open transaction, holding its lock the way a
	// claim does while the report executes.
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `
		UPDATE scheduled_report_schedules
		SET next_run_at = $1, last_run_at = NOW()
		WHERE id = $2`, advanced, schedule.ID)
	require.NoError(t, err)

	errC := make(chan error, 1)
	resultC := make(chan *models.ScheduledReportSchedule, 1)
	go func() {
		updated, err := repo.UpdateSchedule(context.Background(), &schemas.UpdateScheduleRequest{
			ID:        schedule.ID,
			Name:      strPtr("renamed-mid-claim"),
			UpdatedBy: "test-user",
		})
		errC <- err
		resultC <- updated
	}()

	// Let the edit reach the row lock before the claim commits.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, <-errC)
	updated := <-resultC
	assert.Equal(t, "renamed-mid-claim", updated.Name)
	require.NotNil(t, updated.NextRunAt)
	assert.True(t, updated.NextRunAt.Equal(advanced),
		"edit reverted the claim's advance: got %s, want %s", updated.NextRunAt, advanced)
}

func TestDeleteSchedule(t *testing.T) {
	db, repo := setupScheduleTest(t)
	ctx := context.Background()

	t.Run("cascades to runs", func(t *testing.T) {
		schedule, err := repo.CreateSchedule(ctx, newDailySchedule("delete-me"))
		require.NoError(t, err)

		runs := repositories.NewRunRepository(db)
		_, err = runs.CreateRun(ctx, schedule.ID, nil)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteSchedule(ctx, schedule.ID))

		var count int
		err = db.QueryRow(ctx,
			"SELECT COUNT(*) FROM scheduled_report_runs WHERE schedule_id = $1", schedule.ID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("unknown id returns not found", func(t *testing.T) {
		err := repo.DeleteSchedule(ctx, 999999)
		assert.ErrorIs(t, err, repositories.ErrScheduleNotFound)
	})
}

func TestGetAllSchedulesJoinsLatestRun(t *testing.T) {
	db, repo := setupScheduleTest(t)
	ctx := context.Background()

	schedule, err := repo.CreateSchedule(ctx, newDailySchedule("dashboard-report"))
	require.NoError(t, err)

	runs := repositories.NewRunRepository(db)
	firstRun, err := runs.CreateRun(ctx, schedule.ID, nil)
	require.NoError(t, err)
	finishRun(t, runs, firstRun, models.RunStatusFailure)

	secondRun, err := runs.CreateRun(ctx, schedule.ID, nil)
	require.NoError(t, err)
	finishRun(t, runs, secondRun, models.RunStatusSuccess)

	responses, err := repo.GetAllSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	// The join reflects the most recent run only.
	require.NotNil(t, responses[0].LastRunStatus)
	assert.Equal(t, models.RunStatusSuccess, *responses[0].LastRunStatus)
	assert.NotNil(t, responses[0].LastRunFinishedAt)
}

func TestRunNow(t *testing.T) {
	_, repo := setupScheduleTest(t)
	ctx := context.Background()

	t.Run("marks an enabled schedule due immediately", func(t *testing.T) {
		schedule, err := repo.CreateSchedule(ctx, newDailySchedule("run-now"))
		require.NoError(t, err)

		require.NoError(t, repo.RunNow(ctx, schedule.ID))

		fresh, err := repo.GetScheduleByID(ctx, schedule.ID)
		require.NoError(t, err)
		require.NotNil(t, fresh.NextRunAt)
		assert.True(t, fresh.NextRunAt.Before(time.Now().Add(time.Second)))
	})

	t.Run("refuses disabled schedules", func(t *testing.T) {
		req := newDailySchedule("run-now-disabled")
		req.Enabled = boolPtr(false)
		schedule, err := repo.CreateSchedule(ctx, req)
		require.NoError(t, err)

		err = repo.RunNow(ctx, schedule.ID)
		assert.ErrorIs(t, err, repositories.ErrScheduleNotFound)
	})
}
