package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportserver/src/models"
	"reportserver/src/repositories"
	"reportserver/src/schemas"
	"reportserver/src/utils"
	"reportserver/tests/init_test"
)

func setupRunTest(t *testing.T) (repositories.ScheduleRepository, repositories.RunRepository, uint) {
	db := init_test.SetupTestDB(t)
	schedules := repositories.NewScheduleRepository(db)
	runs := repositories.NewRunRepository(db)

	t.Cleanup(func() {
		init_test.TruncateTables(t, db)
	})

	schedule, err := schedules.CreateSchedule(context.Background(), newDailySchedule("run-test"))
	require.NoError(t, err)

	return schedules, runs, schedule.ID
}

func finishRun(t *testing.T, runs repositories.RunRepository, runID uint, status models.RunStatus) {
	t.Helper()
	req := &schemas.FinishRunRequest{
		RunID:      runID,
		Status:     status,
		FinishedAt: time.Now().UTC(),
	}
	if status == models.RunStatusFailure {
		msg := "boom"
		req.Error = &msg
	}
	require.NoError(t, runs.FinishRun(context.Background(), req))
}

func TestRunLifecycle(t *testing.T) {
	_, runs, scheduleID := setupRunTest(t)
	ctx := context.Background()

	runID, err := runs.CreateRun(ctx, scheduleID, nil)
	require.NoError(t, err)
	require.NotZero(t, runID)

	startedAt := time.Now().UTC()
	require.NoError(t, runs.StartRun(ctx, runID, startedAt))

	_, tokenHash := utils.NewDownloadToken()
	expiresAt := time.Now().UTC().Add(time.Hour)
	err = runs.FinishRun(ctx, &schemas.FinishRunRequest{
		RunID:      runID,
		Status:     models.RunStatusSuccess,
		FinishedAt: time.Now().UTC(),
		Artifact: &schemas.ReportArtifact{
			Filename:    "report.csv",
			ContentType: "text/csv",
			Encoding:    "utf-8",
			Bytes:       []byte("a,b\n1,2\n"),
		},
		DownloadTokenHash: &tokenHash,
		DownloadExpiresAt: &expiresAt,
		DeliveredTo:       []string{"ops@example.com"},
	})
	require.NoError(t, err)

	history, err := runs.ListRuns(ctx, scheduleID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	run := history[0]
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)
	assert.Nil(t, run.Error)
	require.NotNil(t, run.OutputFilename)
	assert.Equal(t, "report.csv", *run.OutputFilename)
	require.NotNil(t, run.OutputSizeBytes)
	assert.Equal(t, int64(8), *run.OutputSizeBytes)
	assert.Equal(t, []string{"ops@example.com"}, run.DeliveredTo)
}

func TestFinishRunRejectsNonTerminalStatus(t *testing.T) {
	_, runs, scheduleID := setupRunTest(t)
	ctx := context.Background()

	runID, err := runs.CreateRun(ctx, scheduleID, nil)
	require.NoError(t, err)

	err = runs.FinishRun(ctx, &schemas.FinishRunRequest{
		RunID:      runID,
		Status:     models.RunStatusRunning,
		FinishedAt: time.Now().UTC(),
	})
	assert.Error(t, err)
}

// Once a run is terminal it must never surface as queued or running again.
func TestRunTerminality(t *testing.T) {
	_, runs, scheduleID := setupRunTest(t)
	ctx := context.Background()

	runID, err := runs.CreateRun(ctx, scheduleID, nil)
	require.NoError(t, err)
	require.NoError(t, runs.StartRun(ctx, runID, time.Now().UTC()))
	finishRun(t, runs, runID, models.RunStatusFailure)

	// A stray StartRun after the terminal transition must not re-open it.
	err = runs.StartRun(ctx, runID, time.Now().UTC())
	assert.ErrorIs(t, err, repositories.ErrRunNotFound)

	history, err := runs.ListRuns(ctx, scheduleID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RunStatusFailure, history[0].Status)
	require.NotNil(t, history[0].Error)
	assert.Equal(t, "boom", *history[0].Error)
}

func TestListRunsMostRecentFirst(t *testing.T) {
	_, runs, scheduleID := setupRunTest(t)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 5; i++ {
		id, err := runs.CreateRun(ctx, scheduleID, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	history, err := runs.ListRuns(ctx, scheduleID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[4], history[0].ID)
	assert.Equal(t, ids[3], history[1].ID)
	assert.Equal(t, ids[2], history[2].ID)
}

func TestReadRunForDownload(t *testing.T) {
	_, runs, scheduleID := setupRunTest(t)
	ctx := context.Background()

	runID, err := runs.CreateRun(ctx, scheduleID, nil)
	require.NoError(t, err)

	plaintext, tokenHash := utils.NewDownloadToken()
	expiresAt := time.Now().UTC().Add(time.Hour)
	err = runs.FinishRun(ctx, &schemas.FinishRunRequest{
		RunID:      runID,
		Status:     models.RunStatusSuccess,
		FinishedAt: time.Now().UTC(),
		Artifact: &schemas.ReportArtifact{
			Filename:    "report.json",
			ContentType: "application/json",
			Encoding:    "utf-8",
			Bytes:       []byte(`[]`),
		},
		DownloadTokenHash: &tokenHash,
		DownloadExpiresAt: &expiresAt,
	})
	require.NoError(t, err)

	run, err := runs.ReadRunForDownload(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), run.OutputBytes)
	require.NotNil(t, run.DownloadTokenHash)

	// The stored hash validates the plaintext token and nothing else.
	assert.True(t, utils.VerifyDownloadToken(plaintext, *run.DownloadTokenHash))
	assert.False(t, utils.VerifyDownloadToken("wrong", *run.DownloadTokenHash))

	// Clearing makes the token single-use; only the first consume succeeds.
	require.NoError(t, runs.ClearDownloadToken(ctx, runID))
	run, err = runs.ReadRunForDownload(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, run.DownloadTokenHash)
	assert.Nil(t, run.DownloadExpiresAt)
	assert.ErrorIs(t, runs.ClearDownloadToken(ctx, runID), repositories.ErrDownloadTokenUsed)

	t.Run("unknown run returns not found", func(t *testing.T) {
		_, err := runs.ReadRunForDownload(ctx, 999999)
		assert.ErrorIs(t, err, repositories.ErrRunNotFound)
	})
}

func TestUpdateScheduleAfterRun(t *testing.T) {
	schedules, runs, scheduleID := setupRunTest(t)
	ctx := context.Background()

	lastRunAt := time.Now().UTC().Truncate(time.Millisecond)
	nextRunAt := lastRunAt.Add(24 * time.Hour)

	require.NoError(t, runs.UpdateScheduleAfterRun(ctx, scheduleID, lastRunAt, &nextRunAt))

	fresh, err := schedules.GetScheduleByID(ctx, scheduleID)
	require.NoError(t, err)
	require.NotNil(t, fresh.LastRunAt)
	assert.True(t, fresh.LastRunAt.Equal(lastRunAt))
	require.NotNil(t, fresh.NextRunAt)
	assert.True(t, fresh.NextRunAt.Equal(nextRunAt))

	t.Run("disabled schedule keeps next_run_at null", func(t *testing.T) {
		_, err := schedules.UpdateSchedule(ctx, &schemas.UpdateScheduleRequest{
			ID:        scheduleID,
			Enabled:   boolPtr(false),
			UpdatedBy: "test-user",
		})
		require.NoError(t, err)

		require.NoError(t, runs.UpdateScheduleAfterRun(ctx, scheduleID, lastRunAt, &nextRunAt))

		fresh, err := schedules.GetScheduleByID(ctx, scheduleID)
		require.NoError(t, err)
		assert.Nil(t, fresh.NextRunAt)
	})
}
