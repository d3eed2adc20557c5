package controllers

import (
	"context"
	"fmt"
	"time"

	"reportserver/src/metrics"
	"reportserver/src/models"
	"reportserver/src/scheduler"
	"reportserver/src/schemas"
	"reportserver/src/utils"
)

// Poll claims one batch of due schedules and executes each claimed
// occurrence. Returns how many schedules were claimed. Contention with other
// workers is not an error: contested rows are simply absent from the batch
// and come back on a later poll.
func (c *Controller) Poll() (int, error) {
	start := time.Now()
	defer func() {
		metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	ctx := utils.WithLogger(context.Background(), c.Logger)

	claimed, err := c.Claims.ClaimDue(ctx, c.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	metrics.SchedulesClaimed.Add(float64(len(claimed)))
	c.Logger.WithField("count", len(claimed)).Info("claimed due schedules")

	for _, schedule := range claimed {
		c.executeSchedule(ctx, schedule)
	}
	return len(claimed), nil
}

// executeSchedule runs one claimed occurrence through the queued → running →
// success|failure lifecycle. Generation failures finish the run as failure;
// the missed occurrence is not rescheduled, since next_run_at already
// advanced at claim time, and operators recover via the run-now action.
func (c *Controller) executeSchedule(ctx context.Context, schedule *models.ScheduledReportSchedule) {
	logger := c.Logger.WithFields(map[string]interface{}{
		"schedule_id": schedule.ID,
		"report_key":  schedule.ReportKey,
	})

	runID, err := c.Runs.CreateRun(ctx, schedule.ID, nil)
	if err != nil {
		logger.WithError(err).Error("could not create run")
		return
	}

	startedAt := time.Now().UTC()
	if err := c.Runs.StartRun(ctx, runID, startedAt); err != nil {
		logger.WithError(err).Error("could not start run")
		return
	}

	artifact, err := c.Reports.Generate(ctx, schedule.ReportKey, schedule.OrgID, schedule.Format)
	if err != nil {
		c.finishFailed(ctx, runID, err)
		logger.WithError(err).Error("report generation failed")
		return
	}

	token, tokenHash := utils.NewDownloadToken()
	expiresAt := time.Now().UTC().Add(c.DownloadTTL)

	downloadURL := ""
	if c.BaseURL != "" {
		downloadURL = fmt.Sprintf("%s/api/runs/%d/download?token=%s", c.BaseURL, runID, token)
	}
	delivered := c.Delivery.Deliver(ctx, schedule.Recipients, artifact, downloadURL)
	if failed := len(schedule.Recipients) - len(delivered); failed > 0 {
		metrics.DeliveriesFailed.Add(float64(failed))
	}

	finishedAt := time.Now().UTC()
	err = c.Runs.FinishRun(ctx, &schemas.FinishRunRequest{
		RunID:             runID,
		Status:            models.RunStatusSuccess,
		FinishedAt:        finishedAt,
		Artifact:          artifact,
		DownloadTokenHash: &tokenHash,
		DownloadExpiresAt: &expiresAt,
		DeliveredTo:       delivered,
	})
	if err != nil {
		logger.WithError(err).Error("could not finish run")
		return
	}
	metrics.RunsFinished.WithLabelValues(string(models.RunStatusSuccess)).Inc()

	// Reconcile the schedule's bookkeeping from its current definition: the
	// cadence fields may have been edited between claim and completion.
	fresh, err := c.Schedules.GetScheduleByID(ctx, schedule.ID)
	if err != nil {
		logger.WithError(err).Warn("could not reload schedule after run")
		return
	}
	var nextRunAt *time.Time
	if fresh.Enabled {
		next := scheduler.NextRunAt(fresh.Cadence, fresh.TimeOfDay, fresh.DayOfWeek, fresh.DayOfMonth, finishedAt)
		nextRunAt = &next
	}
	if err := c.Runs.UpdateScheduleAfterRun(ctx, schedule.ID, startedAt, nextRunAt); err != nil {
		logger.WithError(err).Warn("could not update schedule after run")
		return
	}

	logger.WithField("run_id", runID).Info("report run completed")
}

func (c *Controller) finishFailed(ctx context.Context, runID uint, cause error) {
	msg := cause.Error()
	err := c.Runs.FinishRun(ctx, &schemas.FinishRunRequest{
		RunID:      runID,
		Status:     models.RunStatusFailure,
		FinishedAt: time.Now().UTC(),
		Error:      &msg,
	})
	if err != nil {
		c.Logger.WithError(err).WithField("run_id", runID).Error("could not record run failure")
		return
	}
	metrics.RunsFinished.WithLabelValues(string(models.RunStatusFailure)).Inc()
}
