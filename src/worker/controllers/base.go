package controllers

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"reportserver/src/config"
	"reportserver/src/repositories"
	"reportserver/src/services"
)

// Controller drives the claim-execute-finish cycle. Any number of worker
// processes may run one of these against the same database; the claim
// engine's row locks keep them from stepping on each other.
type Controller struct {
	DB        *pgxpool.Pool
	Claims    repositories.ClaimRepository
	Schedules repositories.ScheduleRepository
	Runs      repositories.RunRepository
	Reports   services.ReportServiceI
	Delivery  services.DeliveryServiceI
	Logger    *logrus.Logger

	BatchSize    int
	DownloadTTL  time.Duration
	BaseURL      string
	pollInterval string

	cron    *cron.Cron
	entryID cron.EntryID
}

func NewController(db *pgxpool.Pool, cfg *config.Config, logger *logrus.Logger) (*Controller, error) {
	delivery, err := services.NewDeliveryService(cfg)
	if err != nil {
		return nil, err
	}

	return &Controller{
		DB:           db,
		Claims:       repositories.NewClaimRepository(db),
		Schedules:    repositories.NewScheduleRepository(db),
		Runs:         repositories.NewRunRepository(db),
		Reports:      services.NewReportService(db),
		Delivery:     delivery,
		Logger:       logger,
		BatchSize:    cfg.Worker.BatchSize,
		DownloadTTL:  time.Duration(cfg.Worker.DownloadTTLHours) * time.Hour,
		BaseURL:      cfg.Service.BaseURL,
		pollInterval: cfg.Worker.PollInterval,
	}, nil
}

// Start schedules the polling loop. The interval comes from config as a Go
// duration string ("30s", "1m").
func (c *Controller) Start() error {
	c.cron = cron.New()
	id, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.pollInterval), func() {
		if _, err := c.Poll(); err != nil {
			c.Logger.WithError(err).Error("scheduler poll failed")
		}
	})
	if err != nil {
		return err
	}
	c.entryID = id
	c.cron.Start()
	return nil
}

func (c *Controller) Stop() {
	if c.cron != nil {
		c.cron.Remove(c.entryID)
		c.cron.Stop()
	}
}
