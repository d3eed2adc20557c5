package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"reportserver/src/api"
	"reportserver/src/config"
	"reportserver/src/database"
	"reportserver/src/utils"
	"reportserver/src/worker"
)

func main() {
	cfg, err := config.LoadConfig("./settings", os.Getenv("ENV"))
	if err != nil {
		log.Println(err, "Error while loading config")
		return
	}
	errC, err := run(cfg)
	if err != nil {
		log.Println(err, "Couldn't run")
		return
	}

	if err := <-errC; err != nil {
		log.Println(err, "Error while running")
	}
}

func run(cfg *config.Config) (<-chan error, error) {
	errC := make(chan error, 1)
	logger := utils.NewLogger(logrus.InfoLevel, false, "")

	pool, err := database.SetupDB(cfg)
	if err != nil {
		return nil, err
	}
	// Safe to issue on every start; replaces any hidden "tables ready" state.
	if err := database.EnsureSchema(context.Background(), pool); err != nil {
		return nil, err
	}

	var httpServer *http.Server
	if cfg.Service.Type == config.API {
		server, err := api.NewServer(cfg, pool)
		if err != nil {
			return nil, err
		}
		httpServer = api.NewHTTPServer(server)
	} else {
		server, err := worker.NewServer(cfg, pool, logger)
		if err != nil {
			return nil, err
		}
		httpServer = worker.NewHTTPServer(server)
	}

	go func() {
		logger.WithField("port", cfg.Service.Port).Info("starting server")

		// "ListenAndServe always returns a non-nil error. After Shutdown or
		// Close, the returned error is ErrServerClosed."
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server stopped")
			errC <- err
		}
	}()
	return errC, nil
}
