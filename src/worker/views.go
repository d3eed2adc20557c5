package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"reportserver/src/config"
	handlers "reportserver/src/worker/handlers"
)

type Server struct {
	Router  *chi.Mux
	Handler handlers.Handler
	Port    string
}

// NewServer wires the worker: the polling loop plus a small HTTP surface for
// health, metrics and manual pokes.
func NewServer(cfg *config.Config, db *pgxpool.Pool, logger *logrus.Logger) (*Server, error) {
	handler, err := handlers.NewHandler(cfg, db, logger)
	if err != nil {
		return nil, err
	}

	server := &Server{
		Router:  chi.NewRouter(),
		Handler: *handler,
		Port:    cfg.Service.Port,
	}
	server.InitRoutes()

	if err := handler.Controller.Start(); err != nil {
		return nil, err
	}
	return server, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes() {
	s.Router.Get("/alive", handlers.Healthcheck)
	s.Router.Handle("/metrics", promhttp.Handler())
	s.Router.Post("/api/poll", s.Handler.PollNow)
}

func NewHTTPServer(server *Server) *http.Server {
	return &http.Server{
		Addr:         ":" + server.Port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Handler:      server,
	}
}
