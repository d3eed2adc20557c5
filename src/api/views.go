package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	handlers "reportserver/src/api/handlers"
	"reportserver/src/config"
)

type Server struct {
	Router  *chi.Mux
	Handler handlers.Handler
	Port    string
}

func NewServer(cfg *config.Config, db *pgxpool.Pool) (*Server, error) {
	server := &Server{
		Router:  chi.NewRouter(),
		Handler: *handlers.NewHandler(db),
		Port:    cfg.Service.Port,
	}
	server.InitRoutes()
	return server, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes() {
	s.Router.Get("/alive", handlers.Healthcheck)

	s.Router.Route("/api/schedules", func(r chi.Router) {
		r.Get("/", s.Handler.GetAllSchedules)
		r.Post("/", s.Handler.CreateSchedule)
		r.Get("/{id}", s.Handler.GetScheduleByID)
		r.Put("/{id}", s.Handler.UpdateSchedule)
		r.Delete("/{id}", s.Handler.DeleteSchedule)
		r.Post("/{id}/run", s.Handler.RunScheduleNow)
		r.Get("/{id}/runs", s.Handler.ListScheduleRuns)
	})

	s.Router.Get("/api/runs/{runID}/download", s.Handler.DownloadRunArtifact)
}

func NewHTTPServer(server *Server) *http.Server {
	return &http.Server{
		Addr:         ":" + server.Port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Handler:      server,
	}
}
