// Package httpapi is the REST and WebSocket surface of the mission engine.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/auth"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/simulator"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

// Missions is the lifecycle surface used by the handlers.
type Missions interface {
	Create(ctx context.Context, req mission.CreateRequest) (*models.Mission, error)
	Get(ctx context.Context, id string) (*models.Mission, error)
	List(ctx context.Context, f mission.Filter) ([]models.Mission, error)
	ApplyStatus(ctx context.Context, id string, u mission.StatusUpdate) (*models.Mission, error)
	Cancel(ctx context.Context, id, reason string) (*models.Mission, error)
}

// Simulations controls flight simulations.
type Simulations interface {
	Start(ctx context.Context, missionID string) (simulator.Status, error)
	Stop(missionID string) error
	Status(missionID string) (simulator.Status, bool)
	Active() []simulator.Status
}

// Drones reads and recovers fleet records.
type Drones interface {
	GetByID(ctx context.Context, id int64) (*models.Drone, error)
	List(ctx context.Context, p repository.ListDronesParams) ([]models.Drone, error)
	Recover(ctx context.Context, droneID int64) (*models.Drone, error)
}

// Options configures the HTTP surface.
type Options struct {
	JWTSecret           string
	AutoStartSimulation bool
	Gatherer            prometheus.Gatherer // nil serves the default registry
	WebSocket           http.HandlerFunc    // nil disables /ws
}

// Server holds the handler dependencies.
type Server struct {
	missions Missions
	sims     Simulations
	drones   Drones
	opts     Options
	log      logrus.FieldLogger
}

// New returns a Server.
func New(missions Missions, sims Simulations, drones Drones, opts Options, log logrus.FieldLogger) *Server {
	return &Server{missions: missions, sims: sims, drones: drones, opts: opts, log: log}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	gatherer := s.opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.WebSocket != nil {
		r.Get("/ws", s.opts.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.opts.JWTSecret, deny))
		operator := auth.RequireOperatorHTTP(deny)

		r.Route("/missions", func(r chi.Router) {
			r.Get("/", s.listMissions)
			r.Get("/{id}", s.getMission)
			r.With(operator).Post("/", s.createMission)
			r.With(operator).Patch("/{id}/status", s.updateMissionStatus)
			r.With(operator).Delete("/{id}", s.cancelMission)
		})
		r.Route("/simulation", func(r chi.Router) {
			r.Get("/", s.listSimulations)
			r.Get("/{missionId}", s.getSimulation)
			r.With(operator).Post("/start/{missionId}", s.startSimulation)
			r.With(operator).Post("/stop/{missionId}", s.stopSimulation)
		})
		r.Route("/drones", func(r chi.Router) {
			r.Get("/", s.listDrones)
			r.Get("/{id}", s.getDrone)
			r.With(operator).Post("/{id}/recover", s.recoverDrone)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
