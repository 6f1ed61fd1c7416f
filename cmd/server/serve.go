package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"droneMissionEngine/internal/allocator"
	"droneMissionEngine/internal/bridge"
	"droneMissionEngine/internal/broadcast"
	"droneMissionEngine/internal/config"
	grpcserver "droneMissionEngine/internal/grpc"
	"droneMissionEngine/internal/httpapi"
	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/simulator"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

var noBus bool

const resumePage = 100

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST, WebSocket and gRPC servers and consume order events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		return serve(cfg, log)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&noBus, "no-bus", false, "do not connect to NATS; missions are created over REST only")
}

func serve(cfg *config.Config, log *logrus.Logger) error {
	log.WithField("config", cfg.String()).Info("configuration loaded")

	d, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("close db")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	drones := repository.NewDroneRepository(d)
	alloc := allocator.New(drones, cfg.Allocator.MinBattery, log.WithField("component", "allocator"), m)
	missions := mission.New(repository.NewMissionRepository(d), alloc, mission.Config{
		PathSteps: cfg.Simulation.PathSteps,
		SpeedKps:  cfg.Simulation.SpeedKps,
	}, log.WithField("component", "mission"), m)

	hub := broadcast.NewHub(log.WithField("component", "broadcast"), m)
	var bg sync.WaitGroup
	bg.Add(1)
	go func() { defer bg.Done(); hub.Run(ctx) }()

	simCfg := simulator.DefaultConfig()
	simCfg.TickInterval = cfg.Simulation.TickInterval
	simCfg.SpeedKps = cfg.Simulation.SpeedKps
	simCfg.BatteryDrainPerTick = cfg.Simulation.BatteryDrainPerTick
	simCfg.PathSteps = cfg.Simulation.PathSteps
	sim := simulator.New(simCfg, missions, drones, hub, log.WithField("component", "simulator"), m)
	resumeFlights(ctx, missions, sim, log)

	var nc *nats.Conn
	if !noBus {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("drone-mission-engine"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return fmt.Errorf("jetstream: %w", err)
		}
		busLog := log.WithField("component", "bridge")
		missions.AddListener(bridge.NewDeliveredPublisher(js, cfg.NATS.DeliveredSubject, busLog, m))
		br := bridge.New(bridge.Config{
			Stream:            cfg.NATS.Stream,
			Consumer:          cfg.NATS.Consumer,
			OrderReadySubject: cfg.NATS.OrderReadySubject,
			DeliveredSubject:  cfg.NATS.DeliveredSubject,
			DeadLetterSubject: cfg.NATS.DeadLetterSubject,
			CapacityBackoff:   cfg.NATS.CapacityBackoff,
			RetryBackoff:      cfg.NATS.RetryBackoff,
		}, missions, sim, js, busLog, m)
		bg.Add(1)
		go func() { defer bg.Done(); runBridge(ctx, br, js, busLog) }()
	}

	api := httpapi.New(missions, sim, drones, httpapi.Options{
		JWTSecret:           cfg.Auth.JWTSecret,
		AutoStartSimulation: cfg.HTTP.AutoStartSimulation,
		Gatherer:            reg,
		WebSocket:           hub.ServeWS,
	}, log.WithField("component", "http"))
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()
	log.WithField("address", cfg.HTTP.Address).Info("HTTP server listening")

	grpcSrv, health := grpcserver.NewServer(cfg.Auth.JWTSecret, &grpcserver.FleetServer{
		Missions: missions,
		Drones:   drones,
		Sims:     sim,
		Log:      log.WithField("component", "grpc"),
	})
	shutdownGRPC, err := grpcserver.StartGRPC(cfg.GRPC.Address, grpcSrv, health)
	if err != nil {
		_ = httpSrv.Close()
		return fmt.Errorf("start grpc: %w", err)
	}
	log.WithField("address", cfg.GRPC.Address).Info("gRPC server listening")

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-httpErr:
		log.WithError(err).Error("HTTP server failed")
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	if err := shutdownGRPC(sctx); err != nil {
		log.WithError(err).Warn("gRPC shutdown")
	}
	if err := sim.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("simulator shutdown")
	}
	bg.Wait()
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.WithError(err).Warn("drain nats")
		}
	}
	log.Info("stopped")
	return nil
}

// runBridge keeps the consumer alive; setup errors are retried until ctx ends.
func runBridge(ctx context.Context, br *bridge.Bridge, js jetstream.JetStream, log logrus.FieldLogger) {
	for {
		err := br.Run(ctx, js)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("bridge stopped, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// resumeFlights restarts simulations for missions left in flight by a previous process.
func resumeFlights(ctx context.Context, missions *mission.Service, sim *simulator.Simulator, log logrus.FieldLogger) {
	resumed := 0
	for offset := 0; ; offset += resumePage {
		page, err := missions.List(ctx, mission.Filter{
			Statuses: []models.MissionStatus{models.MissionStatusInProgress, models.MissionStatusDelivered},
			Limit:    resumePage,
			Offset:   offset,
		})
		if err != nil {
			log.WithError(err).Warn("list in-flight missions")
			return
		}
		for _, m := range page {
			if _, err := sim.Start(ctx, m.ID); err != nil {
				if !errors.Is(err, simulator.ErrNotFlyable) {
					log.WithError(err).WithField("mission_id", m.ID).Warn("resume simulation")
				}
				continue
			}
			resumed++
		}
		if len(page) < resumePage {
			break
		}
	}
	if resumed > 0 {
		log.WithField("count", resumed).Info("resumed in-flight simulations")
	}
}
