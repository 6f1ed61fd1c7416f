package main

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"droneMissionEngine/internal/config"
	"droneMissionEngine/internal/db"
	"droneMissionEngine/internal/logging"
)

var devDefaults bool

var rootCmd = &cobra.Command{
	Use:   "drone-mission-engine",
	Short: "Drone delivery mission engine",
	Long: `Turns order-ready events into drone missions, simulates the flights
and reports deliveries back to the order system.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&devDefaults, "dev", false, "use a development JWT secret when JWT_SECRET is unset")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(droneCmd)
}

// setup loads configuration and builds the process logger.
func setup() (*config.Config, *logrus.Logger, error) {
	load := config.Load
	if devDefaults {
		load = config.LoadWithDefaults
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, log, nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", cfg.Database.Path, err)
	}
	return d, nil
}
