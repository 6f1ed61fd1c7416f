package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

var droneCmd = &cobra.Command{
	Use:   "drone",
	Short: "Provision and maintain fleet drones",
}

var (
	addName    string
	addSerial  string
	addBattery float64
	addLat     float64
	addLng     float64
)

// withDrones runs fn against the drone repository with a bounded context.
func withDrones(fn func(ctx context.Context, drones *repository.DroneRepository) error) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	d, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx, repository.NewDroneRepository(d))
}

var droneAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an idle drone to the fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDrones(func(ctx context.Context, drones *repository.DroneRepository) error {
			name := addName
			if name == "" {
				name = "drone-" + addSerial
			}
			created, err := drones.Create(ctx, &models.Drone{
				Name:         name,
				SerialNumber: addSerial,
				BatteryLevel: addBattery,
				Location:     geo.Point{Lat: addLat, Lng: addLng},
				Status:       models.DroneStatusIdle,
			})
			if err != nil {
				return fmt.Errorf("add drone: %w", err)
			}
			fmt.Printf("added drone %d (%s)\n", created.ID, created.SerialNumber)
			return nil
		})
	},
}

var droneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fleet drones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDrones(func(ctx context.Context, drones *repository.DroneRepository) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSERIAL\tSTATUS\tBATTERY\tLAT\tLNG\tMISSION")
			var after int64
			for {
				page, err := drones.List(ctx, repository.ListDronesParams{PageSize: 100, AfterID: after})
				if err != nil {
					return fmt.Errorf("list drones: %w", err)
				}
				for _, d := range page {
					mission := "-"
					if d.MissionID != nil {
						mission = *d.MissionID
					}
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%.5f\t%.5f\t%s\n",
						d.ID, d.SerialNumber, d.Status, d.BatteryLevel, d.Location.Lat, d.Location.Lng, mission)
				}
				if len(page) < 100 {
					break
				}
				after = page[len(page)-1].ID
			}
			return w.Flush()
		})
	},
}

var droneChargeCmd = &cobra.Command{
	Use:   "charge <id> [level]",
	Short: "Set a drone's battery level (default 100)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid drone id %q", args[0])
		}
		level := 100.0
		if len(args) == 2 {
			if level, err = strconv.ParseFloat(args[1], 64); err != nil {
				return fmt.Errorf("invalid battery level %q", args[1])
			}
		}
		return withDrones(func(ctx context.Context, drones *repository.DroneRepository) error {
			if err := drones.SetBattery(ctx, id, level); err != nil {
				return fmt.Errorf("charge drone %d: %w", id, err)
			}
			fmt.Printf("drone %d battery set to %.1f\n", id, level)
			return nil
		})
	},
}

var droneRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a drone that no active mission holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid drone id %q", args[0])
		}
		return withDrones(func(ctx context.Context, drones *repository.DroneRepository) error {
			if err := drones.Delete(ctx, id); err != nil {
				return fmt.Errorf("remove drone %d: %w", id, err)
			}
			fmt.Printf("drone %d removed\n", id)
			return nil
		})
	},
}

func init() {
	droneAddCmd.Flags().StringVar(&addSerial, "serial", "", "serial number (required)")
	droneAddCmd.Flags().StringVar(&addName, "name", "", "display name (default drone-<serial>)")
	droneAddCmd.Flags().Float64Var(&addBattery, "battery", 100, "battery level 0..100")
	droneAddCmd.Flags().Float64Var(&addLat, "lat", 0, "home latitude")
	droneAddCmd.Flags().Float64Var(&addLng, "lng", 0, "home longitude")
	_ = droneAddCmd.MarkFlagRequired("serial")

	droneCmd.AddCommand(droneAddCmd, droneListCmd, droneChargeCmd, droneRemoveCmd)
}
