package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"droneMissionEngine/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect or roll back schema migrations",
	Long:  `Migrations are applied automatically when the database is opened.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		migs, err := db.Status(d)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, m := range migs {
			_, _ = fmt.Fprintf(w, "%04d\t%s\t%t\n", m.Version, m.Name, m.Applied)
		}
		return w.Flush()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the newest applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		v, err := db.RollbackLast(d)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		if v == 0 {
			log.Info("nothing to roll back")
			return nil
		}
		log.WithField("version", v).Info("migration rolled back")
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
