package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/damaro/courier/internal/config"
	"github.com/damaro/courier/internal/web/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

var migrateConfigFile string

func init() {
	migrateCmd.Flags().StringVarP(&migrateConfigFile, "config", "c", "/etc/courier/courier.yaml", "Path to configuration file")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(migrateConfigFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	fmt.Println("migrations applied")
	return nil
}
