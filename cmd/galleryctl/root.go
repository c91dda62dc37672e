package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"facegallery/internal/config"
	"facegallery/internal/logging"
	"facegallery/internal/store"
)

// env is shared by subcommands once the root pre-run has connected.
type env struct {
	cfg config.App
	log *logrus.Logger
	db  *store.DB
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var dbURL string

	root := &cobra.Command{
		Use:           "galleryctl",
		Short:         "Administer the face gallery database",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			e.cfg = cfg
			e.log = logging.New(logging.Options{Level: cfg.LogLevel})

			e.db, err = store.NewDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.db != nil {
				_ = e.db.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&dbURL, "db", "", "Postgres connection string (default: DATABASE_URL)")

	root.AddCommand(newMigrateCmd(e), newUserCmd(e), newMatchCmd(e))
	return root
}

func (e *env) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
