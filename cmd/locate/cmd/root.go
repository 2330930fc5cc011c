package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appLogger "github.com/FACorreiaa/go-location-resolver/app/logger"
	"github.com/FACorreiaa/go-location-resolver/config"
	"github.com/FACorreiaa/go-location-resolver/internal/api/location"
	"github.com/FACorreiaa/go-location-resolver/internal/container"
)

type app struct {
	service location.Service
	close   func()

	defaultCountry string
	jsonOutput     bool
	withDB         bool
	verbose        bool
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd(nil).Execute()
}

// newRootCmd builds the command tree. A non-nil service skips config
// loading and engine construction.
func newRootCmd(service location.Service) *cobra.Command {
	a := &app{service: service, close: func() {}, defaultCountry: "India"}

	root := &cobra.Command{
		Use:           "locate",
		Short:         "Resolve partial place names into ranked locations",
		Long:          "Runs the location resolution engine in-process: database, GeoNames and the built-in gazetteer.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.service != nil {
				return nil
			}
			return a.build(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print JSON instead of a table")
	root.PersistentFlags().BoolVar(&a.withDB, "db", false, "connect to Postgres as the primary source")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		a.searchCmd(),
		a.popularCmd(),
		a.countriesCmd(),
		a.getCmd(),
		a.nearbyCmd(),
	)
	return root
}

func (a *app) build(ctx context.Context, stderr io.Writer) error {
	_ = godotenv.Load()
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}
	a.defaultCountry = cfg.Location.DefaultCountry

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if a.verbose {
		logger = appLogger.New(stderr, "development")
	}

	if a.withDB {
		cfg.Repositories.Postgres.Enabled = true
		c, err := container.NewContainer(ctx, &cfg, logger)
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}
		a.service = c.Engine.Service
		a.close = c.Close
		return nil
	}

	engine, err := container.NewEngine(cfg.Location, nil, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	a.service = engine.Service
	return nil
}
