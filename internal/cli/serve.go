package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"runbox/internal/config"
	"runbox/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		port      int
		host      string
		catalog   string
		noWatch   bool
		noCleanup bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run, catalog and progress API for the course website",
		Long: `Start the runbox gateway.

The course website posts exercise code to /api/v1/run or streams it over
/ws, reads the catalog and stores learner progress. Prometheus metrics are
served on /metrics. The server stops on SIGINT or SIGTERM.`,
		Example: `  # Serve on the configured address (default 127.0.0.1:8090)
  runbox serve

  # Serve a catalog from the course repository on another port
  runbox serve --catalog ./course/catalog.yaml --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}

			cfg := *cliCtx.Config
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Gateway.Port = port
			}
			if flags.Changed("host") {
				cfg.Gateway.Host = host
			}
			if flags.Changed("catalog") {
				cfg.Catalog.Path = catalog
			}
			if noWatch {
				cfg.Catalog.Watch = false
			}
			if noCleanup {
				cfg.Maintenance.Enabled = false
			}

			return serve(cmd, cliCtx, &cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides gateway.port)")
	cmd.Flags().StringVar(&host, "host", "", "address to bind (overrides gateway.host)")
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog manifest file (overrides catalog.path)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the catalog when the file changes")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "do not purge expired saved code")

	return cmd
}

func serve(cmd *cobra.Command, cliCtx *CLIContext, cfg *config.Config) error {
	log := cliCtx.Logger

	srv, err := server.NewServer(server.ServerConfig{
		Config:  cfg,
		Version: Version,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if !cliCtx.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "runbox listening on http://%s\n", srv.Addr())
	}

	select {
	case <-cmd.Context().Done():
		log.Info().Msg("Shutting down server")
	case err := <-srv.ErrorChan():
		log.Error().Err(err).Msg("Server error")
		_ = srv.Stop()
		return err
	}

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
