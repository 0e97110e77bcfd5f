package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"gst-reconciliation-service/cmd/reconciler/config"
	"gst-reconciliation-service/internal/api"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reconciliation, links and run history over HTTP",
	Long: `Serve starts the JSON API:

  POST   /api/v1/reconcile/invoices   reconcile invoice rows (?format=console|csv|xlsx)
  POST   /api/v1/reconcile/notes      reconcile note rows
  GET    /api/v1/links?scope=         list saved links
  POST   /api/v1/links                save a link
  DELETE /api/v1/links                remove a link, or every link with "all": true
  GET    /api/v1/runs?scope=&limit=   list runs
  GET    /api/v1/runs/:id             one run
  GET    /api/v1/runs/:id/audit       audit log of a run
  GET    /healthz                     health check

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen host (default 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "listen port (default 8080)")
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()

	serverConfig, err := config.CreateServerConfig(v)
	if err != nil {
		return err
	}
	serviceConfig, err := config.CreateReconcilerConfig(v)
	if err != nil {
		return err
	}
	service, err := reconciler.NewService(serviceConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// the server logs JSON for collectors unless a format was configured
	log := logger.GetGlobalLogger()
	if !v.InConfig("log.format") && os.Getenv(config.EnvPrefix+"_LOG_FORMAT") == "" {
		serverLog := logger.ServerConfig()
		serverLog.Level = logger.InfoLevel
		if viper.GetBool("verbose") {
			serverLog.Level = logger.DebugLevel
		}
		if l, err := logger.NewLogger(serverLog); err == nil {
			log = l
			logger.SetGlobalLogger(l)
		}
	}

	api.Version = version
	server, err := api.NewServer(serverConfig, service, store, log)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}
