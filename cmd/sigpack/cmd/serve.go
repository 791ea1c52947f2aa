package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/sigpack/container"
	"github.com/quantfold/sigpack/lib/telemetry"
	"github.com/quantfold/sigpack/packager"
	"github.com/quantfold/sigpack/server"
)

var servePort int

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve <name>",
	Short: "Serve a packaged strategy over HTTP",
	Long:  `Load a strategy bundle and expose it through the prediction API without building a Docker image.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config or 8000)")
}

func runServe(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg := settings()
	logger := log.New(os.Stdout, "sigpack ", log.LstdFlags)

	provider, shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	metrics, err := telemetry.NewMetrics(provider)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	pkg, err := packager.New(cfg.StrategiesDir, packager.WithLogger(logger), packager.WithMetrics(metrics))
	if err != nil {
		return err
	}

	loaded, meta, err := pkg.Load(name, container.WithLogger(logger), container.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer loaded.Close()

	port := servePort
	if port == 0 {
		port = cfg.Port
	}

	app := server.NewApp(loaded, server.WithLogger(logger), server.WithMetrics(metrics))
	addr := ":" + strconv.Itoa(port)
	logger.Printf("serving strategy %q (version %s) on %s", meta.Name, meta.Version, addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
