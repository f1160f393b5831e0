package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/config"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/presenter"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/reviewlog"
	"github.com/jingkaihe/skillhub/pkg/webui"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
	Heartbeat   time.Duration
	NoImport    bool
}

// NewServeConfig creates a ServeConfig from the loaded configuration
func NewServeConfig(c config.Config) *ServeConfig {
	return &ServeConfig{
		Host:        c.Server.Host,
		Port:        c.Server.Port,
		CORSOrigins: c.Server.CORSOrigins,
		Heartbeat:   webui.DefaultHeartbeat,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the marketplace HTTP API",
	Long: `Start the marketplace HTTP API. Skills are seeded from the built-in catalog
(or --seed-file), submissions are evaluated by the animated pipeline and
registry changes are streamed to clients over Server-Sent Events.

The server will be available at http://localhost:8080 by default.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		sc := getServeConfigFromFlags(cmd)
		runServeCommand(ctx, sc)
	},
}

func init() {
	serveCmd.Flags().String("host", "localhost", "Host to bind the server to")
	serveCmd.Flags().Int("port", 8080, "Port to bind the server to")
	serveCmd.Flags().String("stages-file", "", "YAML stage table, reloaded whenever it changes")
	serveCmd.Flags().String("review-log", "", "SQLite database recording every review event")
	serveCmd.Flags().Duration("heartbeat", webui.DefaultHeartbeat, "Keep-alive interval of event streams (0 disables)")
	serveCmd.Flags().Bool("no-import", false, "Disable POST /api/import")

	bindFlag("server.host", serveCmd.Flags().Lookup("host"))
	bindFlag("server.port", serveCmd.Flags().Lookup("port"))
	bindFlag("stages_file", serveCmd.Flags().Lookup("stages-file"))
	bindFlag("review_log.path", serveCmd.Flags().Lookup("review-log"))
}

// getServeConfigFromFlags extracts serve configuration from command flags
func getServeConfigFromFlags(cmd *cobra.Command) *ServeConfig {
	sc := NewServeConfig(cfg)

	if heartbeat, err := cmd.Flags().GetDuration("heartbeat"); err == nil {
		sc.Heartbeat = heartbeat
	}
	if noImport, err := cmd.Flags().GetBool("no-import"); err == nil {
		sc.NoImport = noImport
	}

	return sc
}

// runServeCommand starts the HTTP API and blocks until interrupted
func runServeCommand(ctx context.Context, sc *ServeConfig) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if sc.Port < 1024 {
		logger.G(ctx).WithField("port", sc.Port).Warn("using privileged port (< 1024) may require elevated permissions")
	}

	stages, err := loadStages(cfg)
	if err != nil {
		presenter.Error(err, "failed to load stage table")
		os.Exit(1)
	}
	table := pipeline.NewTable(stages)
	if cfg.StagesFile != "" {
		if err := table.Watch(ctx, cfg.StagesFile, pipeline.DefaultReloadDebounce); err != nil {
			logger.G(ctx).WithError(err).Warn("stage table changes will not be picked up")
		}
	}

	store, err := openReviewLog(ctx, cfg)
	if err != nil {
		presenter.Error(err, "failed to open review log")
		os.Exit(1)
	}

	var regOpts []registry.Option
	if store != nil {
		regOpts = append(regOpts, registry.WithObserver(store))
	}
	reg, err := newRegistry(cfg, regOpts...)
	if err != nil {
		presenter.Error(err, "failed to create registry")
		os.Exit(1)
	}

	opts := []webui.Option{
		webui.WithStages(table),
		webui.WithHeartbeat(sc.Heartbeat),
	}
	if store != nil {
		opts = append(opts, webui.WithReviewLog(store))
	}
	if !sc.NoImport {
		im, err := newImporter(ctx, cfg)
		if err != nil {
			presenter.Error(err, "failed to create importer")
			os.Exit(1)
		}
		opts = append(opts, webui.WithImporter(im))
	}

	serverConfig := &webui.ServerConfig{
		Host:        sc.Host,
		Port:        sc.Port,
		CORSOrigins: sc.CORSOrigins,
	}
	server, err := webui.NewServer(serverConfig, reg, opts...)
	if err != nil {
		presenter.Error(err, "failed to create web server")
		os.Exit(1)
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"host":   sc.Host,
		"port":   sc.Port,
		"skills": reg.Len(),
		"schema": reg.Schema().Name,
	}).Info("starting skillhub server")

	presenter.Success(fmt.Sprintf("Skillhub server starting on http://%s", serverConfig.Addr()))
	presenter.Info("Press Ctrl+C to stop the server")

	serveErr := server.Start(ctx)
	if err := shutdown(reg, store); err != nil {
		logger.G(ctx).WithError(err).Error("failed to shut down cleanly")
	}
	if serveErr != nil {
		presenter.Error(serveErr, "web server failed")
		os.Exit(1)
	}

	presenter.Info("Server stopped")
}

// shutdown cancels pending auto-rejections before the review log closes so
// no late event is written to a closed database.
func shutdown(reg *registry.Registry, store *reviewlog.Store) error {
	var result *multierror.Error
	reg.Close()
	if store != nil {
		if err := store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
