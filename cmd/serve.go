package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/access-assistant/backend/logging"
	"github.com/access-assistant/backend/metrics"
	"github.com/access-assistant/backend/middleware"
	"github.com/access-assistant/backend/relay"
	"github.com/access-assistant/backend/server"
	"github.com/access-assistant/backend/workspace"
)

type serveOptions struct {
	port     string
	provider string
}

// NewServeCmd runs the HTTP API
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the accessibility API server",
		Long: `Serve the JSON API used by the editor: content analysis, alt-text fix
workflows, the image proxy, usage statistics and Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Model provider: gemini, openai, claude or stub (overrides LLM_PROVIDER)")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(opts.provider, "")
	if err != nil {
		return err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}

	gin.SetMode(cfg.GinMode)
	metrics.Register()

	p, err := newPipeline(cfg, true)
	if err != nil {
		return err
	}
	defer p.Close()
	p.usage.Cleanup(cfg.UsageRetainMonths)

	statistics := logging.NewStatistics(cfg.DataDir, cfg.DevMode)
	defer func() {
		if err := statistics.Save(); err != nil {
			log.WithError(err).Warn("Failed to save request statistics")
		}
	}()

	docs := workspace.NewStore(cfg.DocumentTTL, cfg.MaxDocuments, log.Log)
	defer docs.Close()

	srv := server.New(server.Deps{
		Analyzer:    p.analyzer,
		Coordinator: p.coordinator,
		Relay: relay.NewHandler(relay.HandlerConfig{
			Timeout:      cfg.RelayTimeout,
			MaxBytes:     cfg.RelayMaxBytes,
			AllowedHosts: cfg.RelayAllowedHosts,
			AllowPrivate: cfg.RelayAllowPrivate,
		}, log.Log),
		Documents:   docs,
		Statistics:  statistics,
		Usage:       p.usage,
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Provider:    p.gateway.Name(),
		Logger:      log.Log,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"port":     cfg.Port,
		"provider": p.gateway.Name(),
		"relay":    cfg.RelayURL,
	}).Info("Server starting")

	return srv.Run(ctx, ":"+cfg.Port)
}
