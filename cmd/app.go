package cmd

import (
	"fmt"
	"os"

	"github.com/apex/log"

	"github.com/access-assistant/backend/advisor"
	"github.com/access-assistant/backend/analyzer"
	"github.com/access-assistant/backend/config"
	"github.com/access-assistant/backend/coordinator"
	"github.com/access-assistant/backend/gateway"
	"github.com/access-assistant/backend/llm"
	"github.com/access-assistant/backend/logging"
	"github.com/access-assistant/backend/relay"
	"github.com/access-assistant/backend/stats"
)

// pipeline is the analysis and fix core wired from configuration
type pipeline struct {
	cfg         *config.Config
	gateway     gateway.Gateway
	analyzer    *analyzer.Analyzer
	coordinator *coordinator.Coordinator
	usage       *stats.Storage
}

// loadConfig reads the configuration and installs the log handler. provider, when
// set, overrides LLM_PROVIDER.
func loadConfig(provider, logFormat string) (*config.Config, error) {
	cfg := config.Load()
	if provider != "" {
		cfg.Provider = provider
	}
	if logFormat == "" {
		logFormat = cfg.LogFormat
	}
	if err := logging.Setup(cfg.LogLevel, logFormat, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPipeline builds the core. recordUsage persists monthly counters under DATA_DIR.
func newPipeline(cfg *config.Config, recordUsage bool) (*pipeline, error) {
	gw, err := llm.NewFactory(cfg).Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	fetcher, err := relay.NewClient(relay.ClientConfig{
		RelayURL:     cfg.RelayURL,
		Timeout:      cfg.RelayTimeout,
		MaxBytes:     cfg.RelayMaxBytes,
		AllowPrivate: cfg.RelayAllowPrivate,
	}, log.Log)
	if err != nil {
		return nil, err
	}

	p := &pipeline{cfg: cfg, gateway: gw}

	var recorder interface{ Record(stats.Event) }
	if recordUsage {
		usage, err := stats.NewStorage(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage statistics: %w", err)
		}
		p.usage = usage
		recorder = usage
	}

	p.analyzer = analyzer.New(gw, log.Log, recorder)
	p.coordinator = coordinator.New(fetcher, advisor.New(gw, log.Log, cfg.ImageMaxWidth), recorder, log.Log)
	return p, nil
}

func (p *pipeline) Close() {
	if p.usage == nil {
		return
	}
	if err := p.usage.Shutdown(); err != nil {
		log.WithError(err).Warn("Failed to save usage statistics")
	}
}
