package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/matt0x6f/irc-relay/internal/bot"
	"github.com/matt0x6f/irc-relay/internal/config"
	"github.com/matt0x6f/irc-relay/internal/logger"
	"github.com/matt0x6f/irc-relay/internal/metric"
	"github.com/matt0x6f/irc-relay/internal/security"
	"github.com/matt0x6f/irc-relay/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

// loadConfig reads the document and applies flag and environment overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("journal"); v != "" {
		cfg.Journal = v
	}
	if v := viper.GetString("metrics_addr"); v != "" {
		cfg.MetricsAddr = v
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", config.ErrInvalidConfig, cfg.LogLevel)
	}
	logger.SetLevel(level)
	return cfg, nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ResolveSecrets(security.NewKeychain()); err != nil {
		return err
	}
	log := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := bot.Options{Logger: log, Version: "relaybot " + version}

	if cfg.Journal != "" {
		journal, err := storage.NewJournal(cfg.Journal, 100, 5*time.Second, logger.With("component", "journal"))
		if err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close journal")
			}
		}()
		opts.Journal = journal
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if opts.Metrics, err = metric.New(reg); err != nil {
			return err
		}
		srv = metricsServer(cfg.MetricsAddr, reg)
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	relay, err := bot.New(cfg, opts)
	if err != nil {
		return err
	}
	// networks outlive the signal so Shutdown can still send QUIT
	if err := relay.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Signal received, shutting down")

	done := make(chan struct{})
	go func() {
		relay.Shutdown("Relay shutting down")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("Timeout waiting for networks to quit")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return nil
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
