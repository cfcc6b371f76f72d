// ABOUTME: Serve command running the HTTP API, metrics endpoint, and polling scheduler
// ABOUTME: Shuts down gracefully on SIGINT or SIGTERM and drains queued events

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harper/nexifeed/internal/api"
	"github.com/harper/nexifeed/internal/metrics"
	"github.com/harper/nexifeed/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and feed scheduler",
	Long: `Run the HTTP API on the configured address. Unless disabled, the scheduler
polls every stored feed on the configured interval. Prometheus metrics are
served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		if noScheduler, _ := cmd.Flags().GetBool("no-scheduler"); noScheduler {
			cfg.Scheduler.Enabled = false
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.New(reg)
		m.Init(Version, cfg.GetBackend())

		a, err := newApp(m)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Scheduler.Enabled {
			sched, err := scheduler.New(store, a.ingester, scheduler.Options{
				Interval:    cfg.Scheduler.Interval,
				FeedTimeout: cfg.Scheduler.FeedTimeout,
				Logger:      logger,
				Metrics:     m,
			})
			if err != nil {
				return fmt.Errorf("failed to create scheduler: %w", err)
			}
			sched.Start()
			defer func() {
				<-sched.Stop().Done()
			}()
		}

		gin.SetMode(gin.ReleaseMode)
		srv := api.NewServer(api.Options{
			Ingester: a.ingester,
			Catalog:  a.catalog,
			OPML:     a.importer,
			Tokens:   cfg.Auth.Tokens,
			Logger:   logger,
			Metrics:  m,
			Gatherer: reg,
		})

		logger.WithFields(logrus.Fields{
			"addr":      cfg.HTTP.Addr,
			"backend":   cfg.GetBackend(),
			"scheduler": cfg.Scheduler.Enabled,
			"version":   Version,
		}).Info("nexifeed starting")

		if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		logger.Info("nexifeed stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	serveCmd.Flags().Bool("no-scheduler", false, "disable periodic polling")
	rootCmd.AddCommand(serveCmd)
}
