package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ncbot/internal/recast"
	"ncbot/internal/runlock"
	"ncbot/internal/worker"
	"ncbot/pkg/config"
	"ncbot/pkg/logging"
	"ncbot/pkg/middleware"
	"ncbot/pkg/monitoring"
	"ncbot/pkg/server"
	"ncbot/pkg/version"
)

func newServeCmd() *cobra.Command {
	var (
		dryRun   bool
		interval time.Duration
		port     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recast engine on a schedule and expose health, metrics and a manual trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			a, err := newApp(ctx, logger, appOptions{dryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("interval") {
				interval = config.GetEnvDuration("RUN_INTERVAL", interval)
			}
			svc := newService(a, interval, logger)

			srvCfg := server.DefaultConfig(serviceName, "8080")
			if cmd.Flags().Changed("port") {
				srvCfg.Port = port
			}
			router := svc.router()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				svc.scheduler.Start(gctx)
				return nil
			})
			g.Go(func() error {
				return server.Start(gctx, srvCfg, router, logger)
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate and log recasts without sending them")
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between scheduled runs (env RUN_INTERVAL)")
	cmd.Flags().StringVar(&port, "port", "8080", "HTTP port (env PORT)")
	return cmd
}

// service exposes the scheduler over HTTP.
type service struct {
	app       *app
	scheduler *worker.Scheduler
	interval  time.Duration
	logger    logging.Logger

	mu   sync.Mutex
	last *recast.Summary
}

func newService(a *app, interval time.Duration, logger logging.Logger) *service {
	s := &service{app: a, interval: interval, logger: logger}
	s.scheduler = worker.NewScheduler(s.run, interval, logger)
	return s
}

func (s *service) run(ctx context.Context) error {
	sum, err := s.app.runOnce(ctx)
	if errors.Is(err, runlock.ErrLocked) {
		s.logger.Info("Another replica holds the run lock; skipping")
		return nil
	}
	if sum != nil {
		s.mu.Lock()
		s.last = sum
		s.mu.Unlock()
	}
	return err
}

func (s *service) lastSummary() *recast.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *service) router() *gin.Engine {
	hc := monitoring.NewHealthChecker(serviceName, version.Version)
	if s.app.db != nil {
		hc.AddCheck("database", monitoring.DatabaseHealthCheck(s.app.db))
	}
	if s.app.kafka != nil {
		hc.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(s.app.kafka.Client()))
	}
	hc.AddCheck("last_success", monitoring.LastSuccessHealthCheck(s.scheduler.LastSuccess, s.scheduler.LastError, 3*s.interval))

	r := server.SetupServiceRouter(s.logger, serviceName, hc, s.app.metrics)
	r.GET("/status", s.handleStatus)
	r.POST("/run", s.handleTrigger)
	return r
}

func (s *service) handleStatus(c *gin.Context) {
	body := gin.H{
		"mode":     s.app.engine.Mode().String(),
		"interval": s.interval.String(),
		"runs":     s.scheduler.Runs(),
	}
	if at := s.scheduler.LastRun(); !at.IsZero() {
		body["last_run_at"] = at
	}
	if at := s.scheduler.LastSuccess(); !at.IsZero() {
		body["last_success_at"] = at
	}
	if err := s.scheduler.LastError(); err != nil {
		body["last_error"] = err.Error()
	}
	if sum := s.lastSummary(); sum != nil {
		body["last_summary"] = sum
	}
	c.JSON(http.StatusOK, body)
}

func (s *service) handleTrigger(c *gin.Context) {
	log := middleware.GetContextLogger(c, s.logger)
	err := s.scheduler.TriggerAsync(context.WithoutCancel(c.Request.Context()), nil)
	if errors.Is(err, worker.ErrBusy) {
		log.Info("Run requested while another is in progress")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	log.Info("Run triggered over HTTP")
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
