package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/wholesale/cmd/wholesale/cli"
	"github.com/odyssey-erp/wholesale/internal/app"
	jobmetrics "github.com/odyssey-erp/wholesale/internal/jobs"
	"github.com/odyssey-erp/wholesale/internal/notify"
	"github.com/odyssey-erp/wholesale/internal/observability"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/workflow"
	"github.com/odyssey-erp/wholesale/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		os.Exit(runCommand(cfg, logger, os.Args[1], os.Args[2:]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn("close backends", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var dispatcher notify.Dispatcher
	var queueClient *jobs.Client
	if cfg.NotifyDispatch {
		queueClient = jobs.NewClient(cfg.AsynqOpts())
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		dispatcher = queueClient
	}

	service := workflow.New(workflow.Options{
		Store:      backends.Store,
		Audit:      backends.Audit,
		Approvals:  backends.Approvals,
		Tracker:    backends.Tracker,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Locale:     cfg.Locale,
	})
	if err := service.Load(ctx); err != nil {
		return fmt.Errorf("load workflow state: %w", err)
	}

	rbacMiddleware := rbac.Middleware{Logger: logger}
	identity := app.NewIdentity(cfg.JWTSecret, cfg.JWTIssuer, logger)

	var jobHandler *jobs.Handler
	var worker *jobs.Worker
	if backends.Redis != nil {
		inspector := asynq.NewInspector(cfg.AsynqOpts())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		scanTask, err := jobs.NewStockScanTask(time.Time{})
		if err != nil {
			return fmt.Errorf("build stock scan task: %w", err)
		}
		scanJob := jobs.NewStockScanJob(service, logger, jobmetrics.NewMetrics(metrics.Registerer()))
		worker, err = jobs.NewWorker(jobs.WorkerConfig{
			RedisOpts:   cfg.AsynqOpts(),
			Logger:      logger,
			Concurrency: 1,
			Queues:      []string{jobs.QueueInventory},
			Handlers: []jobs.TaskHandler{
				{Type: jobs.TaskInventoryStockScan, Handler: scanJob.Handle},
			},
			Cron: []jobs.CronRegistration{
				{Spec: cfg.StockScanCron, Task: scanTask},
			},
		})
		if err != nil {
			return fmt.Errorf("init stock scan worker: %w", err)
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Identity:           identity,
		Metrics:            metrics,
		WorkflowHandler:    workflow.NewHandler(logger, service, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}
	return g.Wait()
}

func runCommand(cfg *app.Config, logger *slog.Logger, name string, args []string) int {
	switch name {
	case "token":
		fs := flag.NewFlagSet("token", flag.ContinueOnError)
		opts := cli.TokenOptions{Stdout: os.Stdout, Stderr: os.Stderr}
		fs.StringVar(&opts.UserID, "user", "", "user id placed in the token subject")
		fs.StringVar(&opts.Name, "name", "", "display name")
		fs.StringVar(&opts.Role, "role", "", "role, e.g. PURCHASE or FINANCE_MANAGER")
		fs.DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON instead of the bare token")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		return cli.TokenCommand(app.NewIdentity(cfg.JWTSecret, cfg.JWTIssuer, logger), opts)
	case "jobs":
		return jobsCommand(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want token or jobs)\n", name)
		return 2
	}
}

func jobsCommand(cfg *app.Config, args []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	helper := cli.NewJobsCLI(cfg.AsynqOpts())
	defer helper.Close()

	if len(args) == 2 && args[0] == "trigger" {
		info, err := helper.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s on %s as %s\n", info.Type, info.Queue, info.ID)
		return 0
	}
	if len(args) == 1 && args[0] == "stats" {
		stats, err := helper.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return 1
		}
		return 0
	}
	if len(args) == 1 && args[0] == "scheduled" {
		tasks, err := helper.ListScheduled(20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		for _, task := range tasks {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
		return 0
	}
	fmt.Fprintln(os.Stderr, "usage: wholesale jobs trigger <task> | wholesale jobs stats | wholesale jobs scheduled")
	return 2
}
