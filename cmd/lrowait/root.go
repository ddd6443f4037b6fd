package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/lropoller/internal/application/poller"
	"github.com/ahrav/lropoller/internal/config"
	"github.com/ahrav/lropoller/internal/domain/operation"
	httpadapter "github.com/ahrav/lropoller/internal/infra/adapters/http"
	"github.com/ahrav/lropoller/internal/infra/metrics"
	"github.com/ahrav/lropoller/internal/infra/storage"
	"github.com/ahrav/lropoller/internal/infra/storage/operation/postgres"
	"github.com/ahrav/lropoller/pkg/common"
	"github.com/ahrav/lropoller/pkg/common/logger"
	otelutil "github.com/ahrav/lropoller/pkg/common/otel"
)

type options struct {
	configPath  string
	url         string
	operationID int64
	dsn         string
	name        string
	interval    time.Duration
	timeout     time.Duration
	migrate     bool
	healthAddr  string
	statsviz    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "lrowait",
		Short: "Wait for a long-running operation to finish",
		Long: `lrowait polls a long-running operation until it succeeds or fails.

The operation is located either by its HTTP status URL (--url) or by its id in
the operations table (--operation-id with --dsn or DATABASE_URL). The final
response body, or the stored result, is written to stdout. A failed operation
exits with a non-zero status.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.url, "url", "", "HTTP status URL of the operation")
	flags.Int64Var(&opts.operationID, "operation-id", 0, "id of the operation in the operations table")
	flags.StringVar(&opts.dsn, "dsn", "", "Postgres connection string (overrides DATABASE_URL)")
	flags.StringVar(&opts.name, "name", "Operation", "operation type name used in traces and metrics")
	flags.DurationVar(&opts.interval, "interval", 0, "minimum delay between status checks")
	flags.DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 waits forever)")
	flags.BoolVar(&opts.migrate, "migrate", false, "apply the built-in database migrations (or the config's migrationsSource) before polling")
	flags.StringVar(&opts.healthAddr, "health-addr", "", "serve readiness and liveness probes on this address")
	flags.BoolVar(&opts.statsviz, "statsviz", false, "serve the runtime dashboard on the health address under /debug/statsviz/")
	cmd.MarkFlagsMutuallyExclusive("url", "operation-id")
	cmd.MarkFlagsRequiredTogether("statsviz", "health-addr")
	cmd.MarkFlagsOneRequired("url", "operation-id")

	return cmd
}

func run(cmd *cobra.Command, opts options, stdout, stderr io.Writer) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.Changed("interval") {
		cfg.Poll.Interval = opts.interval
	}
	if flags.Changed("timeout") {
		cfg.Poll.Timeout = opts.timeout
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = opts.dsn
	}
	if flags.Changed("migrate") {
		cfg.Database.RunMigrations = opts.migrate
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.New(stderr, level, cfg.ServiceName, otelutil.GetTraceID)

	if cfg.Telemetry.Enabled {
		_, cleanup, err := otelutil.InitTelemetry(log, otelutil.Config{
			ServiceName:      cfg.ServiceName,
			ExporterEndpoint: cfg.Telemetry.Endpoint,
			Probability:      cfg.Telemetry.SampleRatio,
			Insecure:         true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			cleanup(shutdownCtx)
		}()
	}

	reg, err := metrics.NewRegistry(otelutil.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	tracer := otel.Tracer("github.com/ahrav/lropoller/cmd/lrowait")

	var ready atomic.Bool
	if opts.healthAddr != "" {
		hs := common.NewHealthServer(opts.healthAddr, &ready, log)
		if opts.statsviz {
			if err := hs.EnableStatsviz(); err != nil {
				return err
			}
		}
		hs.Start(ctx)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(shutdownCtx)
		}()
	}

	src, err := newSource(ctx, cfg, opts, log, tracer, reg)
	if err != nil {
		return err
	}
	defer src.close()

	p, err := poller.New(opts.name, src.op, src.initial,
		poller.WithTracer(tracer),
		poller.WithLogger(log),
		poller.WithMetrics(reg.Poller),
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithFailureFactory(src.failures),
		poller.WithAttributes(attribute.String("lro.source", src.kind)),
	)
	if err != nil {
		return err
	}

	if cfg.Poll.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Poll.Timeout)
		defer cancel()
	}

	ready.Store(true)
	log.Info(ctx, "waiting for operation", "source", src.kind, "interval", cfg.Poll.Interval.String())

	resp, err := p.WaitForCompletion(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("operation did not finish within %s: %w", cfg.Poll.Timeout, err)
		}
		return err
	}

	return writeResult(stdout, resp)
}

// source is a configured status source ready to be polled.
type source struct {
	kind     string
	op       operation.Operation
	initial  operation.Response
	failures operation.FailureFactory
	close    func()
}

func newSource(
	ctx context.Context,
	cfg *config.Config,
	opts options,
	log *logger.Logger,
	tracer trace.Tracer,
	reg *metrics.Registry,
) (*source, error) {
	if opts.url != "" {
		client := httpadapter.NewClient(httpadapter.ClientConfig{
			Timeout:      cfg.HTTP.Timeout,
			RetryMax:     cfg.HTTP.RetryMax,
			RetryWaitMin: cfg.HTTP.RetryWaitMin,
			RetryWaitMax: cfg.HTTP.RetryWaitMax,
		}, log, reg.HTTPClient)

		op, err := httpadapter.NewStatusOperation(client, opts.url, log)
		if err != nil {
			return nil, err
		}
		initial := httpadapter.NewResponse(&http.Response{StatusCode: http.StatusAccepted, Header: http.Header{}}, nil)
		return &source{
			kind:     "http",
			op:       op,
			initial:  initial,
			failures: httpadapter.ErrorFactory{},
			close:    func() {},
		}, nil
	}

	if cfg.Database.DSN == "" {
		return nil, errors.New("--operation-id requires --dsn or DATABASE_URL")
	}
	pool, err := storage.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database.RunMigrations {
		if err := storage.Migrate(pool, cfg.Database.MigrationsSource); err != nil {
			pool.Close()
			return nil, err
		}
	}

	store := postgres.NewStore(pool, tracer)
	initial, err := store.FindByID(ctx, opts.operationID)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading operation %d: %w", opts.operationID, err)
	}
	return &source{
		kind:     "postgres",
		op:       store.Operation(opts.operationID),
		initial:  initial,
		failures: operation.DefaultFailureFactory{},
		close:    pool.Close,
	}, nil
}

func writeResult(w io.Writer, resp operation.Response) error {
	switch r := resp.(type) {
	case *httpadapter.Response:
		if len(r.Body()) == 0 {
			return nil
		}
		_, err := fmt.Fprintln(w, string(r.Body()))
		return err
	case *postgres.Record:
		return json.NewEncoder(w).Encode(map[string]any{
			"id":     r.ID,
			"type":   r.Type,
			"status": r.Status,
			"result": r.Result,
		})
	}
	return nil
}
