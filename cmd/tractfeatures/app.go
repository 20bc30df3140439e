package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/formats/columnar"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/metrics"
	"github.com/wjdataeng/tractfeatures/pkg/observability"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// skipSetup marks commands that run without configuration
const skipSetup = "skip-setup"

type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	timeout    time.Duration
	cpuProfile string
	memProfile string
}

// app holds what every subcommand shares
type app struct {
	flags         globalFlags
	cfg           *config.Config
	resolver      *storage.Resolver
	datasets      *dataset.Client
	shutdownTrace func(context.Context) error
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}

	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		cfg.Observability.LogLevel = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.Observability.LogFormat = a.flags.logFormat
	}
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return err
	}

	tracing := observability.DefaultConfig()
	tracing.Enabled = cfg.Observability.Tracing
	tracing.SamplingRate = cfg.Observability.TracingSampleRate
	tracing.ServiceVersion = version
	shutdown, err := observability.Initialize(tracing)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.shutdownTrace = shutdown
	a.resolver = storage.NewResolver(storage.Options{
		Region:             cfg.Storage.Region,
		GCSCredentialsFile: cfg.Storage.GCSCredentialsFile,
		UploadPartSize:     cfg.Storage.UploadPartSizeMB * 1024 * 1024,
		UploadConcurrency:  cfg.Storage.UploadConcurrency,
	})
	writer := columnar.DefaultWriterConfig()
	if cfg.Storage.Compression != "" {
		writer.Compression = cfg.Storage.Compression
	}
	a.datasets = dataset.New(a.resolver, writer)
	return nil
}

func (a *app) close() {
	if a.resolver != nil {
		if err := a.resolver.Close(); err != nil {
			logger.Get().Warn("failed to close storage clients", zap.Error(err))
		}
	}
	if a.shutdownTrace != nil {
		_ = a.shutdownTrace(context.Background())
	}
	_ = logger.Sync()
}

// run executes one job with signal handling, the global timeout, the job
// duration metric and a metrics push at exit
func (a *app) run(cmd *cobra.Command, job string, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if a.flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.flags.timeout)
		defer cancel()
	}

	prof := &profiler{cpuFile: a.flags.cpuProfile, memFile: a.flags.memProfile}
	if err := prof.start(); err != nil {
		return err
	}
	defer prof.stop()

	runID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.JobKey, job)
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := logger.WithContext(ctx)

	ctx, span := observability.NewJobTracer(job).StartSpan(ctx, "run")
	timer := metrics.NewTimer(job)
	log.Info("job started")

	err := fn(ctx)
	span.RecordError(err)
	span.End()

	elapsed := timer.Stop()
	metrics.JobDuration.WithLabelValues(job, metrics.Status(err)).Observe(elapsed.Seconds())
	if err != nil {
		log.Error("job failed",
			zap.Duration("duration", elapsed),
			zap.String("error_type", string(errors.TypeOf(err))),
			zap.Any("details", errors.DetailsOf(err)),
			zap.Error(err))
	} else {
		log.Info("job finished", zap.Duration("duration", elapsed))
	}

	// the push gets its own deadline so a cancelled job still reports
	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if perr := metrics.Push(pushCtx, a.cfg.Observability.PushgatewayURL, "tractfeatures_"+job); perr != nil {
		log.Warn("metrics push failed", zap.Error(perr))
	}
	return err
}
