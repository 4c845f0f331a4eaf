package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sgoran/roundtrip/internal/broker"
	"github.com/sgoran/roundtrip/internal/config"
	"github.com/sgoran/roundtrip/internal/engine"
	"github.com/sgoran/roundtrip/internal/metrics"
	"github.com/sgoran/roundtrip/internal/output"
	"github.com/sgoran/roundtrip/internal/payload"
	"github.com/sgoran/roundtrip/internal/threshold"
	"github.com/sgoran/roundtrip/internal/throttle"
	"github.com/sgoran/roundtrip/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}

	if cfg.DumpConfig {
		dump, err := cfg.DumpYAML()
		if err != nil {
			return err
		}
		fmt.Print(string(dump))
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	topicSpecs, err := config.ParseTopicSpecs(cfg.ActiveTopics)
	if err != nil {
		return err
	}
	specs := make([]broker.TopicSpec, len(topicSpecs))
	for i, spec := range topicSpecs {
		specs[i] = broker.TopicSpec{
			Name:              spec.Name,
			Partitions:        spec.Partitions,
			ReplicationFactor: spec.ReplicationFactor,
		}
	}
	partitions := broker.ExpandPartitions(specs)

	governor, err := throttle.New(throttle.Config{
		Model:           throttle.Model(cfg.Throttle.Model),
		TargetPerSecond: cfg.TargetMessagesPerSec,
	})
	if err != nil {
		return err
	}

	producerCfg := broker.ClientConfig{
		BootstrapServers: cfg.BootstrapServers,
		Overrides:        cfg.ClientOverrides(cfg.ProducerOverrides),
	}
	consumerCfg := broker.ClientConfig{
		BootstrapServers: cfg.BootstrapServers,
		Overrides:        cfg.ClientOverrides(cfg.ConsumerOverrides),
	}
	adminCfg := broker.ClientConfig{
		BootstrapServers: cfg.BootstrapServers,
	}

	producer, err := broker.NewKafkaProducer(producerCfg)
	if err != nil {
		return err
	}

	var consumer broker.Consumer
	switch cfg.Consumer.Mode {
	case config.ConsumerModeGroup:
		consumer, err = broker.NewGroupConsumer(consumerCfg, cfg.Consumer.GroupID, partitions)
	default:
		consumer, err = broker.NewAssignConsumer(consumerCfg, partitions)
	}
	if err != nil {
		producer.Close()
		return err
	}

	sinks := engine.MultiSink{engine.LogSink{Log: logger}}
	if cfg.StatusFile != "" {
		fileSink, err := output.NewStatusFileSink(cfg.StatusFile)
		if err != nil {
			producer.Close()
			consumer.Close()
			return fmt.Errorf("open status file: %w", err)
		}
		defer func() { _ = fileSink.Close() }()
		sinks = append(sinks, fileSink)
	}

	collector := metrics.NewCollector()

	worker := engine.NewWorker(engine.Options{
		MaxMessages:    cfg.MaxMessages,
		Partitions:     partitions,
		Producer:       producer,
		Consumer:       consumer,
		Governor:       governor,
		ValueGen:       newValueGenerator(cfg.Value),
		Sink:           sinks,
		StatusInterval: cfg.StatusInterval,
		Collector:      collector,
		Logger:         logger,
		Provision: func(ctx context.Context) error {
			return broker.EnsureTopics(ctx, adminCfg, specs, logger)
		},
	})

	if err := worker.Start(ctx); err != nil {
		producer.Close()
		consumer.Close()
		return err
	}

	_, span := tracing.StartRunSpan(ctx, provider.Tracer(), worker.RunID(), cfg.MaxMessages)

	var progress *output.ProgressReporter
	if !cfg.JSONOutput {
		progress = output.NewProgressReporter(collector, progressInterval, os.Stdout)
		progress.Start()
	}

	select {
	case <-worker.Done():
	case <-ctx.Done():
	}
	_ = worker.Stop()
	runErr := worker.Err()

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	stats := collector.Stats(time.Since(collector.StartTime()))
	tracing.EndSpan(span, runErr,
		attribute.Int64("roundtrip.unique_sent", stats.UniqueSent),
		attribute.Int64("roundtrip.unique_received", stats.UniqueReceived),
		attribute.Int64("roundtrip.duplicates", stats.Duplicates),
	)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, stats); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, stats)
	}

	if cfg.ReportFile != "" {
		if err := output.WriteReportFile(cfg.ReportFile, stats); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	return evaluateThresholds(cfg.Thresholds, stats)
}

func newValueGenerator(cfg config.ValueConfig) payload.Generator {
	if cfg.Generator == config.ValueGeneratorUniformRandom {
		return payload.NewUniformRandom(cfg.Size, cfg.Seed)
	}
	return payload.NewConstant(cfg.Size)
}

func evaluateThresholds(raw []string, stats metrics.Stats) error {
	thresholds, err := threshold.ParseMultiple(raw)
	if err != nil {
		return err
	}
	if len(thresholds) == 0 {
		return nil
	}

	failed := 0
	for _, result := range threshold.NewEvaluator(thresholds).Evaluate(stats) {
		fmt.Fprintln(os.Stdout, result.Message)
		if !result.Pass {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d threshold(s) failed", failed)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
