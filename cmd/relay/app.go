package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/insurance-relay/internal/audit"
	"github.com/imrishuroy/insurance-relay/internal/aws"
	"github.com/imrishuroy/insurance-relay/internal/config"
	"github.com/imrishuroy/insurance-relay/internal/directory"
	"github.com/imrishuroy/insurance-relay/internal/metrics"
	"github.com/imrishuroy/insurance-relay/internal/relay"
	"github.com/imrishuroy/insurance-relay/internal/scheduler"
)

// app is the wired relay: queues, directory, audit log and pipeline.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	clients   *aws.AWSClients
	directory directory.Directory
	pipeline  *relay.Pipeline
	stats     *metrics.Stats
	observers []scheduler.Observer
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	clients, err := aws.NewAWSClients(ctx, aws.Options{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
	if err != nil {
		return nil, fmt.Errorf("failed to init aws clients: %w", err)
	}
	return assemble(cfg, logger, clients)
}

// assemble is newApp without loading AWS config, so tests can inject clients.
func assemble(cfg config.Config, logger *zap.Logger, clients *aws.AWSClients) (*app, error) {
	dir, err := buildDirectory(cfg.Directory, clients)
	if err != nil {
		return nil, err
	}

	input := aws.NewQueue(clients.SQS, cfg.InputQueueURL)
	input.VisibilityTimeout = cfg.VisibilityTimeout

	output := aws.NewQueue(clients.SQS, cfg.OutputQueueURL)
	output.FIFO = cfg.FIFO(output.FIFO)

	p := relay.NewPipeline(relay.Deps{
		Input:     input,
		Output:    output,
		Directory: dir,
		Audit:     audit.NewFileLog(cfg.AuditLog, logger),
		Logger:    logger,
	}, cfg.LongPollWait)

	stats := metrics.NewStats()
	observers := []scheduler.Observer{stats}
	if cfg.Metrics.Namespace != "" {
		observers = append(observers, metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, logger))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		clients:   clients,
		directory: dir,
		pipeline:  p,
		stats:     stats,
		observers: observers,
	}, nil
}

func buildDirectory(cfg config.Directory, clients *aws.AWSClients) (directory.Directory, error) {
	var dir directory.Directory
	switch cfg.Source {
	case config.SourceFile:
		dir = directory.NewFileDirectory(cfg.Path)
	case config.SourceDynamoDB:
		dir = directory.NewDynamoDirectory(clients.DynamoDB, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown directory source %q", cfg.Source)
	}
	if cfg.CacheTTL > 0 {
		dir = directory.NewCached(dir, cfg.CacheTTL)
	}
	return dir, nil
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.pipeline, scheduler.Options{
		Interval:     a.cfg.PollInterval,
		CycleTimeout: a.cfg.CycleTimeout,
		RunOnStart:   a.cfg.RunOnStart,
		Logger:       a.logger,
		Observers:    a.observers,
	})
}
