package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/insurance-relay/internal/config"
	"github.com/imrishuroy/insurance-relay/internal/directory"
	"github.com/imrishuroy/insurance-relay/internal/health"
	"github.com/imrishuroy/insurance-relay/internal/relay"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Insurance enrichment relay",
		Long:          "relay moves patient records from an input queue to an output queue, adding insurance policy fields on the way.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("RELAY_CONFIG"), "path to a YAML config file")

	// setup loads config and the logger for every subcommand.
	setup := func() (config.Config, *zap.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, nil, err
		}
		logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return cfg, nil, err
		}
		return cfg, logger, nil
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll the input queue on a fixed interval until terminated",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				return runDaemon(cmd.Context(), cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single cycle and print its outcome",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				return runOnce(cmd.Context(), cfg, logger, cmd)
			},
		},
		&cobra.Command{
			Use:   "lambda",
			Short: "Serve as an SQS-triggered AWS Lambda function",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				a, err := newApp(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				lambda.Start(NewLambdaHandler(a.pipeline, logger).Handle)
				return nil
			},
		},
		newDirectoryCmd(setup),
	)
	return rootCmd
}

func runDaemon(parent context.Context, cfg config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	sched, err := a.scheduler()
	if err != nil {
		return err
	}

	logger.Info("relay started",
		zap.String("input_queue", cfg.InputQueueURL),
		zap.String("output_queue", cfg.OutputQueueURL),
		zap.String("directory", cfg.Directory.Source))
	logger.Info("listening for messages", zap.Duration("interval", cfg.PollInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.HealthAddr != "" {
		router := health.NewRouter(health.HandlerConfig{
			Stats:       a.stats,
			Scheduler:   sched,
			InputQueue:  cfg.InputQueueURL,
			OutputQueue: cfg.OutputQueueURL,
		})
		g.Go(func() error { return health.Serve(gctx, cfg.HealthAddr, router, logger) })
	}

	err = g.Wait()
	logger.Info("relay stopped")
	return err
}

func runOnce(parent context.Context, cfg config.Config, logger *zap.Logger, cmd *cobra.Command) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, cfg.CycleTimeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	res := a.pipeline.RunOnce(ctx)
	return printResult(cmd, res)
}

func printResult(cmd *cobra.Command, res relay.Result) error {
	out := map[string]string{"outcome": res.Outcome.String()}
	if res.MessageID != "" {
		out["message_id"] = res.MessageID
	}
	if res.PatientID != "" {
		out["patient_id"] = res.PatientID
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	if err := enc.Encode(out); err != nil {
		return err
	}
	switch res.Outcome {
	case relay.OutcomeDelivered, relay.OutcomeNoMessage:
		return nil
	default:
		return fmt.Errorf("cycle ended with %s", res.Outcome)
	}
}

type setupFunc func() (config.Config, *zap.Logger, error)

func newDirectoryCmd(setup setupFunc) *cobra.Command {
	dirCmd := &cobra.Command{Use: "directory", Short: "Insurance directory commands"}

	var table string
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON, XML or YAML insurance database into the DynamoDB directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if table == "" {
				table = cfg.Directory.Table
			}
			if table == "" {
				return fmt.Errorf("no table: pass --table or set directory.table")
			}
			entries, err := directory.LoadFile(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			n, err := directory.NewDynamoDirectory(a.clients.DynamoDB, table).Import(cmd.Context(), entries)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d/%d entries into %s\n", n, len(entries), table)
			return err
		},
	}
	importCmd.Flags().StringVar(&table, "table", "", "DynamoDB table (defaults to directory.table)")

	lookupCmd := &cobra.Command{
		Use:   "lookup <patient-id>",
		Short: "Look up a patient in the configured directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			info, found, err := a.directory.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("patient %s not found", args[0])
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
		},
	}

	dirCmd.AddCommand(importCmd, lookupCmd)
	return dirCmd
}
