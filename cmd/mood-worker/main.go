package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"moodtracker/internal/amqp"
	"moodtracker/internal/backend"
	"moodtracker/internal/cli"
	"moodtracker/internal/config"
	applog "moodtracker/internal/log"
	"moodtracker/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	defer logger.Close()

	logger.Info("Starting mood-worker", "mirror", cfg.MirrorBackend, "queue", cfg.AMQPQueue)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)

	mirrorCfg, err := backend.MirrorFromAppConfig(cfg)
	if err != nil {
		return err
	}
	mirror, err := factory.CreateMirror(ctx, mirrorCfg)
	if err != nil {
		return err
	}

	// The resync reads the table directly; without it the worker only needs the broker.
	var source worker.EntrySource
	if cfg.MirrorResyncOnStart {
		backendCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return err
		}
		backendCfg.AMQPURL = ""
		res, err := factory.CreateBackend(ctx, backendCfg)
		if err != nil {
			return err
		}
		defer res.Cleanup()
		source = res.Store
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	w := worker.NewMirrorWorker(source, mirror)
	if source != nil {
		logger.Info("Performing startup resync", applog.FieldOperation, applog.OpStartup)
		if err := w.StartupResync(ctx); err != nil {
			// The live feed still works; the next resync catches up.
			logger.Error("Startup resync failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeEntryChanges(gctx, w.HandleEntryChanged)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
