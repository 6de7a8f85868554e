package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cli"
	"tally/internal/log"
	gsheet "tally/internal/sheets/google"
	"tally/internal/storage"
	"tally/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig()
	cli.MustValidate(logger, cfg.ValidateMirror)

	logger.Info("Starting tally-worker")

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid time zone", log.FieldError, err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath, storage.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to open SQLite store", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	mirror, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, gsheet.Credentials{
		JSON: cfg.GoogleServiceAccountJSON,
		File: cfg.GoogleServiceAccountFile,
	}, loc, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = store.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		_ = store.Close()
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(store, mirror, logger)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	shutdown := func(context.Context) {
		stop()
		if err := g.Wait(); err != nil {
			logger.Error("Worker stopped with error", log.FieldError, err)
		}
		if err := bus.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		if err := store.Close(); err != nil {
			logger.Error("SQLite close error", log.FieldError, err)
		}
	}
	sigCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, shutdown)

	// Catch up on anything missed while the worker was down.
	logger.Info("Performing startup mirror")
	if err := syncWorker.SyncAll(gctx); err != nil {
		logger.Error("Startup mirror incomplete", log.FieldError, err)
	}

	g.Go(func() error {
		err := bus.Consume(gctx, amqp.DurableQueue(cfg.AMQPMirrorQueue), syncWorker.HandleChangeMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		syncWorker.RunPeriodic(gctx, cfg.MirrorInterval)
		return nil
	})

	<-gctx.Done()
	if sigCtx.Err() != nil {
		<-done
		logger.Info("Worker stopped gracefully")
		return
	}

	logger.Error("Worker stopped unexpectedly")
	shutdown(context.Background())
	os.Exit(1)
}
