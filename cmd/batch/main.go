package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dan9191/bank-batch/internal/app"
	"github.com/Dan9191/bank-batch/internal/service"
)

func main() {
	opts, _, err := app.ParseFlags("batch", os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	a, err := app.Build(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	logger := a.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := a.Service.BatchJobs()

	// Dev runs the batch once for the (possibly overridden) base date
	if a.Config.IsDev() {
		logger.Info("Running batch once")
		if err := service.RunOnce(ctx, jobs); err != nil {
			logger.Errorf("Batch failed: %v", err)
			a.Close()
			os.Exit(1)
		}
		logger.Info("Batch finished")
		return
	}

	scheduler := service.NewScheduler(ctx, a.Service, logger)
	if err := scheduler.Start(jobs); err != nil {
		logger.Errorf("Failed to start scheduler: %v", err)
		a.Close()
		os.Exit(1)
	}
	logger.Infof("Batch scheduler started (%s)", a.Config.Env)

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping scheduler")
	<-scheduler.Stop().Done()
	logger.Info("Scheduler stopped gracefully")
}
