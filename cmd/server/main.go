package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go-linkrot/internal/config"
	"go-linkrot/internal/crawl"
	httppkg "go-linkrot/internal/http"
	"go-linkrot/internal/logging"
	"go-linkrot/internal/repository"
	"go-linkrot/internal/service"
	"go-linkrot/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg := cfg.Crawl.Engine()
	runner := crawl.NewRunner(engineCfg, crawl.NewHTTPFetcher(engineCfg.Fetcher), log)

	var (
		jobs    service.JobRepository = store.NewJobStore()
		reports service.ReportRepository
	)
	memReports := store.NewReportStore()
	reports = memReports
	if cfg.Database.URL != "" {
		repo, err := repository.New(ctx, cfg.Database.URL, log)
		if err != nil {
			log.WithError(err).Fatal("connect to database")
		}
		defer repo.Close(context.Background())
		jobs = repo
		reports = service.NewPersistingWriter(memReports, log, repo)
	}

	svc := service.NewCrawlService(jobs, reports, runner, log)
	httpServer := httppkg.NewServer(svc, log)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Starting server")
		errCh <- httpServer.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
		return
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("crawl jobs did not stop in time")
	}
}
