package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go-linkrot/internal/config"
	"go-linkrot/internal/crawl"
	"go-linkrot/internal/logging"
	"go-linkrot/internal/model"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	keywords := flag.String("keywords", "", "comma-separated keywords to look for")
	concurrency := flag.Int("concurrency", 0, "parallel link checks per batch (overrides crawl.max_concurrency)")
	maxPages := flag.Int("max-pages", 0, "stop after this many pages (overrides crawl.max_pages)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] URL\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
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

	report, err := runner.Run(ctx, model.CrawlInput{
		URL:            flag.Arg(0),
		Keywords:       splitKeywords(*keywords),
		MaxConcurrency: *concurrency,
		MaxPages:       *maxPages,
	}, nil)
	if err != nil {
		log.WithError(err).Fatal("crawl failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.WithError(err).Fatal("write report")
	}
	if report.Cancelled {
		os.Exit(130)
	}
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
