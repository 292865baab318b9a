package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/signalbot/config"
	"github.com/alejandrodnm/signalbot/internal/adapters/detect"
	"github.com/alejandrodnm/signalbot/internal/adapters/notify"
	"github.com/alejandrodnm/signalbot/internal/adapters/quotes"
	"github.com/alejandrodnm/signalbot/internal/adapters/storage"
	"github.com/alejandrodnm/signalbot/internal/application/batch"
	"github.com/alejandrodnm/signalbot/internal/application/evaluation"
	"github.com/alejandrodnm/signalbot/internal/application/fastpath"
	"github.com/alejandrodnm/signalbot/internal/application/motivation"
	"github.com/alejandrodnm/signalbot/internal/dedup"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ingest"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one pipeline cycle and exit")
	ingestPath := flag.String("ingest", "", "ingest crawled items from a JSON-lines file before running")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("signalbot starting",
		"config", *configPath,
		"interval", cfg.RunInterval(),
		"once", *once,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	sink := notify.NewAsyncSink(256, nil)
	defer sink.Close()
	reporter := notify.NewConsole(*table)

	detector := detect.NewClient(cfg.Detection.BaseURL)
	quoteClient := quotes.NewClient(cfg.Quotes.BaseURL)

	dedupCfg := dedup.DefaultConfig()
	dedupCfg.CrossSourceEnabled = cfg.Dedup.CrossSourceEnabled
	dedupCfg.FuzzyEnabled = cfg.Dedup.FuzzyEnabled
	dedupCfg.LookbackHours = cfg.Dedup.LookbackHours
	dedupCfg.CandidateLimit = cfg.Dedup.CandidateLimit
	dedupCfg.TitleSimilarityThreshold = cfg.Dedup.TitleSimilarityThreshold
	dedupCfg.PhraseOverlapThreshold = cfg.Dedup.PhraseOverlapThreshold
	dedupCfg.MaxKeyPhrases = cfg.Dedup.MaxKeyPhrases
	ingester := ingest.New(dedup.New(dedupCfg, store.Seen(), store.Fingerprints()), store.Signals())

	fastCfg := fastpath.DefaultConfig()
	fastCfg.ConfidenceThreshold = cfg.FastPath.ConfidenceThreshold
	fastCfg.PredictorTTL = cfg.PredictorTTL()
	fastCfg.PredictionTimeframe = cfg.PredictionTimeframe()
	fastPath := fastpath.NewProcessor(fastCfg, store.Predictors(), store.Predictions(), store.Snapshots(), sink)

	batchCfg := batch.DefaultConfig()
	batchCfg.Workers = cfg.Pipeline.Workers
	batchCfg.DetectionTimeout = cfg.DetectionTimeout()
	batchCfg.SignalTTL = cfg.SignalTTL()
	batchCfg.PredictorTTL = cfg.PredictorTTL()
	processor := batch.NewProcessor(batchCfg, store.Signals(), store.Predictors(), detector, fastPath, sink)

	evaluator := evaluation.NewEngine(store.Predictions(), quoteClient)
	stateMachine := motivation.NewStateMachine(store.Portfolios(), domain.ForkType(cfg.Motivation.Fork))
	analyzer := motivation.NewAnalyzer(store.Portfolios(), stateMachine, domain.ForkType(cfg.Motivation.Fork))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *ingestPath != "" {
		if err := ingestFile(ctx, ingester, *ingestPath); err != nil {
			slog.Error("ingest failed", "err", err, "path", *ingestPath)
			os.Exit(1)
		}
	}

	runCycle := func() {
		if _, err := processor.ExpireStale(ctx); err != nil {
			slog.Error("expire sweep failed", "err", err)
		}

		result, err := processor.RunBatchProcessing(ctx)
		if err != nil {
			slog.Error("batch run failed", "err", err)
			return
		}
		if err := reporter.ReportRun(ctx, result); err != nil {
			slog.Warn("report failed", "err", err)
		}

		if n, err := evaluator.CaptureOutcomes(ctx, cfg.Evaluation.BatchLimit); err != nil {
			slog.Error("outcome capture failed", "err", err)
		} else if n > 0 {
			slog.Info("outcomes captured", "count", n)
		}

		evals, err := evaluator.EvaluateResolved(ctx, cfg.Evaluation.BatchLimit)
		if err != nil {
			slog.Error("evaluation sweep failed", "err", err)
		}
		for _, learning := range evaluation.GenerateLearnings(evals) {
			slog.Info("suggested learning",
				"kind", learning.Kind, "evidence", learning.Evidence,
				"description", learning.Description)
		}

		events, err := stateMachine.EvaluateAll(ctx)
		if err != nil {
			slog.Error("motivation sweep failed", "err", err)
		}

		patterns, err := analyzer.AnalyzeAndAdaptAll(ctx)
		if err != nil {
			slog.Error("pattern analysis sweep failed", "err", err)
		}
		for _, pattern := range patterns {
			slog.Info("pattern adaptation applied",
				"analyst", pattern.AnalystID, "pattern", pattern.PatternType,
				"evidence", pattern.EvidenceCount)
		}
		if len(events) > 0 {
			portfolios, err := store.Portfolios().GetAllAnalystPortfolios(ctx, domain.ForkType(cfg.Motivation.Fork))
			if err != nil {
				slog.Error("load portfolios failed", "err", err)
			} else if err := reporter.ReportPortfolios(ctx, portfolios); err != nil {
				slog.Warn("portfolio report failed", "err", err)
			}
		}
	}

	runCycle()
	if *once {
		slog.Info("signalbot stopped cleanly")
		return
	}

	ticker := time.NewTicker(cfg.RunInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("signalbot stopped cleanly")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}

// ingestFile lee items crawleados de un archivo JSON-lines y los ingesta.
// Los duplicados y los items inválidos se loguean y no cortan la carga.
func ingestFile(ctx context.Context, ingester *ingest.Pipeline, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	created, dropped, failed := 0, 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item domain.CrawledItem
		if err := json.Unmarshal(line, &item); err != nil {
			slog.Warn("skipping malformed item", "err", err)
			failed++
			continue
		}
		sig, _, err := ingester.Ingest(ctx, item)
		if err != nil {
			slog.Warn("ingest item failed", "target", item.TargetID, "err", err)
			failed++
			continue
		}
		if sig == nil {
			dropped++
		} else {
			created++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	slog.Info("ingest complete", "created", created, "duplicates", dropped, "failed", failed)
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
