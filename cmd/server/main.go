package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/api"
	"github.com/JustJay7/court-case-monitor/internal/blob"
	"github.com/JustJay7/court-case-monitor/internal/cache"
	"github.com/JustJay7/court-case-monitor/internal/classifier"
	"github.com/JustJay7/court-case-monitor/internal/config"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/extraction"
	"github.com/JustJay7/court-case-monitor/internal/fetcher"
	"github.com/JustJay7/court-case-monitor/internal/guard"
	"github.com/JustJay7/court-case-monitor/internal/identifier"
	"github.com/JustJay7/court-case-monitor/internal/intake"
	"github.com/JustJay7/court-case-monitor/internal/monitor"
	"github.com/JustJay7/court-case-monitor/internal/notify"
	"github.com/JustJay7/court-case-monitor/internal/pipeline"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/internal/scraper"
	"github.com/JustJay7/court-case-monitor/internal/server"
	"github.com/JustJay7/court-case-monitor/internal/tasks"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

func main() {
	var (
		migrate    bool
		sweep      bool
		importFile string
	)
	flag.BoolVar(&migrate, "migrate", false, "Run database migrations and exit")
	flag.BoolVar(&sweep, "sweep", false, "Run one monitoring sweep and exit")
	flag.StringVar(&importFile, "import", "", "Register the cases listed in a CSV file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	target := cfg.DatabasePath
	if cfg.DatabaseDriver == "postgres" {
		target = cfg.DatabaseDSN
	}
	db, err := database.Initialize(cfg.DatabaseDriver, target)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to access database handle", "error", err)
	}

	if migrate {
		log.Info("Database migrations completed successfully")
		return
	}

	districts, err := config.LoadDistricts(cfg.DistrictsFile)
	if err != nil {
		log.Fatal("Failed to load districts", "error", err)
	}

	store := repository.New(db, time.Now)
	if err := store.Cases.SeedDistricts(districts); err != nil {
		log.Fatal("Failed to seed districts", "error", err)
	}
	codec := identifier.NewCodec(cfg.StateCode, districts, time.Now)
	registrar := intake.New(store.Cases, codec)

	if importFile != "" {
		os.Exit(runImport(registrar, importFile, log))
	}

	blobs, err := blob.Open(cfg.BlobBackend, cfg.BlobPath)
	if err != nil {
		log.Fatal("Failed to open document store", "error", err)
	}

	model := classifier.NewChatClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)
	source := scraper.NewScraper(cfg, model, log.With("component", "scraper"))
	snapshots := cache.NewCache(cfg.CacheSize, cfg.CacheTTL)

	retrieval := fetcher.NewStage(store.Orders, blobs,
		fetcher.NewHTTPSource(cfg.FetchAPIURL, cfg.FetchAPIKey, cfg.UserAgent, cfg.RetrievalTimeout),
		fetcher.Options{
			AllowedDomains: cfg.AllowedDomains,
			MinBytes:       cfg.MinDocumentBytes,
			MaxRetries:     cfg.MaxRetrievalRetries,
		}, log.With("stage", "retrieval"))
	extract := extraction.NewStage(store.Orders, blobs,
		extraction.NewOCRClient(cfg.OCRAPIURL, cfg.OCRAPIKey, cfg.OCRModel),
		log.With("stage", "extraction"))
	classify := classifier.NewStage(store.Orders, store.Cases, store.Artifacts, model, classifier.Options{
		MaxChars: cfg.ClassifyMaxChars,
		Backoff:  classifier.Backoff{Attempts: cfg.ClassifyMaxAttempts, Base: cfg.ClassifyBaseDelay},
	}, log.With("stage", "classification"))

	lifecycle := monitor.NewLifecycle(store.Windows, cfg.MonitorWindowDays, time.Now, cfg.Timezone, log.With("component", "lifecycle"))

	service := pipeline.New(pipeline.Deps{
		Store:      store,
		Codec:      codec,
		Source:     source,
		Cache:      snapshots,
		Retrieval:  retrieval,
		Extraction: extract,
		Classifier: classify,
		Windows:    lifecycle,
	}, pipeline.Options{
		ItemDelay:  cfg.PipelineItemDelay,
		MaxRetries: cfg.MaxRetrievalRetries,
		Location:   cfg.Timezone,
	}, log.With("component", "pipeline"))

	var mailer notify.Mailer
	if cfg.EmailAPIKey != "" {
		mailer = notify.NewAPIMailer(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	}
	digest := monitor.NewDigest(store, mailer, cfg.NotifyEmail, time.Now, cfg.Timezone, log.With("component", "digest"))

	lock := guard.NewSchedulerLock(cfg.SchedulerLockTimeout, time.Now)
	scheduler := monitor.NewScheduler(lifecycle, store.Windows, store.Cases, service, lock, digest,
		monitor.Options{ItemDelay: cfg.MonitorItemDelay}, log.With("component", "monitor"))

	closers := []io.Closer{source, blobs, sqlDB}

	if sweep {
		code := runSweep(scheduler, log)
		for _, c := range closers {
			c.Close()
		}
		os.Exit(code)
	}

	runner := tasks.NewRunner(store.Tasks, 64, time.Now, log.With("component", "tasks"))
	if _, err := runner.Recover(); err != nil {
		log.Fatal("Failed to recover interrupted tasks", "error", err)
	}

	srv := server.New(cfg, api.Deps{
		DB:        db,
		Store:     store,
		Intake:    registrar,
		Pipeline:  service,
		Scheduler: scheduler,
		Tasks:     runner,
		Cache:     snapshots,
		Lock:      lock,
	}, api.Limiters{
		General: guard.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow, time.Now),
		Heavy:   guard.NewRateLimiter(cfg.HeavyRateLimit, cfg.HeavyRateWindow, time.Now),
	}, closers, log)

	log.Info("Starting Court Case Monitor",
		"host", cfg.Host,
		"port", cfg.Port,
		"state", cfg.StateCode,
		"districts", len(districts),
	)

	if err := srv.Run(); err != nil {
		log.Fatal("Server failed to start", "error", err)
	}
}

func runImport(registrar *intake.Service, path string, log *logger.Logger) int {
	f, err := os.Open(path)
	if err != nil {
		log.Error("Failed to open import file", "path", path, "error", err)
		return 1
	}
	defer f.Close()

	summary, err := registrar.Import(f)
	if err != nil {
		log.Error("Import failed", "path", path, "error", err)
		return 1
	}
	fmt.Println(summary.String())
	if summary.Failed > 0 {
		return 2
	}
	return 0
}

func runSweep(scheduler *monitor.Scheduler, log *logger.Logger) int {
	report, err := scheduler.Sweep(context.Background())
	if err != nil {
		log.Error("Sweep failed", "error", err)
		return 1
	}
	log.Info("Sweep completed",
		"expired", report.Expired,
		"checked", report.Checked,
		"found", report.Found,
		"failed", report.Failed,
		"digest_sent", report.DigestSent,
	)
	return 0
}
