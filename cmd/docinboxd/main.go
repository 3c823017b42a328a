package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/async"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/export"
	"github.com/finparse-io/docinbox/internal/importer"
	"github.com/finparse-io/docinbox/internal/inbox"
	"github.com/finparse-io/docinbox/internal/llm/openai"
	"github.com/finparse-io/docinbox/internal/parse"
	"github.com/finparse-io/docinbox/internal/repository"
	"github.com/finparse-io/docinbox/internal/server"
	"github.com/finparse-io/docinbox/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on system env")
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, db, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewLocal(cfg.Storage.LocalPath)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	model := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	parsers := parse.Registry{
		constants.FormatImage:       parse.NewImageParser(model, logger),
		constants.FormatPDF:         parse.NewPDFParser(nil, model, cfg.LLM.MaxTokens, logger),
		constants.FormatSpreadsheet: parse.NewSpreadsheetParser(logger),
	}

	files := repository.NewUploadedFileRepository(db, logger)
	summaries := repository.NewParsedSummaryRepository(db, logger)
	imports := repository.NewImportRepository(db, logger)

	inboxSvc := inbox.NewService(files, summaries, store, parsers, logger)
	queue := async.NewParseQueue(inboxSvc, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ParseTimeout),
	)
	inboxSvc.SetQueue(queue)

	importerSvc := importer.NewService(files, summaries, imports, logger)
	exportSvc := export.NewService(imports, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	server.RegisterRoutes(r, server.NewHandler(inboxSvc, importerSvc, exportSvc, logger))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown interrupted", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
