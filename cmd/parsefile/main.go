// parsefile runs the extraction pipeline on one local document and
// prints the canonical payload, without touching a database. Useful for
// prompt and validator iteration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/llm/openai"
	"github.com/finparse-io/docinbox/internal/parse"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if len(os.Args) < 2 {
		logger.Error("usage: parsefile <path> [mime-type]")
		os.Exit(2)
	}
	path := os.Args[1]

	mimeType := ""
	if len(os.Args) >= 3 {
		mimeType = os.Args[2]
	} else {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mimeType == "" {
		logger.Error("cannot determine mime type, pass it as the second argument", "path", path)
		os.Exit(2)
	}

	format, err := parse.Classify(mimeType)
	if err != nil {
		logger.Error("unsupported document", "mime_type", mimeType, "error", err)
		os.Exit(2)
	}
	if format != constants.FormatSpreadsheet && os.Getenv("OPENAI_API_KEY") == "" {
		logger.Error("OPENAI_API_KEY env var is required for image and pdf parsing")
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()
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

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	start := time.Now()
	out, err := parsers[format].Parse(ctx, parse.Input{
		FileID:   uuid.New(),
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		logger.Error("parse failed", "path", path, "error", err)
		os.Exit(1)
	}

	logger.Info("parse ok",
		"doc_type", out.DocType,
		"parser_version", out.ParserVersion,
		"confidence", out.Confidence,
		"tokens_in", out.Usage.InputTokens,
		"tokens_out", out.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var pretty any
	if err := json.Unmarshal(out.Payload, &pretty); err != nil {
		logger.Error("payload decode", "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pretty); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
