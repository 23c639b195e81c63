// Command ingestd ingests a batch of documents for a tenant/persona pair:
// triage, extraction, quality analysis, artifact storage, and manifest
// update. The batch report is printed as JSON.
//
// Usage:
//
//	ingestd -config ingestd.yaml -tenant acme -persona ops file1.xlsx file2.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lanewise/ingest/audit"
	"github.com/lanewise/ingest/blob"
	"github.com/lanewise/ingest/dbopen"
	"github.com/lanewise/ingest/docpipe"
	"github.com/lanewise/ingest/ingest"
	"github.com/lanewise/ingest/vision"

	_ "modernc.org/sqlite"
)

func main() {
	var (
		cfgPath = flag.String("config", "ingestd.yaml", "path to YAML config")
		tenant  = flag.String("tenant", "", "tenant identifier")
		persona = flag.String("persona", "default", "persona identifier")
	)
	flag.Parse()

	cfg, err := ingest.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *tenant == "" {
		log.Fatal("-tenant is required")
	}
	if flag.NArg() == 0 {
		log.Fatal("no input files given")
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}
	defer closeStore()

	opts := []ingest.Option{
		ingest.WithBlobStore(store),
		ingest.WithLogger(logger),
		ingest.WithMaxFileSize(cfg.MaxFileBytes()),
	}
	if cfg.AuditDB != "" {
		auditDB, err := dbopen.Open(cfg.AuditDB, dbopen.WithMkdirAll())
		if err != nil {
			log.Fatalf("audit db: %v", err)
		}
		defer auditDB.Close()
		trail, err := audit.NewLogger(auditDB, 1000)
		if err != nil {
			log.Fatalf("audit: %v", err)
		}
		defer trail.Close()
		opts = append(opts, ingest.WithAudit(trail))
	}
	if cfg.Vision.Enabled {
		opts = append(opts,
			ingest.WithVision(vision.New(vision.Config{
				BaseURL:   cfg.Vision.BaseURL,
				Model:     cfg.Vision.Model,
				MaxTokens: cfg.Vision.MaxTokens,
				Timeout:   time.Duration(cfg.Vision.TimeoutSec) * time.Second,
			}, logger)),
			ingest.WithTableEscalation(cfg.Vision.EscalateTables))
	}

	svc, err := ingest.New(opts...)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	files, err := readFiles(flag.Args())
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := ingest.NewQueue(svc, cfg.QueueSize)
	queue.Start(ctx)

	job, err := queue.Submit(ctx, *tenant, *persona, files)
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	result, err := job.Wait(ctx)
	if err != nil {
		log.Fatalf("batch: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStore(cfg *ingest.Config) (blob.Store, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := blob.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := blob.NewFS(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func readFiles(paths []string) ([]docpipe.UploadedFile, error) {
	files := make([]docpipe.UploadedFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		files = append(files, docpipe.UploadedFile{
			Name: name,
			MIME: mimeFor(name),
			Size: int64(len(data)),
			Data: data,
		})
	}
	return files, nil
}

func mimeFor(name string) string {
	switch filepath.Ext(name) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}
