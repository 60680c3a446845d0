package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"oncare-chatbot-be/internal/bootstrap"
	"oncare-chatbot-be/internal/config"
	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/serverutils"
	"oncare-chatbot-be/pkg/database"

	"github.com/fatih/color"
	"gorm.io/gorm"
)

// ingest loads scraped documents from a JSON Lines file (one document per line) into the index.
func main() {
	file := flag.String("file", "", "path to a .jsonl file of documents")
	flag.Parse()
	if *file == "" {
		color.Red("Usage: ingest -file documents.jsonl")
		os.Exit(2)
	}

	cfg := config.Load()

	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.DefaultPoolConfig(), cfg.Database.LogLevel)
		if err != nil {
			log.Fatalf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	docs, err := readDocuments(*file)
	if err != nil {
		color.Red("Failed to read %s: %v", *file, err)
		os.Exit(1)
	}
	color.Cyan("🚀 Ingesting %d documents from %s\n", len(docs), *file)

	results, err := container.IngestionService.IngestDocuments(context.Background(), docs)
	if err != nil {
		color.Red("Ingestion failed: %v", err)
		os.Exit(1)
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			color.Red("✗ %s: %v", r.Document.SourceURL, r.Err)
		case r.Incomplete:
			color.Yellow("! %s: incomplete", r.Document.SourceURL)
		case r.Stats == nil:
			color.Green("✓ %s", r.Document.SourceURL)
		default:
			color.Green("✓ %s: +%d ~%d =%d -%d", r.Document.SourceURL,
				r.Stats.Inserted, r.Stats.Moved, r.Stats.Unchanged, r.Stats.Deleted)
		}
	}

	color.Cyan("\nDone: %d ok, %d failed", len(results)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func readDocuments(path string) ([]*entity.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []*entity.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var d dto.DocumentDTO
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			color.Yellow("Skipping line %d: %v", line, err)
			continue
		}
		if err := serverutils.ValidateRequest(d); err != nil {
			color.Yellow("Skipping line %d: %v", line, err)
			continue
		}
		docs = append(docs, d.ToEntity())
	}
	return docs, scanner.Err()
}
