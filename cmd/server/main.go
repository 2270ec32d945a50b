package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/cosmescan/backend/internal/analysis"
	"github.com/cosmescan/backend/internal/config"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/ocr"
	"github.com/cosmescan/backend/internal/pipeline"
	"github.com/cosmescan/backend/internal/server"
	"github.com/cosmescan/backend/internal/storage"
	"github.com/cosmescan/backend/internal/warehouse"
)

func main() {
	_ = godotenv.Load() // Load .env file if it exists

	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	zl, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer zl.Sync()

	ctx := context.Background()
	creds := cfg.Analysis.CredentialsFile

	blobs, err := storage.NewGCSBlobs(ctx, cfg.Storage.Bucket, creds, zl)
	if err != nil {
		zl.Fatal("failed to open blob store", "error", err)
	}
	defer blobs.Close()

	extractor, err := ocr.NewVisionExtractor(ctx, creds, zl)
	if err != nil {
		zl.Fatal("failed to create text extractor", "error", err)
	}
	defer extractor.Close()

	engine, err := analysis.NewVertexEngine(ctx, *cfg, zl)
	if err != nil {
		zl.Fatal("failed to create evaluation engine", "error", err)
	}
	defer engine.Close()

	store, err := warehouse.New(ctx, cfg.Warehouse, creds, zl)
	if err != nil {
		zl.Fatal("failed to open warehouse", "error", err)
	}
	defer store.Close()

	timeout := time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second
	analyzer := pipeline.New(blobs, extractor, engine, store, timeout, zl)

	srv := server.New(analyzer, zl)
	if err := srv.Start(cfg.Server.Port); err != nil {
		zl.Fatal("server stopped", "error", err)
	}
}
