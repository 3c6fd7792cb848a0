package logger_test

import (
	"log/slog"

	"github.com/soundprediction/relato/pkg/logger"
)

func ExampleNewDefaultLogger() {
	// Create a logger with default settings
	log := logger.NewDefaultLogger(slog.LevelDebug)

	// Log different levels
	log.Debug("This is a debug message")
	log.Info("Resolved person against canonical key")
	log.Warn("Duplicate scan exceeded soft time budget")
	log.Error("Store transaction aborted")
}

func ExampleParseLevel() {
	log := logger.NewDefaultLogger(logger.ParseLevel("debug"))

	// Log with attributes
	log.Info("resolving person", "canonical_key", "email:ada@example.com")
	log.Info("merged duplicates", "primary_id", "p1", "duplicate_id", "p2")
	log.Warn("conflict pending review", "fact_type", "profile", "key", "title")
}
