package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"classpulse/internal/config"
	"classpulse/internal/credentials"
	"classpulse/internal/database"
	"classpulse/internal/repository"
	"classpulse/internal/service"
)

func main() {
	code := flag.String("code", "", "Session code to export (required)")
	output := flag.String("output", "", "Output file path (default: report_CODE_YYYYMMDD_HHMMSS.json)")
	flag.Usage = printUsage
	flag.Parse()

	if *code == "" {
		fmt.Println("Error: -code flag is required")
		printUsage()
		os.Exit(1)
	}
	sessionCode := credentials.NormalizeCode(*code)

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	participantRepo := repository.NewParticipantRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	presentationRepo := repository.NewPresentationRepository(db)
	teachingRepo := repository.NewTeachingRepository(db)

	// Reports only read, so the session service runs without a feed
	sessions := service.NewSessionService(repository.NewSessionRepository(db), nil, nil)
	reports := service.NewReportService(sessions, participantRepo, feedbackRepo, messageRepo, presentationRepo, teachingRepo)

	handleExport(reports, sessionCode, *output)
}

func handleExport(reports *service.ReportService, code, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("report_%s_%s.json", code, timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := reports.Export(ctx, code, outputPath); err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	fileInfo, err := os.Stat(outputPath)
	if err == nil {
		log.Printf("Export complete! File size: %.1f KB", float64(fileInfo.Size())/1024)
	}
}

func printUsage() {
	fmt.Println("ClassPulse Session Report Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  report -code <CODE> [-output <file>]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -code <CODE>      Session code to export (required)")
	fmt.Println("  -output <file>    Output file path (default: report_CODE_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./classpulse.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
