package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"cellqc/adapters/excel"
	"cellqc/adapters/postgres"
	"cellqc/adapters/postgres/migrations"
	"cellqc/internal/analysis"
	"cellqc/internal/api"
	"cellqc/internal/config"
	"cellqc/internal/logging"
	"cellqc/ports"
)

// initDatabase connects and migrates when DATABASE_URL is set. Without it the
// server runs without report storage.
func initDatabase(ctx context.Context, appConfig *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	if !appConfig.Database.Enabled() {
		return nil, nil
	}
	db, err := postgres.Open(ctx, appConfig.Database)
	if err != nil {
		return nil, err
	}
	if err := migrations.NewMigrator(db, logger).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(os.Stderr, appConfig.Logging.Level, appConfig.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	var reports ports.ReportRepository
	if db != nil {
		defer db.Close()
		reports = postgres.NewReportRepository(db)
		log.Println("Report storage enabled")
	} else {
		log.Println("DATABASE_URL not set, reports will not be stored")
	}

	analyzer, err := analysis.New(appConfig.Analysis, logger)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}
	log.Printf("Analysis settings %s, outlier method %s", analyzer.Fingerprint().Short(), analyzer.OutlierMethod())

	reader := excel.NewDataReader(excel.DefaultReaderConfig(), logger)
	server := api.NewServer(analyzer, reports, reader, api.Options{MaxBodyBytes: appConfig.Server.MaxBodyBytes}, logger)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  appConfig.Server.ReadTimeout,
		WriteTimeout: appConfig.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting cellqc server on port %s", appConfig.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}
