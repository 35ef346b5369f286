package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"symptom-tracker/internal/config"
	"symptom-tracker/internal/illness"
	"symptom-tracker/internal/infermedica"
	"symptom-tracker/internal/platform/logger"
	"symptom-tracker/internal/report"
	"symptom-tracker/internal/symptoms"
	"symptom-tracker/internal/user"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "symptom-tracker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 1. Infrastructure
	db, err := connectDB(cfg.Database.URL, log)
	if err != nil {
		log.Fatal("could not connect to database", zap.Error(err))
	}
	defer db.Close()

	runMigrations(cfg.Database.MigrationsPath, cfg.Database.URL, log)

	// 2. Clients
	diagClient := infermedica.NewClient(
		cfg.Infermedica.BaseURL,
		cfg.Infermedica.AppID,
		cfg.Infermedica.AppKey,
		time.Duration(cfg.Infermedica.TimeoutSeconds)*time.Second,
		log.Named("infermedica"),
	)

	catalog := symptoms.NewCatalog(diagClient, log.Named("catalog"))
	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := catalog.Refresh(loadCtx); err != nil {
		// The server still boots with an empty catalog; the refresh
		// endpoint can retry later.
		log.Warn("initial symptom catalog load failed", zap.Error(err))
	}
	cancel()

	// 3. Services
	userRepo := user.NewRepository(db)
	userSvc := user.NewService(userRepo, log.Named("user"))

	illnessRepo := illness.NewRepository(db)
	pipeline := illness.NewPipeline(illnessRepo, diagClient, cfg.Diagnosis.Concurrency, log.Named("pipeline"))
	illnessSvc := illness.NewService(illnessRepo, pipeline, userSvc, log.Named("illness"))

	reportSvc := report.NewService(log.Named("report"))

	userHandler := user.NewHandler(userSvc)
	illnessHandler := illness.NewHandler(illnessSvc, diagClient, catalog, reportSvc)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		user.RegisterRoutes(r, userHandler)
		illness.RegisterRoutes(r, illnessHandler)
	})

	addr := ":" + cfg.HTTP.Port
	log.Info("server starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func connectDB(url string, log *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", url)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			log.Info("connected to database")
			return db, nil
		}
		log.Info("waiting for database", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

func runMigrations(sourceURL, dbURL string, log *zap.Logger) {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		log.Error("migration init failed", zap.Error(err))
		return
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Error("migration up failed", zap.Error(err))
		return
	}
	log.Info("migrations applied")
}
