package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competenest/internal/api"
	"competenest/internal/app/service"
	"competenest/internal/common/security"
	"competenest/internal/domain/repository"
	"competenest/internal/jobs"
	"competenest/internal/notify"
	"competenest/internal/platform/config"
	"competenest/internal/platform/database"
	"competenest/internal/platform/mail"
	"competenest/internal/platform/queue"
	"competenest/internal/platform/storage"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	if err := database.Migrate(context.Background()); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	fmt.Println("Database connected and migrated.")

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()
	fmt.Println("Redis connected.")

	// 5. Initialize Object Storage
	store, err := storage.Connect()
	if err != nil {
		log.Fatalf("Object storage connection failed: %v", err)
	}

	// 6. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	problemRepo := repository.NewPgProblemRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)

	// 7. Initialize Notification Hub
	hub := notify.NewHub()

	// 8. Initialize Job Store & Lifecycle Worker
	jobStore := jobs.NewStore(queue.RDB, config.AppConfig.JobPollInterval, config.AppConfig.JobPromoteBatch)
	lifecycleWorker := jobs.NewLifecycleWorker(contestRepo, problemRepo, mail.New(), config.AppConfig.FrontendURL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go jobStore.Run(workerCtx, lifecycleWorker.Handlers())
	fmt.Println("Lifecycle worker started.")

	// 9. Initialize Services
	leaderboardService := service.NewLeaderboardService(contestRepo, hub)
	aggregationService := service.NewAggregationService(
		database.DB, submissionRepo, problemRepo, userRepo,
		leaderboardService, hub, config.AppConfig.AggregationTimeout,
	)
	contestService := service.NewContestService(database.DB, contestRepo, problemRepo, jobStore)
	submissionService := service.NewSubmissionService(
		database.DB, submissionRepo, problemRepo, contestRepo,
		store, config.AppConfig.CallbackBaseURL,
	)

	// 10. Initialize Router & HTTP Server
	router := api.NewRouter(submissionService, contestService, leaderboardService, aggregationService, hub)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop

	log.Println("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and worker stopped gracefully.")
}
