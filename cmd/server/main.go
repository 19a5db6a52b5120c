package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate-go/config"
	"facegate-go/internal/api/handlers"
	"facegate-go/internal/db"
	"facegate-go/internal/integrations/mqtt"
	"facegate-go/internal/integrations/recognizer"
	"facegate-go/internal/logger"
	"facegate-go/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Initialize database connection
	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Info("Database initialization complete.")

	// Enrollment store on disk
	store, err := storage.NewEnrollmentStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize enrollment store: %v", err)
	}

	// External recognizer client
	recClient := recognizer.NewClient(cfg.Recognizer)
	ctx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if ok, err := recClient.Ping(ctx); !ok {
		// The recognizer may still be downloading models; requests will
		// surface the failure per call.
		log.Warnf("Recognizer at %s not reachable yet: %v", cfg.Recognizer.URL, err)
	} else {
		log.Infof("Recognizer reachable at %s", cfg.Recognizer.URL)
	}
	cancelPing()

	// Optional MQTT publisher for verification events
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT)
		if err := publisher.Start(); err != nil {
			log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
			publisher = nil
		} else {
			defer publisher.Stop()
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	// HTTP router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	apiHandler := handlers.NewAPIHandler(db.DB, cfg, recClient, store, publisher)
	apiHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Server stopped.")
}
