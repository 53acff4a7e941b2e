package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FrederickIge/sentence-samurai-backend/api"
	"github.com/FrederickIge/sentence-samurai-backend/internal/auth"
	"github.com/FrederickIge/sentence-samurai-backend/internal/db"
	"github.com/FrederickIge/sentence-samurai-backend/internal/jobs"
	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/ocr"
	"github.com/FrederickIge/sentence-samurai-backend/internal/storage"
)

func main() {
	// Initialize JWT
	if err := auth.Init(); err != nil {
		log.Printf("Warning: %v", err)
		log.Println("Running without authentication (set JWT_SECRET to enable)")
	} else {
		log.Println("JWT authentication initialized")
	}

	// Initialize database connection pool
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running in OCR-only mode (no persistence)")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Artifacts will only be served from memory")
	} else {
		log.Println("MinIO storage initialized")
	}

	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Build the OCR engine
	engine, err := ocr.New(config.OCR)
	if err != nil {
		log.Fatalf("Failed to create OCR engine: %v", err)
	}
	if err := engine.Available(); err != nil {
		log.Printf("Warning: OCR engine %s not ready: %v", engine.Name(), err)
	}

	// Create the job pipeline and API handler
	store := jobs.NewStore()
	runner := jobs.NewRunner(engine, store, *config)
	handler := api.NewHandler(config, runner, store)
	router := handler.SetupRoutes()

	// Wrap router with JWT middleware (skips /health and /api/token)
	protectedRouter := auth.JWTMiddleware(router)

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting Manga OCR Service v%s on %s", api.Version, addr)
	log.Printf("OCR Engine: %s (device: %s)", engine.Name(), engine.Device())
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Auth: %v", auth.Enabled())
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/run                  - Queue an OCR job", addr)
	log.Printf("  POST http://%s/runsync              - Run an OCR job synchronously", addr)
	log.Printf("  GET  http://%s/job/{id}             - Poll job status", addr)
	log.Printf("  GET  http://%s/job/{id}/download    - Download job artifact", addr)
	log.Printf("  DELETE http://%s/job/{id}           - Delete a job", addr)
	log.Printf("  GET  http://%s/jobs                 - List jobs", addr)
	log.Printf("  GET  http://%s/stats                - Service statistics", addr)
	log.Printf("  GET  http://%s/health               - Health check", addr)
	log.Printf("  POST http://%s/api/token            - Exchange API key for JWT", addr)

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	var config models.Config

	// Read config file; a missing file means env vars and defaults only
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if engine := os.Getenv("OCR_ENGINE"); engine != "" {
		config.OCR.Engine = engine
	}
	if binary := os.Getenv("MOKURO_BIN"); binary != "" {
		config.OCR.Binary = binary
	}
	if language := os.Getenv("OCR_LANGUAGE"); language != "" {
		config.OCR.Language = language
	}
	if cacheDir := os.Getenv("MODEL_CACHE_DIR"); cacheDir != "" {
		config.OCR.CacheDir = cacheDir
	}
	if os.Getenv("OCR_OFFLINE") == "true" {
		config.OCR.Offline = true
	}
	if os.Getenv("FORCE_CPU") == "true" {
		config.OCR.ForceCPU = true
	}

	config.ApplyDefaults()
	return &config, nil
}
