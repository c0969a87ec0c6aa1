package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"engram/internal/config"
	"engram/internal/handlers"
	"engram/internal/jobs"
	"engram/internal/logging"
	"engram/internal/models"
	"engram/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Engram memory server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Snapshot: %s, Autosave: %s)",
		cfg.Port, cfg.SnapshotPath, cfg.AutosaveInterval)

	// Initialize Prometheus metrics
	metrics := services.InitMetrics()

	// Construct the memory core and restore the last snapshot before any
	// caller-visible operation runs
	memory := services.NewMemoryService(cfg.SnapshotPath, metrics)
	if err := memory.Load(); err != nil {
		log.Fatalf("❌ Failed to load snapshot: %v", err)
	}

	// Log persistence failures surfaced by scheduled autosaves
	memory.Bus.Subscribe("server-log", func(event models.Event) {
		if event.Type == models.EventPersistenceFailed && event.Persistence != nil {
			log.Printf("⚠️  Autosave failed: %s", event.Persistence.Error)
		}
	})

	// Start the autosave job
	var autosaver *jobs.AutoSaver
	if cfg.AutosaveEnabled {
		autosaver = jobs.NewAutoSaver(memory.Engine(), cfg.AutosaveInterval, metrics)
		if err := autosaver.Start(); err != nil {
			log.Fatalf("❌ Failed to start autosave: %v", err)
		}
	} else {
		log.Println("⚠️  Autosave disabled by configuration")
	}

	// Set up HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Engram Memory Server",
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("engram")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "stats": memory.GetMemoryStats()})
	})

	memoryHandler := handlers.NewMemoryHandler(memory)
	memoryHandler.RegisterRoutes(app)

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown: cancel the timer and await one final
	// snapshot before the process exits
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if autosaver != nil {
			if err := autosaver.Stop(); err != nil {
				log.Printf("⚠️ Final snapshot failed: %v", err)
			}
		} else {
			if err := memory.Shutdown(); err != nil {
				log.Printf("⚠️ Final snapshot failed: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
