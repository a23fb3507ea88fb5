package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"meetingmind/internal/config"
	"meetingmind/internal/database"
	"meetingmind/internal/handlers"
	"meetingmind/internal/jobs"
	"meetingmind/internal/logging"
	"meetingmind/internal/middleware"
	"meetingmind/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting MeetingMind Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabasePath)

	// Initialize SQLite database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Initialize Prometheus metrics
	services.InitMetrics()

	// Pick the KV store: Redis when configured, in-process otherwise
	var kvStore services.Store
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisService.Close()
		kvStore = redisService
	} else {
		log.Println("⚠️  REDIS_URL not set, using in-process KV store (single instance only)")
		kvStore = services.NewMemoryStore()
	}

	cacheService := services.NewCacheService(kvStore)
	rateLimiter := services.NewRateLimiter(kvStore)

	// Initialize the LLM capability and the extraction pipeline (optional:
	// the browse API works without a provider)
	var insightService *services.InsightService
	providersConfig, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		log.Printf("⚠️  No LLM providers loaded (%v) — insight extraction disabled", err)
	} else {
		llmService, err := services.NewLLMService(providersConfig)
		if err != nil {
			log.Printf("⚠️  %v — insight extraction disabled", err)
		} else {
			insightService = services.NewInsightService(db, llmService, cfg.ExtractionRPS, cfg.ExtractionBatchSize)
			go startProvidersFileWatcher(cfg.ProvidersFile, llmService)
		}
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "MeetingMind v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // workbook exports can be slow
		BodyLimit:    5 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("meetingmind")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Rate limit presets
	presets := middleware.LoadRateLimitPresets(cfg.RateLimitsFile)
	log.Printf("🛡️  [RATE-LIMIT] Presets: standard=%d/min, strict=%d/min, search=%d/min, export=%d/hour",
		presets.Standard.Max, presets.Strict.Max, presets.Search.Max, presets.Export.Max)

	standard := middleware.RateLimit(rateLimiter, presets.Standard)
	strict := middleware.RateLimit(rateLimiter, presets.Strict)
	search := middleware.RateLimit(rateLimiter, presets.Search)
	export := middleware.RateLimit(rateLimiter, presets.Export)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	tablesHandler := handlers.NewTablesHandler(db, cacheService)
	exportHandler := handlers.NewExportHandler(db)
	meetingsHandler := handlers.NewMeetingsHandler(db)
	insightsHandler := handlers.NewInsightsHandler(db, insightService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")

	dbGroup := api.Group("/db")
	dbGroup.Get("/tables", standard, tablesHandler.List)
	dbGroup.Get("/tables/:table/schema", standard, tablesHandler.Schema)
	dbGroup.Get("/tables/:table/data", dataRateLimit(standard, search), tablesHandler.Data)
	dbGroup.Get("/tables/:table/columns/:column/values", standard, tablesHandler.Distinct)
	dbGroup.Get("/tables/:table/export", export, exportHandler.Export)
	dbGroup.Post("/tables/:table/data", strict, tablesHandler.CreateRow)
	dbGroup.Put("/tables/:table/data/:id", strict, tablesHandler.UpdateRow)
	dbGroup.Delete("/tables/:table/data/:id", strict, tablesHandler.DeleteRow)

	api.Post("/cache/invalidate/:table", strict, tablesHandler.Invalidate)

	api.Get("/meetings", standard, meetingsHandler.List)
	api.Get("/meetings/:id", standard, meetingsHandler.Get)

	api.Get("/insights", standard, insightsHandler.List)
	api.Patch("/insights/:id/resolve", strict, insightsHandler.Resolve)
	api.Post("/insights/extract", strict, insightsHandler.Extract)

	// Background extraction schedule
	var scheduler *jobs.Scheduler
	if insightService != nil {
		scheduler, err = jobs.NewScheduler()
		if err != nil {
			log.Fatalf("❌ Failed to create scheduler: %v", err)
		}
		if err := scheduler.Register("insight-extraction", cfg.ExtractionCron, jobs.NewInsightExtractionJob(insightService)); err != nil {
			log.Fatalf("❌ Failed to register extraction job: %v", err)
		}
		scheduler.Start()
		log.Printf("🕐 Background jobs: insight extraction (%s)", cfg.ExtractionCron)
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if scheduler != nil {
			scheduler.Stop()
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// dataRateLimit routes search requests through the search preset and
// everything else through the standard preset.
func dataRateLimit(standard, search fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("search") != "" {
			return search(c)
		}
		return standard(c)
	}
}

// startProvidersFileWatcher watches providers.json for changes and hot-reloads
// the active LLM provider.
func startProvidersFileWatcher(filePath string, llmService *services.LLMService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching
	// the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce rapid editor writes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					providersConfig, err := config.LoadProviders(filePath)
					if err != nil {
						log.Printf("❌ Failed to reload providers: %v", err)
						return
					}
					if err := llmService.Reload(providersConfig); err != nil {
						log.Printf("❌ Failed to apply provider config: %v", err)
						return
					}
					log.Printf("✅ Providers reloaded from %s", filePath)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
