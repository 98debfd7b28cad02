package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"neuro/internal/config"
	"neuro/internal/database"
	"neuro/internal/enrich"
	"neuro/internal/handlers"
	"neuro/internal/jobs"
	"neuro/internal/logging"
	"neuro/internal/middleware"
	"neuro/internal/services"
	"neuro/pkg/auth"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Neuro Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	environment := os.Getenv("ENVIRONMENT")

	// Accounts database (sqlite file by default, mysql:// DSN in production)
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to accounts database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize accounts database: %v", err)
	}

	// MongoDB holds everything member-facing: profiles, posts, messages,
	// automations and their runs. The server is useless without it.
	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(cfg.MongoURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}
	cancelInit()

	// Redis is optional: without it, rate-limit counters and scheduler locks
	// fall back to per-instance state and run events stay in-process.
	var redisService *services.RedisService
	var pubsubService *services.PubSubService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (continuing without it)", err)
		} else {
			defer redisService.Close()
			instanceID := uuid.New().String()[:8]
			pubsubService = services.NewPubSubService(redisService, instanceID)
			log.Printf("✅ Redis connected (instance %s)", instanceID)
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - run events will not fan out across instances")
	}

	// JWT auth. A missing secret is fatal in production; dev gets an
	// ephemeral secret so tokens survive only until the next restart.
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		if environment == "production" {
			log.Fatal("❌ JWT_SECRET is required in production. Generate with: openssl rand -hex 32")
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("❌ Failed to generate dev JWT secret: %v", err)
		}
		jwtSecret = hex.EncodeToString(buf)
		log.Println("⚠️ JWT_SECRET not set - using an ephemeral dev secret (sessions reset on restart)")
	}
	jwtAuth, err := auth.NewLocalJWTAuth(jwtSecret, 15*time.Minute, 30*24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
	}
	log.Println("✅ Local JWT authentication initialized")

	// Optional profile-link enrichment pipeline
	var enricher *enrich.Service
	if cfg.EnrichEnabled {
		enricher = enrich.New(cfg.EnrichUserAgent)
		log.Println("✅ Profile enrichment pipeline enabled")
	}

	// Core services
	profileService := services.NewProfileService(mongoDB)
	accountService := services.NewAccountService(db, jwtAuth, profileService)
	searchService := services.NewSearchService(mongoDB)
	messageService := services.NewMessageService(mongoDB)
	postService := services.NewPostService(mongoDB, profileService)
	llmService := services.NewLLMService(cfg)
	analyzeService := services.NewAnalyzeService()
	suggestService := services.NewSuggestService(mongoDB, llmService, analyzeService)
	networkService := services.NewNetworkService(mongoDB, llmService, enricher)
	outreachService := services.NewOutreachService(messageService)
	dispatchService := services.NewDispatchService(mongoDB)
	meetService := services.NewMeetService(cfg)
	githubService := services.NewGitHubService(profileService)
	automationService := services.NewAutomationService(mongoDB)

	connManager := services.NewConnectionManager()
	metrics := services.InitMetrics(connManager)
	log.Println("✅ Core services initialized")

	runService := services.NewRunService(
		mongoDB,
		automationService,
		networkService,
		analyzeService,
		dispatchService,
		meetService,
		outreachService,
		connManager,
		pubsubService,
		metrics,
	)

	if pubsubService != nil {
		pubsubService.OnRunEvent(connManager.Broadcast)
		if err := pubsubService.Start(); err != nil {
			log.Printf("⚠️ Failed to start run-event relay: %v", err)
		} else {
			log.Println("✅ Run-event relay started")
		}
	}

	schedulerService, err := services.NewSchedulerService(mongoDB, redisService, runService)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	schedCtx, cancelSched := context.WithCancel(context.Background())
	defer cancelSched()
	if err := schedulerService.Start(schedCtx); err != nil {
		log.Printf("⚠️ Failed to start scheduler: %v", err)
	} else {
		log.Println("✅ Automation scheduler started")
	}

	// Background maintenance jobs
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("retention-cleanup", jobs.NewRetentionCleanupJob(mongoDB, cfg.RunRetentionDays))
	jobScheduler.Register("orphan-runs", jobs.NewOrphanRunCleanupJob(mongoDB, 10*time.Minute, 30*time.Minute))
	jobScheduler.Register("account-prune", jobs.NewAccountPruneJob(accountService, 6*time.Hour))
	if enricher != nil {
		jobScheduler.Register("interest-backfill", jobs.NewInterestBackfillJob(networkService, 50))
	}
	jobScheduler.Start()
	log.Println("🕐 Background jobs: retention cleanup (daily 2 AM), orphan runs (10m), account prune (6h)")

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:        "Neuro v1.0",
		ReadTimeout:    120 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    120 * time.Second,
		BodyLimit:      4 * 1024 * 1024, // 4MB is plenty for JSON bodies and flow graphs
		ReadBufferSize: 16384,           // 16KB for request headers (privacy browsers send extra headers)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("neuro")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Load rate limiting configuration
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Public=%d/min, Auth=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.PublicReadMax,
		rateLimitConfig.AuthenticatedMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard
	// origins; all-in-one deployments serve the frontend from the same origin
	// and don't need credentials anyway.
	allowCredentials := allowedOrigins != "*"

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	// Global API rate limiter - first line of DDoS defense
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(connManager, runService, mongoDB)
	authHandler := handlers.NewAuthHandler(accountService)
	profileHandler := handlers.NewProfileHandler(profileService)
	searchHandler := handlers.NewSearchHandler(searchService)
	networkHandler := handlers.NewNetworkHandler(networkService)
	githubHandler := handlers.NewGitHubHandler(githubService)
	messagesHandler := handlers.NewMessagesHandler(messageService, suggestService)
	postsHandler := handlers.NewPostsHandler(postService)
	agentsHandler := handlers.NewAgentsHandler(analyzeService, dispatchService, outreachService)
	meetHandler := handlers.NewMeetHandler(meetService)
	automationsHandler := handlers.NewAutomationsHandler(automationService, runService)
	runsHandler := handlers.NewRunsHandler(runService)
	schedulesHandler := handlers.NewSchedulesHandler(schedulerService)
	runSocketHandler := handlers.NewRunSocketHandler(connManager, runService)

	requireAuth := middleware.AuthMiddleware(jwtAuth)
	optionalAuth := middleware.OptionalAuthMiddleware(jwtAuth)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")

	// Auth
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", middleware.AuthAttemptRateLimiter(rateLimitConfig), authHandler.Register)
	authRoutes.Post("/login", middleware.AuthAttemptRateLimiter(rateLimitConfig), authHandler.Login)
	authRoutes.Post("/refresh", middleware.AuthAttemptRateLimiter(rateLimitConfig), authHandler.RefreshToken)
	authRoutes.Post("/logout", requireAuth, authHandler.Logout)
	authRoutes.Get("/me", requireAuth, authHandler.Me)

	// Engine-facing API (spec'd surface the workflow engine calls).
	// Auth is optional here: an absent token downgrades, never blocks.
	agents := api.Group("/agents", optionalAuth)
	agents.Post("/adk/analyze", agentsHandler.Analyze)
	agents.Post("/a2a/dispatch", agentsHandler.Dispatch)
	agents.Get("/a2a/tasks", requireAuth, agentsHandler.ListTasks)
	agents.Post("/outreach/send", agentsHandler.SendOutreach)
	api.Post("/google/meet", optionalAuth, meetHandler.Schedule)
	api.Get("/network/followers", optionalAuth, middleware.PublicReadRateLimiter(rateLimitConfig), networkHandler.Followers)

	// Network insight
	network := api.Group("/network", requireAuth)
	network.Get("/groups", networkHandler.Groups)
	network.Post("/match", networkHandler.Match)

	// Search and public profiles
	api.Get("/users/search", optionalAuth, middleware.PublicReadRateLimiter(rateLimitConfig), searchHandler.Users)
	api.Get("/github/repos/:slug", middleware.PublicReadRateLimiter(rateLimitConfig), githubHandler.Repos)
	api.Get("/profile/slug/:slug", optionalAuth, middleware.PublicReadRateLimiter(rateLimitConfig), profileHandler.BySlug)
	api.Get("/profile/uid/:uid", optionalAuth, middleware.PublicReadRateLimiter(rateLimitConfig), profileHandler.ByUID)

	// Own profile
	profile := api.Group("/profile", requireAuth, middleware.AuthenticatedRateLimiter(rateLimitConfig))
	profile.Get("/me", profileHandler.Me)
	profile.Put("/", profileHandler.Update)
	profile.Put("/about", profileHandler.SetAbout)
	profile.Post("/experience", profileHandler.AddExperience)
	profile.Put("/experience/:id", profileHandler.UpdateExperience)
	profile.Delete("/experience/:id", profileHandler.DeleteExperience)
	profile.Post("/follow", profileHandler.Follow)
	profile.Post("/unfollow", profileHandler.Unfollow)

	// Messaging
	messages := api.Group("/messages", requireAuth, middleware.AuthenticatedRateLimiter(rateLimitConfig))
	messages.Post("/send", messagesHandler.Send)
	messages.Get("/with/:uid", messagesHandler.Thread)
	messages.Get("/partners", messagesHandler.Partners)
	messages.Post("/seed-demo", middleware.AdminMiddleware(cfg), messagesHandler.SeedDemo)
	api.Post("/ai/suggest-reply", requireAuth, middleware.SuggestRateLimiter(rateLimitConfig), messagesHandler.SuggestReply)

	// Posts
	posts := api.Group("/posts")
	posts.Post("/", requireAuth, postsHandler.Create)
	posts.Get("/", optionalAuth, middleware.PublicReadRateLimiter(rateLimitConfig), postsHandler.List)
	posts.Get("/by/:uid", optionalAuth, middleware.PublicReadRateLimiter(rateLimitConfig), postsHandler.ByAuthor)
	posts.Post("/like", requireAuth, postsHandler.Like)
	posts.Post("/unlike", requireAuth, postsHandler.Unlike)

	// Automations and runs
	automations := api.Group("/automations", requireAuth, middleware.AuthenticatedRateLimiter(rateLimitConfig))
	automations.Post("/", automationsHandler.Create)
	automations.Get("/", automationsHandler.List)
	automations.Get("/:id", automationsHandler.Get)
	automations.Put("/:id", automationsHandler.Update)
	automations.Delete("/:id", automationsHandler.Delete)
	automations.Post("/:id/run", automationsHandler.Run)
	automations.Post("/:id/stop", automationsHandler.Stop)

	runs := api.Group("/runs", requireAuth)
	runs.Get("/", runsHandler.List)
	runs.Get("/:id", runsHandler.Get)
	runs.Post("/:id/stop", runsHandler.Stop)
	runs.Get("/:id/report.xlsx", middleware.ReportRateLimiter(rateLimitConfig), runsHandler.Report)

	schedules := api.Group("/schedules", requireAuth, middleware.AuthenticatedRateLimiter(rateLimitConfig))
	schedules.Post("/", schedulesHandler.Create)
	schedules.Get("/", schedulesHandler.List)
	schedules.Get("/:id", schedulesHandler.Get)
	schedules.Put("/:id", schedulesHandler.Update)
	schedules.Delete("/:id", schedulesHandler.Delete)
	schedules.Post("/:id/trigger", schedulesHandler.TriggerNow)

	// WebSocket: live run logs. Browsers can't set headers on upgrades, so
	// the middleware also accepts ?token=.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/runs", middleware.WebSocketRateLimiter(rateLimitConfig), requireAuth)
	app.Get("/ws/runs/:id", websocket.New(runSocketHandler.Handle))

	log.Printf("🌐 Routes registered (%d handlers)", int(app.HandlersCount()))

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs
		jobScheduler.Stop()

		// Stop the user-facing scheduler
		cancelSched()
		if err := schedulerService.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		// Stop the run-event relay
		if pubsubService != nil {
			if err := pubsubService.Stop(); err != nil {
				log.Printf("⚠️ Error stopping run-event relay: %v", err)
			}
		}

		// Shutdown Fiber
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	listenAddr := ":" + strings.TrimPrefix(cfg.Port, ":")
	if err := app.Listen(listenAddr); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
