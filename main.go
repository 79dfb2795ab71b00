package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/hoopscore/scorelens/internal/analyzer"
	"github.com/hoopscore/scorelens/internal/config"
	"github.com/hoopscore/scorelens/internal/database"
	"github.com/hoopscore/scorelens/internal/handlers"
	"github.com/hoopscore/scorelens/internal/history"
	"github.com/hoopscore/scorelens/internal/logger"
	"github.com/hoopscore/scorelens/internal/middleware"
	"github.com/hoopscore/scorelens/internal/usage"
	"github.com/hoopscore/scorelens/internal/vault"
	"github.com/hoopscore/scorelens/internal/vision"
)

// devLimitsFactor multiplies the usage ceilings when the developer boost
// is enabled. Development environment only.
const devLimitsFactor = 250

var (
	Version   = "v0.0.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or defaults")
	}

	envCfg := config.NewEnvConfig()

	logCfg := &logger.Config{
		LogDir:     envCfg.LogDir,
		LogFile:    envCfg.LogFile,
		MaxSize:    envCfg.LogMaxSize,
		MaxBackups: envCfg.LogMaxBackups,
		MaxAge:     envCfg.LogMaxAge,
		Compress:   envCfg.LogCompress,
		Console:    envCfg.LogToConsole,
	}
	if err := logger.Setup(logCfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	db, err := database.Open(envCfg.DatabasePath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	usageStore, err := usage.NewSQLiteStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize usage storage: %v", err)
	}

	limiter, err := usage.NewLimiter(usageStore)
	if err != nil {
		log.Fatalf("Failed to initialize usage limiter: %v", err)
	}
	defer limiter.Stop()

	if envCfg.DevLimitsBoost {
		// In-memory only: boosted ceilings must never reach the store or
		// the override file, or they would survive into production.
		limiter.SetBoost(devLimitsFactor)
	}
	log.Printf("✅ Usage limiter initialized")

	// Hot-reloadable limits override file.
	limitsFile, err := usage.NewLimitsFile(envCfg.LimitsFilePath(), limiter.Limits(), func(l usage.Limits) {
		if err := limiter.SetLimits(l); err != nil {
			log.Printf("⚠️ Failed to apply usage limits from file: %v", err)
		}
	})
	if err != nil {
		log.Printf("⚠️ Usage limits file unavailable: %v", err)
	} else {
		defer limitsFile.Close()
		log.Printf("✅ Usage limits file watcher initialized")
	}

	credVault, err := vault.NewFileVault(envCfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}
	if !credVault.IsAvailable() {
		log.Printf("⚠️ Credential storage probe failed; key management will be degraded")
	} else {
		log.Printf("🔑 Credential vault initialized")
	}

	historyManager, err := history.NewManager(db)
	if err != nil {
		log.Printf("⚠️ Analysis history unavailable: %v", err)
		historyManager = nil
	}

	pipeline := analyzer.New(limiter, credVault, historyManager, vision.Options{
		BaseURL:        envCfg.VisionBaseURL,
		Model:          envCfg.VisionModel,
		MaxTokens:      envCfg.VisionMaxTokens,
		MaxAttempts:    envCfg.MaxAttempts,
		AttemptTimeout: time.Duration(envCfg.AttemptTimeoutSec) * time.Second,
		BackoffBase:    time.Duration(envCfg.BackoffBaseMs) * time.Millisecond,
		LogBodies:      envCfg.ShouldLog("debug"),
	})
	log.Printf("✅ Analysis pipeline initialized (model: %s, %d attempts)",
		envCfg.VisionModel, envCfg.MaxAttempts)

	if envCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// No gin.Default(): the stock Logger middleware is too chatty.
	r := gin.New()
	r.Use(gin.Recovery())

	if envCfg.IsProduction() {
		// Direct connections only; do not trust proxy headers.
		if err := r.SetTrustedProxies(nil); err != nil {
			log.Printf("⚠️ Failed to disable proxy trust: %v", err)
		}
	}

	r.Use(middleware.SecurityHeadersMiddleware())
	if envCfg.EnableCORS {
		r.Use(middleware.CORSMiddleware(envCfg))
	}

	r.GET("/health", handlers.HealthCheck())

	api := r.Group("/api")
	{
		api.POST("/analyze", handlers.Analyze(pipeline))
		api.GET("/status", handlers.Status(pipeline))

		api.GET("/usage", handlers.GetUsage(limiter))
		api.PUT("/limits", handlers.UpdateLimits(limiter, limitsFile))
		api.POST("/limits/reset", handlers.ResetUsage(limiter))
		api.POST("/limits/reset-expired", handlers.ResetExpiredUsage(limiter))

		api.GET("/credential", handlers.GetCredential(credVault))
		api.PUT("/credential", handlers.PutCredential(credVault))
		api.DELETE("/credential", handlers.DeleteCredential(credVault))
		api.GET("/credential/availability", handlers.CredentialAvailability(credVault))

		if historyManager != nil {
			api.GET("/history", handlers.GetHistory(historyManager))
			api.DELETE("/history", handlers.ClearHistory(historyManager))
		}
	}

	addr := fmt.Sprintf(":%d", envCfg.Port)
	fmt.Printf("\n🚀 ScoreLens server started\n")
	fmt.Printf("📌 Version: %s\n", Version)
	if BuildTime != "unknown" {
		fmt.Printf("🕐 Build time: %s\n", BuildTime)
	}
	if GitCommit != "unknown" {
		fmt.Printf("🔖 Git commit: %s\n", GitCommit)
	}
	fmt.Printf("📍 API: http://localhost:%d/api\n", envCfg.Port)
	fmt.Printf("📋 Analyze: POST /api/analyze\n")
	fmt.Printf("💚 Health: GET /health\n")
	fmt.Printf("📊 Environment: %s\n", envCfg.Env)
	fmt.Printf("\n")

	if err := r.Run(addr); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
