package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/hiring-api/internal/config"
	"github.com/yourusername/hiring-api/internal/handler"
	pgRepo "github.com/yourusername/hiring-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/hiring-api/internal/repository/redis"
	"github.com/yourusername/hiring-api/internal/service"
	"github.com/yourusername/hiring-api/internal/service/verification"
	"github.com/yourusername/hiring-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Проверка заявок: без БД все запросы, требующие заявку, получают 503
	var lookup service.ApplicationLookup = service.UnavailableApplicationLookup{}
	var applications handler.ApplicationVerifier

	if cfg.Database.Enabled() {
		db, err := database.NewPostgresDB(cfg.Database, gin.Mode() == gin.ReleaseMode)
		if err != nil {
			log.Printf("Failed to connect to database: %v", err)
			os.Exit(1)
		}

		if err := database.MigrateDB(db, database.DefaultMigrationsSource); err != nil {
			log.Printf("Failed to migrate database: %v", err)
			os.Exit(1)
		}

		applicationRepo := pgRepo.NewApplicationRepo(db)
		repoLookup, err := service.NewRepositoryApplicationLookup(applicationRepo)
		if err != nil {
			log.Printf("Failed to initialize ApplicationLookup: %v", err)
			os.Exit(1)
		}
		lookup = repoLookup
		applications = applicationRepo
	} else {
		log.Println("Warning: database is not configured, application lookups will be unavailable")
	}

	// Redis используется только как кеш заявок
	if cfg.Redis.Enabled() && cfg.Database.Enabled() {
		redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		log.Println("Successfully connected to Redis")

		cacheRepo, err := redisRepo.NewCacheRepo(redisClient, cfg.Redis.KeyPrefix)
		if err != nil {
			log.Printf("Failed to initialize CacheRepo: %v", err)
			os.Exit(1)
		}
		cachedLookup, err := service.NewCachedApplicationLookup(lookup, cacheRepo, cfg.Redis.LookupCacheTTL)
		if err != nil {
			log.Printf("Failed to initialize cached ApplicationLookup: %v", err)
			os.Exit(1)
		}
		lookup = cachedLookup
	}

	// Отправка писем
	var emailService service.EmailService = &service.NoopEmailService{}
	if cfg.Email.ResendAPIKey != "" {
		resendService, err := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			log.Printf("Failed to initialize Resend email service: %v", err)
			os.Exit(1)
		}
		emailService = resendService
	} else {
		log.Println("Warning: RESEND_API_KEY is not set, emails will only be logged")
	}

	policy := cfg.Verification.Policy()
	sessionStore := verification.NewSessionStore(policy, nil)
	tokenStore := verification.NewTokenStore(nil)

	codeManager, err := verification.NewCodeManager(sessionStore, emailService, policy)
	if err != nil {
		log.Printf("Failed to initialize CodeManager: %v", err)
		os.Exit(1)
	}
	tokenManager, err := verification.NewTokenManager(tokenStore, emailService, policy)
	if err != nil {
		log.Printf("Failed to initialize TokenManager: %v", err)
		os.Exit(1)
	}

	verificationService, err := service.NewCandidateVerificationService(lookup, codeManager, tokenManager)
	if err != nil {
		log.Printf("Failed to initialize CandidateVerificationService: %v", err)
		os.Exit(1)
	}

	// Контекст с отменой для фоновой очистки хранилищ
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sessionStore.Run(ctx, policy.ReapInterval)
	go tokenStore.Run(ctx, policy.ReapInterval)

	verificationHandler := handler.NewVerificationHandler(verificationService, applications, lookup)

	isProduction := gin.Mode() == gin.ReleaseMode
	router := gin.Default()

	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	allowedOrigins := cfg.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	verificationHandler.RegisterRoutes(api.Group("/verification"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
