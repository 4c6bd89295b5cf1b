package main

import (
	"context"
	"time"

	"github.com/jyothsna-ssv/CrowdShield/internal/classifier"
	"github.com/jyothsna-ssv/CrowdShield/internal/handlers"
	"github.com/jyothsna-ssv/CrowdShield/internal/metrics"
	"github.com/jyothsna-ssv/CrowdShield/internal/moderation"
	"github.com/jyothsna-ssv/CrowdShield/internal/notify"
	"github.com/jyothsna-ssv/CrowdShield/internal/queue"
	"github.com/jyothsna-ssv/CrowdShield/internal/ratelimit"
	"github.com/jyothsna-ssv/CrowdShield/internal/rules"
	"github.com/jyothsna-ssv/CrowdShield/internal/store"
	"github.com/jyothsna-ssv/CrowdShield/internal/worker"
	"github.com/jyothsna-ssv/CrowdShield/pkg/config"
	"github.com/jyothsna-ssv/CrowdShield/pkg/database"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
	"github.com/jyothsna-ssv/CrowdShield/pkg/monitoring"
	"github.com/jyothsna-ssv/CrowdShield/pkg/redis"
	"github.com/jyothsna-ssv/CrowdShield/pkg/server"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("crowdshield")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting CrowdShield moderation service")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("crowdshield", version)
	metricsCollector := monitoring.NewMetricsCollector("crowdshield", version, gitCommit)

	serviceMetrics := &metrics.Metrics{
		JobsProcessed:       metricsCollector.NewCounter("moderation_jobs_processed_total", "Moderation jobs by outcome", []string{"outcome"}),
		ClassifierDuration:  metricsCollector.NewHistogram("classifier_duration_seconds", "Classifier call latency", []string{"content_type"}, nil),
		QueueDepth:          metricsCollector.NewGauge("moderation_queue_depth", "Jobs waiting per queue", []string{"queue"}),
		RateLimitRejections: metricsCollector.NewCounter("rate_limit_rejections_total", "Submissions rejected by the rate limiter", []string{"content_type"}),
		ProgressConnections: metricsCollector.NewGauge("progress_websocket_connections", "Connected progress watchers", nil),
	}

	// Connect Postgres
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.RequireEnv("DATABASE_URL")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Connect Redis
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisURL := config.GetEnv("REDIS_URL", "redis://localhost:6379/0")
	redisClient, err := redis.NewClientFromURL(ctx, redisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbConfig.URL,
		"REDIS_URL":    redisURL,
	}))

	// Wire the pipeline
	dataStore := store.NewStore(db)
	jobQueue := queue.NewStore(redisClient, logger)
	engine := rules.NewEngine(dataStore, logger)

	hub := notify.NewHub(logger)
	go hub.Run()

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:     config.GetEnvBool("RATE_LIMIT_ENABLED", true),
		MaxRequests: config.GetEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),
		Window:      config.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}, logger)

	// Classifier chain: hosted provider with heuristic fallback. Without an
	// API key every call goes to the heuristic scorer.
	heuristic := classifier.NewHeuristic(logger)
	var remote classifier.Scorer
	if apiKey := config.GetEnv("OPENAI_API_KEY", ""); apiKey != "" && apiKey != "test" && apiKey != "test-key" {
		remoteCfg := classifier.DefaultRemoteConfig()
		remoteCfg.APIKey = apiKey
		remoteCfg.BaseURL = config.GetEnv("OPENAI_BASE_URL", remoteCfg.BaseURL)
		remoteCfg.Timeout = config.GetEnvDuration("OPENAI_TIMEOUT", remoteCfg.Timeout)
		remote = classifier.NewRemote(remoteCfg, logger)
	} else {
		logger.Warn("No moderation API key configured, using heuristic scorer only")
	}
	scorer := classifier.NewFallback(remote, heuristic, logger)

	orchestrator := moderation.NewOrchestrator(engine, dataStore, hub, logger)

	// Start the worker loops
	workerCfg := worker.DefaultConfig()
	workerCfg.MaxRetries = config.GetEnvInt("WORKER_MAX_RETRIES", workerCfg.MaxRetries)
	workerCfg.PopTimeout = config.GetEnvDuration("WORKER_POP_TIMEOUT", workerCfg.PopTimeout)
	w := worker.New(workerCfg, jobQueue, dataStore, scorer, orchestrator, hub, logger, serviceMetrics)
	w.Start(ctx)

	// Periodic queue depth and connection gauges
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, name := range []string{queue.MainQueue, queue.RetryQueue, queue.DLQ} {
					if size, err := jobQueue.Size(ctx, name); err == nil {
						serviceMetrics.QueueDepth.WithLabelValues(name).Set(float64(size))
					}
				}
				serviceMetrics.ProgressConnections.WithLabelValues().Set(float64(hub.ConnectionCount()))
			}
		}
	}()

	// HTTP surface
	jwtSecret := []byte(config.RequireEnv("JWT_SECRET"))
	adminCfg := handlers.AdminConfig{
		Username:     config.GetEnv("ADMIN_USERNAME", "admin"),
		PasswordHash: config.RequireEnv("ADMIN_PASSWORD_HASH"),
		JWTSecret:    jwtSecret,
		TokenTTL:     config.GetEnvDuration("ADMIN_TOKEN_TTL", 24*time.Hour),
	}

	contentHandler := handlers.NewContentHandler(dataStore, jobQueue, hub, limiter, logger, serviceMetrics)
	ruleHandler := handlers.NewRuleHandler(engine, logger)
	adminHandler := handlers.NewAdminHandler(adminCfg, dataStore, jobQueue, orchestrator, logger)

	router := server.SetupServiceRouter(logger, "crowdshield", healthChecker, metricsCollector)
	handlers.RegisterRoutes(router, contentHandler, ruleHandler, adminHandler, jwtSecret)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("crowdshield", "8080")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	// Drain the worker loops before exiting
	cancel()
	w.Wait()
	logger.Info("CrowdShield stopped")
}
