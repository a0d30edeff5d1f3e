package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/farmguard-backend/internal/db"
	"github.com/yungbote/farmguard-backend/internal/dispatch"
	"github.com/yungbote/farmguard-backend/internal/handlers"
	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/middleware"
	"github.com/yungbote/farmguard-backend/internal/observability"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/server"
	"github.com/yungbote/farmguard-backend/internal/services"
	"github.com/yungbote/farmguard-backend/internal/sse"
	"github.com/yungbote/farmguard-backend/internal/types"
	"github.com/yungbote/farmguard-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "farmguard-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	port := utils.GetEnv("PORT", "8080", log)
	allowedOrigins := server.SplitOrigins(utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000", log))

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	alertRepo := repos.NewAlertRepo(thePG, log)
	alertRuleRepo := repos.NewAlertRuleRepo(thePG, log)
	alertRecipientRepo := repos.NewAlertRecipientRepo(thePG, log)
	alertTemplateRepo := repos.NewAlertTemplateRepo(thePG, log)
	escalationRuleRepo := repos.NewEscalationRuleRepo(thePG, log)
	escalationTicketRepo := repos.NewEscalationTicketRepo(thePG, log)
	ecallRepo := repos.NewECallRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewHub(log)

	// Cross-instance event bus (optional; single-instance deployments run
	// without Redis and fan out through the local hub only)
	var eventBus services.EventBus
	if os.Getenv("REDIS_ADDR") != "" {
		eventBus, err = services.NewRedisEventBus(log)
		if err != nil {
			log.Error("Could not init RedisEventBus", "error", err)
			os.Exit(1)
		}
		defer eventBus.Close()
		if err := eventBus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
			log.Error("Could not start event bus forwarder", "error", err)
			os.Exit(1)
		}
	}

	// Dispatchers
	log.Info("Setting up dispatch registry from main...")
	registry := dispatch.NewRegistry(log)
	registry.Register(types.ChannelDashboard, dispatch.NewDashboardDispatcher(sseHub))
	registerGateway := func(kind types.ChannelKind, name, urlEnv, keyEnv string) {
		baseURL := utils.GetEnv(urlEnv, "", log)
		if baseURL == "" {
			return
		}
		d, err := dispatch.NewGatewayDispatcher(log, name, dispatch.GatewayConfig{
			BaseURL: baseURL,
			APIKey:  utils.GetEnv(keyEnv, "", log),
		})
		if err != nil {
			log.Warn("Could not init gateway dispatcher", "dispatcher", name, "error", err)
			return
		}
		registry.Register(kind, d)
	}
	registerGateway(types.ChannelPush, "push", "PUSH_GATEWAY_URL", "PUSH_GATEWAY_API_KEY")
	registerGateway(types.ChannelSMS, "sms", "SMS_GATEWAY_URL", "SMS_GATEWAY_API_KEY")
	registerGateway(types.ChannelVestVibration, "vest", "VEST_GATEWAY_URL", "VEST_GATEWAY_API_KEY")
	registerGateway(types.ChannelBeacon, "beacon", "BEACON_GATEWAY_URL", "BEACON_GATEWAY_API_KEY")
	registerGateway(types.ChannelEmergency119, "emergency_119", "EMERGENCY_GATEWAY_URL", "EMERGENCY_GATEWAY_API_KEY")
	registerGateway(types.ChannelEmergency112, "emergency_112", "EMERGENCY_GATEWAY_URL", "EMERGENCY_GATEWAY_API_KEY")
	fanout := dispatch.NewFanout(log, registry)

	// Services
	log.Info("Setting up Services from main...")
	clock := services.NewClock()
	notifier := services.NewAlertNotifier(log, sseHub, eventBus)
	ruleService := services.NewRuleService(thePG, log, alertRuleRepo, alertRecipientRepo, alertTemplateRepo, escalationRuleRepo)
	scheduler := services.NewEscalationScheduler(thePG, log, clock, escalationTicketRepo, alertRepo, ruleService)
	ecallService := services.NewECallService(thePG, log, clock, ecallRepo, fanout, notifier)
	alertService := services.NewAlertService(thePG, log, clock, alertRepo, ruleService, scheduler, fanout, notifier, ecallService)
	scheduler.SetEscalator(alertService)
	if err := scheduler.Rehydrate(ctx); err != nil {
		log.Warn("Scheduler rehydration failed", "error", err)
	}
	scheduler.Start(ctx)

	// Handlers
	log.Info("Setting up handlers from main...")
	alertHandler := handlers.NewAlertHandler(alertService)
	ecallHandler := handlers.NewECallHandler(ecallService)
	sseHandler := handlers.NewSSEHandler(log, sseHub)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    "farmguard-backend",
		AllowedOrigins: allowedOrigins,
		AuthMiddleware: authMiddleware,
		AlertHandler:   alertHandler,
		ECallHandler:   ecallHandler,
		SSEHandler:     sseHandler,
	})

	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
