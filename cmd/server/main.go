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

	"fulfillment-service/config"
	"fulfillment-service/internal/api"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/eventbus"
	"fulfillment-service/internal/external"
	"fulfillment-service/internal/guest"
	"fulfillment-service/internal/pricing"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/taskqueue"
	"fulfillment-service/internal/util"
	"fulfillment-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting fulfillment service")

	tp, err := util.InitTracer("fulfillment-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected", zap.Bool("chat_id_column", db.HasChatIDColumn()))

	// Redis only backs the travel-time cache; pricing degrades to its
	// heuristic without it.
	var redisClient *redisclient.Client
	redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, travel cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	queue := taskqueue.New(cfg.Queue.Tick, cfg.Queue.MaxRetries, cfg.Queue.BaseDelay)
	queue.Start(runCtx)

	sessions := guest.NewSessionStore(cfg.Guest.SessionTTL, cfg.Guest.SweepInterval)
	sessions.Start(runCtx)

	emailSender := external.NewLogEmailSender()
	verifier := guest.NewVerifier(emailSender,
		cfg.Verify.RequestTTL, cfg.Verify.TokenTTL,
		cfg.Verify.MaxAttempts, cfg.Verify.SweepInterval)
	verifier.Start(runCtx)

	estimator := service.NewCachedTravelEstimator(redisClient, nil)
	pricingEngine := pricing.NewEngine(cfg.Pricing, estimator)

	bus := eventbus.New()

	orderService := service.NewOrderService(
		db, queue, pricingEngine, bus, eventPublisher,
		external.NewLogSheetSync(),
		emailSender,
		external.NewLogChatSender(),
		external.NewLogReceiptPrinter(),
		service.Options{
			SheetSyncEnabled: cfg.Sheets.SyncEnabled,
			OpsEmail:         cfg.Sheets.OpsEmail,
			PromptPayID:      cfg.Payment.PromptPayID,
		},
	)
	paymentService := service.NewPaymentService(db, bus)
	guestService := service.NewGuestService(orderService, sessions, verifier)

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, paymentService)
	go func() {
		if err := paymentWorker.Start(runCtx); err != nil {
			logger.Error("Payment worker stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, guestService, paymentService, verifier, bus)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	runCancel()
	if err := paymentWorker.Stop(); err != nil {
		logger.Warn("Payment worker close failed", zap.Error(err))
	}
	queue.Shutdown()
	sessions.Shutdown()
	verifier.Shutdown()

	logger.Info("Server exited")
}
