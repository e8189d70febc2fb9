package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Victormzing/storefront-bff/auth"
	"github.com/Victormzing/storefront-bff/clients"
	"github.com/Victormzing/storefront-bff/config"
	"github.com/Victormzing/storefront-bff/controllers"
	"github.com/Victormzing/storefront-bff/database"
	"github.com/Victormzing/storefront-bff/kafka"
	"github.com/Victormzing/storefront-bff/logger"
	"github.com/Victormzing/storefront-bff/metrics"
	"github.com/Victormzing/storefront-bff/routes"
	"github.com/Victormzing/storefront-bff/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger.Initialize(cfg.Env)
	defer logger.Log.Sync()

	metricsClient, err := metrics.NewClient(context.Background())
	if err != nil {
		logger.Log.Warn("metrics init failed", zap.Error(err))
	}

	gateway := clients.NewGatewayClient(cfg.APIGatewayURL, cfg.RequestTimeout)
	orderClient := clients.NewOrderClient(gateway)
	cartClient := clients.NewCartClient(gateway)
	paymentClient := clients.NewPaymentClient(gateway)

	var attemptStore database.AttemptStore
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisClient.Close()
		attemptStore = database.NewRedisAttemptStore(redisClient, cfg.AttemptTTL)
		logger.Log.Info("connected to redis")
	} else {
		attemptStore = database.NewMemoryAttemptStore()
		logger.Log.Info("using in-memory attempt store")
	}

	var producer *kafka.PaymentEventProducer
	if cfg.KafkaBrokers != "" {
		producer = kafka.NewPaymentEventProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, logger.Log)
		defer producer.Close()
		logger.Log.Info("kafka producer ready", zap.String("topic", cfg.KafkaTopic))
	}

	registry := services.NewWatcherRegistry(services.WatcherDeps{
		Payments: paymentClient,
		Orders:   orderClient,
		Cart:     cartClient,
		Events:   producer,
		Metrics:  metricsClient,
		Store:    attemptStore,
		Log:      logger.Log,
		Config: services.WatcherConfig{
			BaseInterval: cfg.PollBaseInterval,
			MaxInterval:  cfg.PollMaxInterval,
			Budget:       cfg.PollBudget,
			Fixed:        cfg.PollFixed,
		},
	})

	verifier := auth.NewVerifier(cfg.JWTSecret)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger())
	r.Use(httpMetrics(metricsClient))

	bffController := controllers.NewBFFController(gateway, orderClient, cartClient, registry)
	paymentController := controllers.NewPaymentController(registry)
	routes.RegisterRoutes(r, bffController, paymentController, verifier)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("storefront bff listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")
	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("shutdown error", zap.Error(err))
	}
}

func httpMetrics(mc *metrics.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if mc == nil {
			return
		}
		go func(path, method string, status int, dur time.Duration) {
			mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dims := map[string]string{"Service": "storefront-bff", "Method": method, "Path": path}
			_ = mc.RecordCount(mctx, metrics.MetricHTTPRequests, dims)
			_ = mc.RecordLatency(mctx, metrics.MetricHTTPLatency, dur, dims)
			if status >= 500 {
				_ = mc.RecordCount(mctx, metrics.MetricHTTPErrors, dims)
			}
		}(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
