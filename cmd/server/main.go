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

	"allocation-service/config"
	"allocation-service/internal/api"
	"allocation-service/internal/broker"
	"allocation-service/internal/redisclient"
	"allocation-service/internal/service"
	"allocation-service/internal/store"
	"allocation-service/internal/util"
	"allocation-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting allocation service")

	tp, err := util.InitTracer("allocation-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicVoucher)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	reservationTTL := time.Duration(cfg.Business.ReservationTTLMinutes) * time.Minute
	transferTTL := time.Duration(cfg.Business.TransferTTLHours) * time.Hour

	allocationService := service.NewAllocationService(db, redisClient)
	reservationService := service.NewReservationService(db, redisClient, eventPublisher, reservationTTL)
	caseService := service.NewCaseService(db, eventPublisher)
	voucherService := service.NewVoucherService(db, redisClient, eventPublisher, allocationService, reservationService, caseService)
	transferService := service.NewTransferService(db, eventPublisher, caseService, transferTTL)

	if err := allocationService.SyncAllAvailability(context.Background()); err != nil {
		log.Printf("Failed to sync availability to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sweepWorker := worker.NewSweepWorker(
		reservationService,
		transferService,
		redisClient,
		time.Duration(cfg.Business.SweepIntervalSeconds)*time.Second,
		cfg.Business.SweepBatchSize,
	)
	go sweepWorker.Start(workerCtx)

	fulfillmentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicFulfillment, cfg.Kafka.ConsumerGroup)
	fulfillmentWorker := worker.NewFulfillmentWorker(fulfillmentConsumer, voucherService, db)
	go func() {
		if err := fulfillmentWorker.Start(workerCtx); err != nil {
			log.Printf("Fulfillment worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(allocationService, reservationService, voucherService, transferService, caseService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	fulfillmentWorker.Stop()

	log.Println("Server exited")
}
