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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avolkov/marketplace/internal/chat"
	"github.com/avolkov/marketplace/internal/config"
	"github.com/avolkov/marketplace/internal/es"
	"github.com/avolkov/marketplace/internal/handlers"
	"github.com/avolkov/marketplace/internal/logging"
	"github.com/avolkov/marketplace/internal/mykafka"
	"github.com/avolkov/marketplace/internal/service/checkout"
	"github.com/avolkov/marketplace/internal/service/token"
	httpserver "github.com/avolkov/marketplace/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	var producer *mykafka.Producer
	if len(configuration.KAFKA_BROKERS) > 0 {
		producer = mykafka.NewProducer(configuration.KAFKA_BROKERS)
	} else {
		logger.Warn("kafka disabled: no brokers configured")
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		logger.Warn("elasticsearch disabled", "error", err)
		esClient = nil
	}

	notifier := chat.NewNotifier(configuration.REDIS_ADDR)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), logger)))
			return next(c)
		}
	})

	tokenService := &token.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret}
	deps := httpserver.Deps{
		AuthHandler:    &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: producer},
		ProductHandler: &handlers.ProductHandler{DB: db, Producer: producer, ES: esClient, ESIndex: configuration.ES_INDEX},
		CartHandler:    &handlers.CartHandler{DB: db, Producer: producer},
		OrderHandler:   &handlers.OrderHandler{DB: db, Producer: producer, Orchestrator: &checkout.Orchestrator{DB: db}},
		ChatHandler:    &handlers.ChatHandler{DB: db, Producer: producer, Notifier: notifier},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: configuration.ES_INDEX},
		TokenService:   tokenService,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:        configuration.HTTP_ADDR,
		Handler:     e,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: chat event streams are long-lived
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	logger.Info("server started", "addr", configuration.HTTP_ADDR)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
	if err := notifier.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
