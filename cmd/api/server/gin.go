package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	ginhandler "user-service/internal/adapter/gin/handler"
	"user-service/internal/adapter/gin/middleware"
	ginrouter "user-service/internal/adapter/gin/router"
)

// SetupGinServer creates and configures the Gin REST API server
func SetupGinServer(
	handler *ginhandler.UserHandler,
	rateLimiter *middleware.RateLimiter,
	ginAddr string,
	l *zap.Logger,
) (*http.Server, error) {
	// Setup Gin router with all middleware and routes
	router, err := ginrouter.SetupRouter(handler, rateLimiter, l)
	if err != nil {
		return nil, err
	}

	l.Info("Gin REST API configured", zap.String("address", ginAddr))

	// WriteTimeout leaves room for the fallback probe's maximum delay.
	return &http.Server{
		Addr:              ginAddr,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}
