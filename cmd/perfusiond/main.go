package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lungperfusion/internal/logger"
	"lungperfusion/internal/transport"
	"lungperfusion/pkg/config"
	"lungperfusion/pkg/perfusion"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "Listen port (overrides configuration)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger.SetLevel(cfg.Output.LogLevel)
	if cfg.Output.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	processor, err := perfusion.NewProcessor(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build pipeline")
	}
	processor.Subscribe(perfusion.NewLoggingObserver(logger.Logger))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      transport.NewHandler(processor, cfg),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"address": addr,
			"timeout": cfg.Server.RequestTimeout,
			"policy":  cfg.Segmentation.Policy,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
