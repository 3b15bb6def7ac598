package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"storefront-catalog/internal/api"
	"storefront-catalog/internal/config"
)

const (
	shutdownTimeout     = 30 * time.Second
	healthCheckInterval = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	logger.Println("INFO: Starting service...")
	logger.Printf("INFO: Configuration loaded for APP_ENV: %s, LogLevel: %s", cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	serverErr := make(chan error, 2)

	// --- HTTP Server ---
	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      newRouter(a),
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}
	go func() {
		logger.Printf("INFO: HTTP server listening on port %s", cfg.HttpServer.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server ListenAndServe error: %w", err)
			return
		}
		logger.Println("INFO: HTTP server has stopped.")
	}()

	// --- gRPC Health Server ---
	var grpcHandler *api.GRPCHandler
	if cfg.GrpcServer.Enabled {
		grpcHandler = api.NewGRPCHandler(a.engine, nil, logger)
		grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
		if err != nil {
			shutdownHTTP(logger, httpServer)
			return fmt.Errorf("failed to listen for gRPC on port %s: %w", cfg.GrpcServer.Port, err)
		}
		go grpcHandler.Watch(ctx, healthCheckInterval)
		go func() {
			logger.Printf("INFO: gRPC server listening on port %s", cfg.GrpcServer.Port)
			if err := grpcHandler.Server().Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serverErr <- fmt.Errorf("gRPC server Serve error: %w", err)
				return
			}
			logger.Println("INFO: gRPC server has stopped.")
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Println("INFO: Shutdown signal received. Starting graceful shutdown...")
	case runErr = <-serverErr:
		logger.Printf("ERROR: %v", runErr)
	}
	stop()

	waitForShutdown(logger, httpServer, grpcHandler)
	return runErr
}

func shutdownHTTP(logger *log.Logger, httpServer *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("WARN: HTTP server graceful shutdown failed: %v", err)
		return
	}
	logger.Println("INFO: HTTP server gracefully shut down.")
}

func waitForShutdown(logger *log.Logger, httpServer *http.Server, grpcHandler *api.GRPCHandler) {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	if grpcHandler != nil {
		logger.Println("INFO: Attempting to gracefully shut down gRPC server...")
		go func() {
			grpcHandler.Shutdown()
			close(stoppedGrpc)
		}()
	}

	logger.Println("INFO: Attempting to gracefully shut down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("WARN: HTTP server graceful shutdown failed: %v", err)
	} else {
		logger.Println("INFO: HTTP server gracefully shut down.")
	}

	if grpcHandler != nil {
		select {
		case <-stoppedGrpc:
			logger.Println("INFO: gRPC server gracefully shut down.")
		case <-shutdownCtx.Done():
			logger.Printf("WARN: gRPC server graceful shutdown timed out: %v", shutdownCtx.Err())
			grpcHandler.Server().Stop()
			logger.Println("INFO: gRPC server forced stop.")
		}
	}

	logger.Println("INFO: Graceful shutdown sequence completed.")
}
