package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/config"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags override environment variables
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen host")
	flag.StringVar(&cfg.Sandbox.Backend, "backend", cfg.Sandbox.Backend, "Sandbox backend (native|interpreted)")
	flag.Int64Var(&cfg.Sandbox.MemoryLimitMB, "memory", cfg.Sandbox.MemoryLimitMB, "Heap ceiling per evaluation in MB")
	flag.IntVar(&cfg.Sandbox.TimeoutMS, "timeout", cfg.Sandbox.TimeoutMS, "Default evaluation timeout in ms")
	flag.StringVar(&cfg.Sandbox.BundleDir, "bundles", cfg.Sandbox.BundleDir, "Directory of *.js dependency bundles")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}
