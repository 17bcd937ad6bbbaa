// Command main is the entry point for the pawfeed API server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pawfeed/internal/bootstrap"
	"pawfeed/internal/config"
	"pawfeed/internal/observability"
	"pawfeed/internal/server"
	"pawfeed/internal/state"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.Logger = observability.NewLogger(cfg.Env)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "pawfeed-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampler,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	if err := rt.StartRelay(ctx); err != nil {
		log.Printf("Change relay disabled: %v", err)
	}

	verifier, err := rt.Verifier(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize identity provider: %v", err)
	}

	app, err := state.Load(cfg.StatePath)
	if err != nil {
		log.Fatalf("Failed to load local state: %v", err)
	}

	svc := bootstrap.NewServices(rt, app)
	srv := server.New(server.Deps{
		Config:       cfg,
		Redis:        rt.Redis,
		State:        app,
		Posts:        svc.PostSvc,
		Interactions: svc.Interactions,
		Comments:     svc.Comments,
		Follows:      svc.Follows,
		Discovery:    svc.Discovery,
		Feeds:        svc.Feeds,
		Flags:        svc.Flags,
		Verifier:     verifier,
		Ping:         rt.Ping,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		stopRelay()
		if err := rt.Close(); err != nil {
			log.Printf("Runtime close error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	<-done
}
