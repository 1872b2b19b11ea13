// Package main implements botd, the squad bot platform daemon. It composes
// the platform core from configuration and optionally exposes the metrics
// and health endpoints. The chat transport connects in-process through
// runtime.Pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/squadbot/platform_core/internal/config"
	"github.com/squadbot/platform_core/internal/runtime"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default config/botd.yaml, falling back to built-in defaults)")
	envFile := flag.String("env", "", "Path to .env file to load before reading configuration")
	metricsAddr := flag.String("metrics-addr", "", "Listen address for /metrics and /healthz (empty disables the listener)")
	flag.Parse()

	if v := os.Getenv("BOTD_CONFIG"); v != "" {
		*configPath = v
	}
	if v := os.Getenv("BOTD_METRICS_ADDR"); v != "" {
		*metricsAddr = v
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env (%s): %v", *envFile, err)
		}
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.LoadFromPath(*configPath)
		if err != nil {
			log.Fatalf("load config (%s): %v", *configPath, err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}

	log.Println("Starting squad bot platform")
	log.Printf("  Environment: %s", cfg.App.Environment)
	log.Printf("  Cache backend: %s", cfg.Cache.Backend)
	log.Printf("  Store backend: %s", cfg.Store.Backend)

	app, err := runtime.NewApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	log.Println("Platform core started")

	var server *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.Monitor().Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(app.Statistics(r.Context())); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})

		server = &http.Server{
			Addr:         *metricsAddr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			log.Printf("Metrics listening on %s", *metricsAddr)
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("Metrics server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		}
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Printf("Application shutdown error: %v", err)
	}

	log.Println("Platform core stopped")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix("[botd] ")
}
