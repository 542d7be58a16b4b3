package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rodrigo-weigert/meu-chapeu/internal/config"
	"github.com/rodrigo-weigert/meu-chapeu/internal/gateway"
	"github.com/rodrigo-weigert/meu-chapeu/internal/restclient"
)

var (
	verbose = flag.Bool("v", false, "verbose logging")
	logPath = flag.String("l", "/tmp/meu-chapeu/meu-chapeu.log", "log file path")
	envPath = flag.String("env", "", "path to a .env file to load before reading configuration")
)

func main() {
	flag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			log.Fatalf("load --env %s: %v", *envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	closeLog := setupLogging(*logPath, *verbose)
	defer closeLog()

	cfg := config.Load()
	if cfg.API.Token == "" {
		log.Fatal("API_TOKEN is required")
	}

	rest := restclient.New(cfg.API.URL, cfg.API.Version, cfg.API.Encoding, cfg.API.Token, cfg.API.ApplicationID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveHealthAndMetrics(":8080")

	gatewayURL, err := rest.GatewayURL(ctx)
	if err != nil {
		log.Fatalf("resolve gateway url: %v", err)
	}

	client := gateway.New(gateway.Config{
		Token:         cfg.API.Token,
		ApplicationID: cfg.API.ApplicationID,
		REST:          rest,
		IdleTimeout:   time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
	})

	go func() {
		<-ctx.Done()
		log.Printf("shutdown signal received; closing gateway connection")
		client.Close()
	}()

	if err := client.Run(ctx, gatewayURL); err != nil && ctx.Err() == nil {
		log.Printf("gateway run error: %v", err)
		os.Exit(1)
	}
	log.Printf("shutdown complete")
}

// setupLogging mirrors cmd/server's plain log.Printf-based logging, but
// writes to logPath so a long-running process keeps a rotatable trail on
// disk; with verbose set, log lines also go to stderr.
func setupLogging(logPath string, verbose bool) func() {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		log.Printf("could not create log directory, logging to stderr only: %v", err)
		return func() {}
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("could not open log file %s, logging to stderr only: %v", logPath, err)
		return func() {}
	}

	var w io.Writer = f
	if verbose {
		w = io.MultiWriter(os.Stderr, f)
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return func() { _ = f.Close() }
}

func serveHealthAndMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok\n")) })
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok\n")) })
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("health/metrics listening on %s", addr)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("health/metrics server error: %v", err)
	}
}
