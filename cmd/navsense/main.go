package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"navsense/internal/config"
	"navsense/internal/web"
)

func main() {
	var configPath string
	var summaryPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.StringVar(&summaryPath, "log-summary", "", "Print a summary of a recorded location log and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(os.Stdout, summaryPath); err != nil {
			log.Fatalf("log summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	setupLogging(cfg.Log, io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("navsense starting mode=%s", cfg.Source.Mode)
	rt, err := newApp(cfg, logs)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if err := rt.run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("navsense stopped: %v", err)
	}
	rt.close()
	log.Printf("navsense stopping")
}

func setupLogging(cfg config.LogConfig, out io.Writer) {
	flags := log.LstdFlags
	if cfg.Microseconds {
		flags |= log.Lmicroseconds
	}
	log.SetFlags(flags)
	log.SetPrefix(cfg.Prefix)
	log.SetOutput(out)
}
