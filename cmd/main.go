// nextjs-gateway - HTTP optimization gateway for Next.js dashboards.
//
// Usage:
//
//	nextjs-gateway serve [--config path] [--port n]
//	nextjs-gateway version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wakedock/nextjs-gateway/internal/config"
	"github.com/wakedock/nextjs-gateway/internal/gateway"
	"github.com/wakedock/nextjs-gateway/internal/monitoring"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("nextjs-gateway %s\n", Version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  nextjs-gateway serve [--config path] [--port n]   start the gateway")
	fmt.Fprintln(os.Stderr, "  nextjs-gateway version                            print version")
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFlag := fs.String("config", defaultConfigPath, "path to config file")
	portFlag := fs.Int("port", 0, "override the listen port")
	_ = fs.Parse(args)

	loadEnvFiles()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config '%s': %v\n", *configFlag, err)
		os.Exit(1)
	}
	if *portFlag != 0 {
		cfg.Server.Port = *portFlag
	}

	monitoring.Global(cfg.LoggerConfig())

	gw, err := gateway.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Start in a goroutine; the main goroutine waits for a signal.
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadEnvFiles loads .env files from the working directory. Missing
// files are fine; explicit environment always wins over file values.
func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}
}
