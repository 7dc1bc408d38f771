package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/chatrelay/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	// Configure logger with microsecond precision
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Command line flags
	configPath := flag.String("config", "~/.chatrelay/config.toml", "Path to config file")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	httpPort := flag.Int("http-port", 0, "HTTP port for WebSocket/health/metrics (overrides config, -1 disables)")
	defaultGroup := flag.String("default-group", "", "Name of the default group (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	pprofAddr := flag.String("pprof", "", "Address for the pprof server (e.g. localhost:6060), empty disables")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("ChatRelay Server %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command-line flags override config file
	if *port != 0 {
		config.Server.TCPPort = *port
	}
	if *httpPort != 0 {
		config.Server.HTTPPort = *httpPort
	}
	if *defaultGroup != "" {
		config.Server.DefaultGroup = *defaultGroup
	}

	serverConfig := config.ToServerConfig()

	srv := server.NewServer(serverConfig)
	srv.SetMetrics(server.NewMetrics())

	if *debug {
		srv.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("ChatRelay server %s started successfully", Version)
	log.Printf("TCP port: %d", serverConfig.TCPPort)
	if serverConfig.HTTPPort >= 0 {
		log.Printf("HTTP port: %d (ws://host:%d/ws, /healthz, /metrics)", serverConfig.HTTPPort, serverConfig.HTTPPort)
	} else {
		log.Printf("HTTP listener disabled")
	}
	log.Printf("Default group: #%s", serverConfig.DefaultGroup)

	// Start pprof HTTP server for profiling
	if *pprofAddr != "" {
		go func() {
			log.Printf("Starting pprof server on http://%s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
