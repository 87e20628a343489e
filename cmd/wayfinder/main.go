// Wayfinder - spoken scene descriptions for visually impaired users
//
// Watches a camera, asks a cloud vision model what is nearby and reads
// out close obstacles and visible text.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimiro1/banner"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
	_ "github.com/teslashibe/go-wayfinder/pkg/camera/webcam"
	"github.com/teslashibe/go-wayfinder/pkg/wayfinder"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const bannerTemplate = `{{ .Title "Wayfinder" "" 0 }}
Version: %s   Go: {{ .GoVersion }}
`

func main() {
	cfg := parseFlags()

	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()

	app, err := wayfinder.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if err := app.Init(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "❌ Initialization failed: %v\n", err)
		os.Exit(1)
	}

	err = app.Run(ctx)
	cancel()
	app.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Runtime error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() config.Config {
	configPath := flag.String("config", "", "Path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	source := flag.String("camera", "", "Camera source: webcam, websocket, webrtc, directory")
	device := flag.String("device", "", "Webcam index or device path")
	url := flag.String("url", "", "Frame feed or signalling URL for websocket/webrtc sources")
	dir := flag.String("dir", "", "Directory of JPEG frames for the directory source")
	fps := flag.Float64("fps", 0, "Maximum analysis rate in frames per second")
	port := flag.String("port", "", "Dashboard port")
	noDashboard := flag.Bool("no-dashboard", false, "Disable the web dashboard")
	noBanner := flag.Bool("no-banner", false, "Skip the startup banner")
	flag.Parse()

	if !*noBanner {
		banner.Init(os.Stdout, true, true, bytes.NewBufferString(fmt.Sprintf(bannerTemplate, version)))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	if *source != "" {
		cfg.Camera.Source = *source
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *url != "" {
		cfg.Camera.URL = *url
	}
	if *dir != "" {
		cfg.Camera.Dir = *dir
	}
	if *fps > 0 {
		cfg.MaxFPS = *fps
	}
	if *port != "" {
		cfg.Dashboard.Port = *port
	}
	if *noDashboard {
		cfg.Dashboard.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	return cfg
}
