// kursor turns head, hand and gaze tracking into cursor movement and
// click gestures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-kursor/internal/config"
	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/app"
	"github.com/teslashibe/go-kursor/pkg/debug"
)

func main() {
	f, loader, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(f.Log.Level)

	opts := []app.Option{}
	if loader != nil {
		opts = append(opts, app.WithLoader(loader))
	}
	a, err := app.New(f, opts...)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file and applies command line overrides.
// Flags win over the file and the environment.
func parseFlags() (*config.File, *config.Loader, error) {
	path := flag.String("config", "", "Config file (.yaml, .toml or .json); reloaded on change")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	port := flag.String("port", "", "Dashboard port")
	provider := flag.String("provider", "", "Dial a perception provider at this ws:// URL")
	cam := flag.Int("camera", -1, "Capture from this camera device (head tracking)")
	model := flag.String("camera-model", "", "YuNet face model for -camera")
	preset := flag.String("preset", "", "Tracking preset: default, responsive, steady")
	profile := flag.String("profile", "", "Calibration profile to apply at startup")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugFrames := flag.Bool("debug-frames", false, "Log every frame (very verbose)")
	flag.Parse()

	var loader *config.Loader
	var f *config.File
	var err error
	if *path != "" {
		loader = config.NewLoader(*path)
		f, err = loader.Load()
	} else {
		f, err = config.Load("")
	}
	if err != nil {
		return nil, nil, err
	}

	if *level != "" {
		f.Log.Level = *level
	}
	if *debugFlag {
		f.Log.Level = "debug"
		debug.Enabled = true
	}
	if *debugFrames {
		f.Log.DebugFrames = true
	}
	if *port != "" {
		f.Web.Port = *port
	}
	if *provider != "" {
		f.Ingest.ProviderURL = *provider
	}
	if *cam >= 0 {
		f.Camera.Enabled = true
		f.Camera.Device = *cam
	}
	if *model != "" {
		f.Camera.ModelPath = *model
	}
	if *preset != "" {
		f.Tracking.Preset = *preset
	}
	if *profile != "" {
		f.Calibration.Profile = *profile
	}

	// Flags may have introduced invalid values
	if err := f.Validate(); err != nil {
		return nil, nil, fmt.Errorf("flags: %w", err)
	}
	return f, loader, nil
}
