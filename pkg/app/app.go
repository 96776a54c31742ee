// Package app wires the kursor pipeline: frame sources, the engine runner,
// event dispatch and the dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-kursor/internal/config"
	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/camera"
	"github.com/teslashibe/go-kursor/pkg/camera/capture"
	"github.com/teslashibe/go-kursor/pkg/debug"
	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/engine"
	"github.com/teslashibe/go-kursor/pkg/ingest"
	"github.com/teslashibe/go-kursor/pkg/metrics"
	"github.com/teslashibe/go-kursor/pkg/tracking"
	"github.com/teslashibe/go-kursor/pkg/web"
)

// App owns every component and their lifecycle.
type App struct {
	file   *config.File
	loader *config.Loader
	logger *slog.Logger

	// Pipeline
	exporter   *metrics.Exporter
	recorder   *metrics.Recorder
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine
	runner     *engine.Runner

	// Frame sources
	ingestServer *ingest.Server
	client       *ingest.Client
	cameraMgr    *camera.Manager
	cameraSrc    *capture.Source

	// Dashboard and storage
	store     *calibration.Store
	webServer *web.Server

	injector dispatch.Injector
}

// Option configures an App.
type Option func(*App)

// WithLoader enables hot reload from the loader's file.
func WithLoader(l *config.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithInjector replaces the logging injector, for example with one that
// drives the OS cursor.
func WithInjector(inj dispatch.Injector) Option {
	return func(a *App) { a.injector = inj }
}

// New creates an application for a validated configuration.
func New(f *config.File, opts ...Option) (*App, error) {
	if f == nil {
		return nil, errors.New("app: nil configuration")
	}
	a := &App{file: f}
	for _, opt := range opts {
		opt(a)
	}
	debug.Frames = f.Log.DebugFrames
	debug.Enabled = debug.Enabled || f.Log.DebugFrames
	a.logger = log.With("component", "app")
	return a, nil
}

// Init builds every component. Call it after New and before Run.
func (a *App) Init(ctx context.Context) error {
	trackingCfg, err := a.file.TrackingConfig()
	if err != nil {
		return err
	}
	webCfg, err := a.file.WebConfig()
	if err != nil {
		return err
	}

	a.exporter = metrics.NewExporter()
	a.recorder, err = metrics.NewRecorder(a.exporter.Provider().Meter(metrics.ScopeName), nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	engineOpts := []engine.Option{engine.WithMetrics(a.recorder)}
	if err := a.openCalibration(ctx, &engineOpts); err != nil {
		return err
	}

	if a.injector == nil {
		a.injector = dispatch.LogInjector{Logger: log.With("component", "injector")}
	}
	a.dispatcher = dispatch.New(a.injector, dispatch.WithMetrics(a.recorder))

	a.engine, err = engine.New(trackingCfg, a.dispatcher, engineOpts...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// The dashboard needs the runner as its controller and the runner
	// publishes status to the dashboard, so the callback checks for nil.
	a.runner = engine.NewRunner(a.engine, nil,
		engine.WithRunnerMetrics(a.recorder),
		engine.WithStatusCallback(func(st engine.Status) {
			if a.webServer != nil {
				a.webServer.PublishStatus(st)
			}
		}),
	)

	webOpts := []web.Option{web.WithMetrics(a.exporter)}
	if a.store != nil {
		webOpts = append(webOpts, web.WithCalibrationStore(a.store))
	}
	if a.file.AcceptProviders() {
		a.ingestServer = ingest.NewServer(nil)
		a.ingestServer.OnFrame(func(_ string, f tracking.RawFrame) { a.runner.Offer(f) })
		a.ingestServer.OnControl(a.handleControl)
		webOpts = append(webOpts, web.WithIngest(a.ingestServer))
	}
	if a.file.Ingest.ProviderURL != "" {
		clientCfg, err := a.file.IngestClientConfig()
		if err != nil {
			return err
		}
		a.client, err = ingest.NewClient(clientCfg, func(_ string, f tracking.RawFrame) { a.runner.Offer(f) }, nil)
		if err != nil {
			return err
		}
		webOpts = append(webOpts, web.WithProviderStats(func() any { return a.client.Stats() }))
	}
	if a.file.Camera.Enabled {
		a.cameraMgr = camera.NewManager(a.file.CameraConfig())
		a.cameraSrc = capture.NewSource(a.cameraMgr, a.runner.Offer, nil)
		webOpts = append(webOpts, web.WithCamera(a.cameraMgr, a.cameraSrc.Stats))
	}
	if a.ingestServer == nil && a.client == nil && a.cameraSrc == nil {
		a.logger.Warn("no frame source configured; the cursor will stay paused")
	}

	a.webServer = web.NewServer(webCfg, a.runner, webOpts...)
	a.dispatcher.AddSink(a.webServer)

	a.logger.Info("initialized",
		"session", a.runner.SessionID(),
		"click", trackingCfg.ClickMethods(),
		"port", webCfg.Port,
		"providers", a.ingestServer != nil,
		"provider_url", a.file.Ingest.ProviderURL,
		"camera", a.cameraSrc != nil,
	)
	return nil
}

// openCalibration opens the profile store and applies the startup profile.
// A missing profile is logged, not fatal.
func (a *App) openCalibration(ctx context.Context, opts *[]engine.Option) error {
	cal := a.file.Calibration
	if cal.DB == "" {
		return nil
	}
	store, err := calibration.Open(cal.DB)
	if err != nil {
		return fmt.Errorf("calibration store: %w", err)
	}
	a.store = store

	if cal.Profile == "" {
		return nil
	}
	p, err := store.Load(ctx, cal.Profile)
	switch {
	case errors.Is(err, calibration.ErrNotFound):
		a.logger.Warn("calibration profile not found, starting uncalibrated", "profile", cal.Profile)
	case err != nil:
		return fmt.Errorf("load profile %q: %w", cal.Profile, err)
	default:
		*opts = append(*opts, engine.WithCalibration(p.Transform))
		a.logger.Info("calibration applied", "profile", p.Name, "residual", p.Residual)
	}
	return nil
}

// handleControl applies a provider's control request. Unknown actions are
// logged and ignored.
func (a *App) handleControl(providerID, action string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	switch action {
	case "pause":
		err = a.runner.Pause(ctx)
	case "resume":
		err = a.runner.Resume(ctx)
	case "toggle":
		err = a.runner.Toggle(ctx)
	default:
		a.logger.Warn("unknown control action", "provider", providerID, "action", action)
		return
	}
	if err != nil {
		a.logger.Warn("control request failed", "provider", providerID, "action", action, "error", err)
	}
}

// Run starts every component and blocks until ctx is done or the runner
// exits. Sources and the dashboard run until the runner has returned, so
// terminal events still reach dashboard subscribers.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srcCtx, stopSources := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSources()

	g.Go(func() error {
		err := a.runner.Run(gctx)
		stopSources()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if err := a.webServer.Start(srcCtx); err != nil && srcCtx.Err() == nil {
			return fmt.Errorf("web: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-srcCtx.Done()
		if err := a.webServer.Shutdown(); err != nil {
			a.logger.Debug("web shutdown", "error", err)
		}
		return nil
	})

	if a.client != nil {
		g.Go(func() error {
			a.client.Run(srcCtx)
			return nil
		})
	}
	if a.cameraSrc != nil {
		g.Go(func() error {
			a.cameraSrc.Run(srcCtx)
			return nil
		})
	}
	if a.loader != nil {
		a.watchConfig(srcCtx)
	}

	return g.Wait()
}

// watchConfig applies reloaded tracking and camera settings. Invalid
// files never reach here; the loader keeps the last good configuration.
func (a *App) watchConfig(ctx context.Context) {
	a.loader.OnChange(func(f *config.File) {
		cfg, err := f.TrackingConfig()
		if err != nil {
			a.logger.Warn("reloaded tracking config rejected", "error", err)
			return
		}
		rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.runner.Reconfigure(rctx, cfg); err != nil {
			a.logger.Warn("reconfigure failed", "error", err)
			return
		}
		if a.cameraMgr != nil && f.Camera.Enabled && f.CameraConfig() != a.cameraMgr.GetConfig() {
			if err := a.cameraMgr.SetConfig(f.CameraConfig()); err != nil {
				a.logger.Warn("camera config rejected", "error", err)
			}
		}
		a.logger.Info("configuration reloaded", "click", cfg.ClickMethods())
	})
	if err := a.loader.Watch(); err != nil {
		a.logger.Warn("config hot reload disabled", "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-a.loader.Errors():
				a.logger.Warn("config reload failed, keeping previous", "error", err)
			}
		}
	}()
}

// Shutdown releases resources. Safe after a failed Init.
func (a *App) Shutdown() {
	if a.runner != nil {
		a.runner.Stop()
	}
	if a.loader != nil {
		a.loader.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.exporter.Shutdown(ctx)
	}
	a.logger.Info("goodbye")
}

// Runner returns the engine runner.
func (a *App) Runner() *engine.Runner {
	return a.runner
}

// Web returns the dashboard server.
func (a *App) Web() *web.Server {
	return a.webServer
}
