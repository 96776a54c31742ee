// Package web provides the real-time dashboard and control API for the engine
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/camera"
	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/engine"
	"github.com/teslashibe/go-kursor/pkg/hub"
	"github.com/teslashibe/go-kursor/pkg/ingest"
	"github.com/teslashibe/go-kursor/pkg/metrics"
	"github.com/teslashibe/go-kursor/pkg/protocol"
)

// Controller is the part of engine.Runner the dashboard drives.
type Controller interface {
	Status() engine.Status
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Toggle(ctx context.Context) error
	Tuning(ctx context.Context) (engine.TuningParams, error)
	ApplyTuning(ctx context.Context, p engine.TuningParams) (engine.TuningParams, error)
	SetCalibration(ctx context.Context, a calibration.Affine) error
}

// Config configures the dashboard server.
type Config struct {
	Port           string        // Listen port
	StaticDir      string        // Dashboard assets, empty disables
	StatusInterval time.Duration // Minimum gap between status broadcasts
	RecentEvents   int           // Size of the /api/events buffer
	RequestTimeout time.Duration // Bound on control requests to the runner
}

// shutdownTimeout bounds how long Shutdown waits for open connections.
const shutdownTimeout = 2 * time.Second

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Port:           "8090",
		StatusInterval: 100 * time.Millisecond,
		RecentEvents:   200,
		RequestTimeout: 2 * time.Second,
	}
}

// Server is the web dashboard server. It is a dispatch.Sink: every
// dispatched batch is streamed to /ws/events subscribers.
type Server struct {
	app    *fiber.App
	cfg    Config
	ctl    Controller
	logger *slog.Logger

	// Recent events ring for /api/events
	recent   []protocol.EventData
	recentMu sync.RWMutex

	// Hubs for websocket broadcast
	eventsHub *hub.Hub
	statusHub *hub.Hub

	statusLimit *rate.Limiter

	// Calibration
	store   *calibration.Store
	calib   *calibration.Session
	calibMu sync.Mutex

	ingest        *ingest.Server
	providerStats func() any

	camera      *camera.Manager
	cameraStats func() camera.Stats
	metrics     *metrics.Exporter
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCalibrationStore enables named calibration profiles.
func WithCalibrationStore(st *calibration.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithIngest mounts the provider endpoints on the dashboard app.
func WithIngest(in *ingest.Server) Option {
	return func(s *Server) { s.ingest = in }
}

// WithProviderStats exposes outbound provider link stats on /api/provider.
func WithProviderStats(fn func() any) Option {
	return func(s *Server) { s.providerStats = fn }
}

// WithCamera exposes the local camera settings on /api/camera.
func WithCamera(m *camera.Manager, stats func() camera.Stats) Option {
	return func(s *Server) {
		s.camera = m
		s.cameraStats = stats
	}
}

// WithMetrics exposes the pipeline instruments on /api/metrics.
func WithMetrics(e *metrics.Exporter) Option {
	return func(s *Server) { s.metrics = e }
}

// NewServer creates a new web dashboard server
func NewServer(cfg Config, ctl Controller, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = def.RecentEvents
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	s := &Server{
		cfg:         cfg,
		ctl:         ctl,
		recent:      make([]protocol.EventData, 0, cfg.RecentEvents),
		statusLimit: rate.NewLimiter(rate.Every(cfg.StatusInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.L()
	}
	s.logger = s.logger.With("component", "web")
	s.eventsHub = hub.New("events", s.logger)
	s.statusHub = hub.New("status", s.logger)
	s.statusHub.SetWelcome(s.statusMessage)

	app := fiber.New(fiber.Config{
		AppName:               "kursor",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleGetEvents)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Post("/pause", s.handleControl(Controller.Pause))
	api.Post("/resume", s.handleControl(Controller.Resume))
	api.Post("/toggle", s.handleControl(Controller.Toggle))
	api.Get("/provider", s.handleProvider)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)

	cal := api.Group("/calibration")
	cal.Get("/", s.handleCalibrationStatus)
	cal.Delete("/", s.handleCalibrationClear)
	cal.Post("/start", s.handleCalibrationStart)
	cal.Post("/sample", s.handleCalibrationSample)
	cal.Post("/finish", s.handleCalibrationFinish)
	cal.Get("/profiles", s.handleListProfiles)
	cal.Post("/profiles/:name/apply", s.handleApplyProfile)
	cal.Delete("/profiles/:name", s.handleDeleteProfile)

	if s.ingest != nil {
		s.ingest.RegisterRoutes(app)
		s.ingest.RegisterAPIRoutes(api)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/events", websocket.New(s.eventsHub.Serve))
	app.Get("/ws/status", websocket.New(s.statusHub.Serve))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the hubs and blocks serving HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("web dashboard listening", "url", "http://localhost:"+s.cfg.Port)

	go s.eventsHub.Run(ctx)
	go s.statusHub.Run(ctx)

	return s.app.Listen(":" + s.cfg.Port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Publish implements dispatch.Sink. It is called on the processing
// goroutine and never blocks.
func (s *Server) Publish(b dispatch.Batch) {
	if len(b.Events) == 0 {
		return
	}
	msg, err := protocol.NewEventsMessage(b)
	if err != nil {
		s.logger.Warn("failed to encode events", "error", err)
		return
	}
	if data, err := msg.GetEventsData(); err == nil {
		s.remember(data.Events)
	}
	if m, err := hub.FromProtocol(msg); err == nil {
		s.eventsHub.Broadcast(m)
	}
}

func (s *Server) remember(events []protocol.EventData) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	s.recent = append(s.recent, events...)
	if over := len(s.recent) - s.cfg.RecentEvents; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

// PublishStatus broadcasts a status snapshot, at most once per
// StatusInterval. Pass it to engine.WithStatusCallback.
func (s *Server) PublishStatus(st engine.Status) {
	if !s.statusLimit.Allow() {
		return
	}
	msg, err := protocol.NewStatusMessage(st)
	if err != nil {
		return
	}
	if m, err := hub.FromProtocol(msg); err == nil {
		s.statusHub.Broadcast(m)
	}
}

func (s *Server) statusMessage() (hub.Message, bool) {
	if s.ctl == nil {
		return hub.Message{}, false
	}
	msg, err := protocol.NewStatusMessage(s.ctl.Status())
	if err != nil {
		return hub.Message{}, false
	}
	m, err := hub.FromProtocol(msg)
	return m, err == nil
}

// EventsHub returns the events hub for external use
func (s *Server) EventsHub() *hub.Hub {
	return s.eventsHub
}

// StatusHub returns the status hub for external use
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.eventsHub.Stop()
	s.statusHub.Stop()
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

var _ dispatch.Sink = (*Server)(nil)
