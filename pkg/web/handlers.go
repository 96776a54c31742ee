package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/camera"
	"github.com/teslashibe/go-kursor/pkg/engine"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// errorStatus maps engine and calibration errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, tracking.ErrInvalidConfig),
		errors.Is(err, calibration.ErrTooFewPoints),
		errors.Is(err, calibration.ErrDegenerate),
		errors.Is(err, camera.ErrInvalidConfig),
		errors.Is(err, camera.ErrUnknownPreset):
		return fiber.StatusBadRequest
	case errors.Is(err, calibration.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, engine.ErrStopped):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.cfg.RequestTimeout)
}

// handleStatus returns the engine's current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctl.Status())
}

// handleGetEvents returns recently dispatched events, oldest first
func (s *Server) handleGetEvents(c *fiber.Ctx) error {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return c.JSON(s.recent)
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	p, err := s.ctl.Tuning(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var p engine.TuningParams
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tuning body: " + err.Error(),
		})
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	out, err := s.ctl.ApplyTuning(ctx, p)
	if err != nil {
		return fail(c, err)
	}
	s.logger.Info("tuning applied from dashboard", "preset", p.Preset)
	return c.JSON(out)
}

// handleControl adapts a pause/resume/toggle call into a handler.
func (s *Server) handleControl(fn func(Controller, context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		if err := fn(s.ctl, ctx); err != nil {
			return fail(c, err)
		}
		st := s.ctl.Status()
		return c.JSON(fiber.Map{
			"state": st.State,
		})
	}
}

func (s *Server) handleProvider(c *fiber.Ctx) error {
	if s.providerStats == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no outbound provider configured",
		})
	}
	return c.JSON(s.providerStats())
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.metrics == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "metrics not enabled",
		})
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	points, err := s.metrics.Collect(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"metrics": points})
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera source not enabled",
		})
	}
	resp := fiber.Map{
		"config":  s.camera.GetConfig(),
		"presets": camera.PresetNames(),
	}
	if s.cameraStats != nil {
		resp["stats"] = s.cameraStats()
	}
	return c.JSON(resp)
}

func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera source not enabled",
		})
	}
	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	cfg, err := s.camera.Apply(u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(cfg)
}

// =============================================================================
// Calibration
// =============================================================================

// CalibrationStartRequest starts a calibration session.
type CalibrationStartRequest struct {
	Grid   int     `json:"grid"`   // Targets per side
	Margin float64 `json:"margin"` // Inset from the screen edge
}

// CalibrationSampleRequest records the current gaze estimate for a target.
type CalibrationSampleRequest struct {
	Target int `json:"target"`
}

// CalibrationFinishRequest fits the session. A non-empty name also saves
// the result as a profile.
type CalibrationFinishRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCalibrationStatus(c *fiber.Ctx) error {
	s.calibMu.Lock()
	sess := s.calib
	s.calibMu.Unlock()

	resp := fiber.Map{
		"calibrated": s.ctl.Status().Calibrated,
		"active":     sess != nil,
	}
	if sess != nil {
		resp["targets"] = sess.Targets()
		resp["points"] = len(sess.Points())
	}
	return c.JSON(resp)
}

func (s *Server) handleCalibrationStart(c *fiber.Ctx) error {
	req := CalibrationStartRequest{Grid: 3, Margin: 0.1}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.Margin < 0 || req.Margin >= 0.5 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "margin must be in [0, 0.5)"})
	}
	sess := calibration.NewSession(calibration.GridTargets(req.Grid, req.Margin))

	s.calibMu.Lock()
	s.calib = sess
	s.calibMu.Unlock()

	return c.JSON(fiber.Map{
		"targets": sess.Targets(),
	})
}

// handleCalibrationSample reads the current raw gaze signal and records it
// against the target the user is looking at.
func (s *Server) handleCalibrationSample(c *fiber.Ctx) error {
	var req CalibrationSampleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.calibMu.Lock()
	sess := s.calib
	s.calibMu.Unlock()
	if sess == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no calibration session"})
	}

	gaze, ok := freshGaze(s.ctl.Status())
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no fresh gaze signal"})
	}
	if !sess.Add(req.Target, gaze) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target out of range"})
	}
	return c.JSON(fiber.Map{
		"target": req.Target,
		"raw":    gaze,
		"points": len(sess.Points()),
	})
}

func freshGaze(st engine.Status) (tracking.Vec2, bool) {
	for _, sig := range st.Signals {
		if sig.Kind == tracking.Gaze && sig.Seen && sig.Staleness == 0 {
			return sig.Position, true
		}
	}
	return tracking.Vec2{}, false
}

func (s *Server) handleCalibrationFinish(c *fiber.Ctx) error {
	var req CalibrationFinishRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	s.calibMu.Lock()
	sess := s.calib
	s.calibMu.Unlock()
	if sess == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no calibration session"})
	}

	t, residual, err := sess.Compute()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.ctl.SetCalibration(ctx, t); err != nil {
		return fail(c, err)
	}

	if req.Name != "" && s.store != nil {
		p := calibration.Profile{Name: req.Name, Transform: t, Residual: residual, Points: len(sess.Points())}
		if err := s.store.Save(ctx, p); err != nil {
			return fail(c, err)
		}
	}

	s.calibMu.Lock()
	if s.calib == sess {
		s.calib = nil
	}
	s.calibMu.Unlock()

	s.logger.Info("calibration applied", "residual", residual, "profile", req.Name)
	return c.JSON(fiber.Map{
		"transform": t,
		"residual":  residual,
		"saved":     req.Name != "" && s.store != nil,
	})
}

func (s *Server) handleCalibrationClear(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.ctl.SetCalibration(ctx, calibration.Identity()); err != nil {
		return fail(c, err)
	}
	s.calibMu.Lock()
	s.calib = nil
	s.calibMu.Unlock()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListProfiles(c *fiber.Ctx) error {
	if s.store == nil {
		return c.JSON([]calibration.Profile{})
	}
	profiles, err := s.store.List(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(profiles)
}

func (s *Server) handleApplyProfile(c *fiber.Ctx) error {
	if s.store == nil {
		return fail(c, calibration.ErrNotFound)
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	p, err := s.store.Load(ctx, c.Params("name"))
	if err != nil {
		return fail(c, err)
	}
	if err := s.ctl.SetCalibration(ctx, p.Transform); err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleDeleteProfile(c *fiber.Ctx) error {
	if s.store == nil {
		return fail(c, calibration.ErrNotFound)
	}
	if err := s.store.Delete(c.UserContext(), c.Params("name")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
