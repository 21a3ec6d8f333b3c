package service

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/sumire/fleetdesk/internal/domain"
)

// SimulatorConfig controls the simulated en-route vehicle.
type SimulatorConfig struct {
	Interval time.Duration
	Steps    int
	DepotLat float64
	DepotLng float64
}

// Simulator feeds tracking sessions with a vehicle driving from a point near
// the depot toward it. It stops when the vehicle arrives or the session ends.
type Simulator struct {
	tracking *TrackingService
	cfg      SimulatorConfig
	log      *slog.Logger
	operator domain.Actor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulator creates a Simulator. Call Stop to release its goroutines.
func NewSimulator(tracking *TrackingService, cfg SimulatorConfig, logger *slog.Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		tracking: tracking,
		cfg:      cfg,
		log:      logger.With("component", "simulator"),
		operator: domain.Actor{ID: "simulator", Role: domain.RoleAdmin},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// HandleTransition starts a drive for each newly tracked request.
func (s *Simulator) HandleTransition(_ context.Context, e domain.TransitionEvent) error {
	if e.To != domain.RequestStatusApproved || !e.Request.TrackingEnabled {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drive(e.RequestID)
	}()
	return nil
}

// Stop cancels running drives and waits for them to exit.
func (s *Simulator) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Simulator) drive(requestID string) {
	startLat, startLng := s.origin(requestID)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for step := 0; step <= s.cfg.Steps; step++ {
		f := float64(step) / float64(s.cfg.Steps)
		pos := domain.Position{
			Lat: startLat + (s.cfg.DepotLat-startLat)*f,
			Lng: startLng + (s.cfg.DepotLng-startLng)*f,
		}
		if _, err := s.tracking.AppendSample(s.ctx, s.operator, requestID, pos); err != nil {
			if !errors.Is(err, domain.ErrNotActive) {
				s.log.Warn("simulated sample rejected", "request_id", requestID, "error", err)
			}
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
	s.log.Info("simulated vehicle arrived", "request_id", requestID)
}

// origin places the vehicle up to ~5km from the depot, stable per request.
func (s *Simulator) origin(requestID string) (float64, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(requestID))
	sum := h.Sum64()
	dLat := (float64(sum%1000)/1000 - 0.5) * 0.09
	dLng := (float64((sum/1000)%1000)/1000 - 0.5) * 0.09
	return clamp(s.cfg.DepotLat+dLat, -90, 90), clamp(s.cfg.DepotLng+dLng, -180, 180)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
