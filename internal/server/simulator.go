package server

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/firewatch/detection-server/internal/logger"
	"github.com/firewatch/detection-server/internal/metrics"
	"github.com/firewatch/detection-server/pkg/types"
)

// Simulator fabricates plausible fire/smoke detections on a timer so the
// broadcast hub and viewer UI are exercisable with no real detector attached.
// It publishes through the exact same hub as real ingress, broadcast-only:
// synthetic events never touch the store.
type Simulator struct {
	hub      *Hub
	metrics  *metrics.Metrics
	sourceID string
	tick     time.Duration
	chance   float64
	rng      *rand.Rand
}

// NewSimulator returns a simulator emitting events with the given per-tick
// probability.
func NewSimulator(hub *Hub, m *metrics.Metrics, sourceID string, tick time.Duration, chance float64) *Simulator {
	return &Simulator{
		hub:      hub,
		metrics:  m,
		sourceID: sourceID,
		tick:     tick,
		chance:   chance,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops until ctx is cancelled. Intended to be started once on a
// dedicated goroutine at process startup.
func (s *Simulator) Run(ctx context.Context) {
	logger.Info("Simulator", "Synthetic source running (tick=%v, chance=%.2f)", s.tick, s.chance)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulator", "Synthetic source stopped")
			return
		case <-ticker.C:
			if s.rng.Float64() >= s.chance {
				continue
			}
			ev := s.randomEvent(time.Now())
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("Simulator", "Marshal synthetic event: %v", err)
				continue
			}
			s.hub.Publish(data)
			if s.metrics != nil {
				s.metrics.SimulatedEvents.Add(1)
				s.metrics.BroadcastsSent.Add(1)
			}
		}
	}
}

func (s *Simulator) randomEvent(now time.Time) types.DetectionEvent {
	class := types.ClassFire
	if s.rng.Intn(2) == 1 {
		class = types.ClassSmoke
	}

	x := round2(s.uniform(0.1, 0.9))
	y := round2(s.uniform(0.1, 0.9))
	w := round2(s.uniform(0.1, 0.3))
	h := round2(s.uniform(0.1, 0.3))

	return types.DetectionEvent{
		Timestamp:       now,
		AIServerID:      s.sourceID,
		ClassName:       class,
		ObjectType:      class,
		Confidence:      round2(s.uniform(0.65, 0.98)),
		IsFireDetected:  class == types.ClassFire,
		IsSmokeDetected: class == types.ClassSmoke,
		LocationX:       &x,
		LocationY:       &y,
		BoxWidth:        &w,
		BoxHeight:       &h,
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
