// Package server composes the detection ingest pipeline: normalize at the
// boundary, broadcast every submission to live viewers, persist the ones the
// save-interval gate accepts, and answer aggregate queries from the store.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/firewatch/detection-server/internal/logger"
	"github.com/firewatch/detection-server/internal/metrics"
	"github.com/firewatch/detection-server/pkg/types"
)

// storeTimeout bounds every store round-trip issued by a request handler so a
// stalled database cannot pin request goroutines.
const storeTimeout = 5 * time.Second

// EventStore is the slice of the persistence layer the boundary needs.
type EventStore interface {
	Append(ctx context.Context, ev types.DetectionEvent) (int64, error)
	TodayCounts(ctx context.Context) (fire, smoke int64, err error)
	RecentAlerts(ctx context.Context, limit int) ([]types.DetectionEvent, error)
}

// CountCache caches the today-counts aggregate. Implementations are best
// effort: a miss or failure falls through to the store.
type CountCache interface {
	TodayCounts(ctx context.Context) (fire, smoke int64, ok bool)
	SetTodayCounts(ctx context.Context, fire, smoke int64)
}

// Deps are the collaborators wired in at startup. Store and Cache may be nil:
// without a store the server runs broadcast-only, without a cache every
// counts query hits the store.
type Deps struct {
	Store   EventStore
	Cache   CountCache
	Metrics *metrics.Metrics
}

// Server is the HTTP boundary of the detection pipeline.
type Server struct {
	cfg     Config
	store   EventStore
	cache   CountCache
	metrics *metrics.Metrics
	hub     *Hub
	gate    *Gate
}

// NewServer returns a configured server.
func NewServer(cfg Config, deps Deps) *Server {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:     cfg,
		store:   deps.Store,
		cache:   deps.Cache,
		metrics: m,
		hub:     NewHub(),
		gate:    NewGate(cfg.SaveInterval),
	}
}

// Hub exposes the broadcast hub so background producers (synthetic source)
// can publish through the same path as request handlers.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/detections/", s.handleDetections)
	mux.HandleFunc("/get_today_counts", s.handleTodayCounts)
	mux.HandleFunc("/get_logs/", s.handleLogs)
	mux.HandleFunc("/ws/detections", s.handleDetectionsWS)
	mux.HandleFunc("/video_feed", s.handleVideoFeed)
	mux.HandleFunc("/api/system_status", s.handleSystemStatus)

	return corsMiddleware(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleDetections accepts one detection submission. The live broadcast is
// the primary contract: a store failure is logged and the request still
// succeeds.
func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload types.DetectionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONWithStatus(w, map[string]any{
			"status":  "error",
			"message": "Invalid detection payload",
		}, http.StatusBadRequest)
		return
	}

	ev := s.Ingest(r.Context(), payload)
	logger.Debug("Ingest", "Received %s from %s (confidence %.2f)",
		ev.ClassName, ev.AIServerID, ev.Confidence)

	writeJSON(w, map[string]any{
		"status":  "success",
		"message": "Detection received and broadcasted.",
	})
}

// Ingest runs one submission through the pipeline: normalize, broadcast to
// every subscriber, then persist iff the gate accepts. Both the HTTP handler
// and the MQTT bridge call this.
func (s *Server) Ingest(ctx context.Context, payload types.DetectionPayload) types.DetectionEvent {
	now := time.Now()
	ev := types.Normalize(payload, s.cfg.AIServerID, now)
	s.metrics.EventsReceived.Add(1)

	if ev.Confidence < 0 || ev.Confidence > 1 {
		logger.Warn("Ingest", "Confidence %.3f outside [0,1] from %s, storing as sent",
			ev.Confidence, ev.AIServerID)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		// Cannot happen with this event shape; keep the submission anyway.
		logger.Error("Ingest", "Marshal detection event: %v", err)
		return ev
	}
	s.publish(data)

	if !s.gate.Accept(ev.AIServerID, now) {
		s.metrics.EventsGateSkipped.Add(1)
		logger.Debug("Ingest", "Store write skipped for %s (save interval not met)", ev.AIServerID)
		return ev
	}
	if s.store == nil {
		return ev
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	id, err := s.store.Append(storeCtx, ev)
	if err != nil {
		s.metrics.StoreErrors.Add(1)
		logger.Error("Ingest", "Store write failed: %v", err)
		return ev
	}
	ev.ID = id
	s.metrics.EventsPersisted.Add(1)
	return ev
}

func (s *Server) publish(message []byte) {
	dropped := s.hub.Publish(message)
	s.metrics.BroadcastsSent.Add(1)
	if dropped > 0 {
		s.metrics.SubscribersDropped.Add(uint64(dropped))
		s.metrics.ActiveSubscribers.Store(uint64(s.hub.ClientCount()))
	}
}

func (s *Server) handleTodayCounts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, map[string]any{
			"status":  "error",
			"message": "Database connection failed.",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if s.cache != nil {
		if fire, smoke, ok := s.cache.TodayCounts(ctx); ok {
			writeCounts(w, fire, smoke)
			return
		}
	}

	fire, smoke, err := s.store.TodayCounts(ctx)
	if err != nil {
		s.metrics.StoreErrors.Add(1)
		logger.Error("Query", "Today counts failed: %v", err)
		writeJSON(w, map[string]any{
			"status":  "error",
			"message": "Statistics retrieval failed.",
		})
		return
	}

	if s.cache != nil {
		s.cache.SetTodayCounts(ctx, fire, smoke)
	}
	writeCounts(w, fire, smoke)
}

func writeCounts(w http.ResponseWriter, fire, smoke int64) {
	writeJSON(w, map[string]any{
		"status": "success",
		"data": map[string]any{
			"fire_count":  fire,
			"smoke_count": smoke,
		},
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, map[string]any{
			"status":  "error",
			"message": "Database connection failed.",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	alerts, err := s.store.RecentAlerts(ctx, 0)
	if err != nil {
		s.metrics.StoreErrors.Add(1)
		logger.Error("Query", "Recent alerts failed: %v", err)
		writeJSON(w, map[string]any{
			"status":  "error",
			"message": "Log retrieval failed.",
		})
		return
	}

	writeJSON(w, map[string]any{
		"status": "success",
		"data":   alerts,
	})
}

// corsMiddleware allows browser dashboards served from other origins to call
// the API, matching the original deployment's allow-all policy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("HTTP", "Encode response: %v", err)
	}
}
