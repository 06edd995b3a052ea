package workers

import (
	"context"
	"log/slog"
	"time"

	"relaychat/domain"
	"relaychat/observability"
	"relaychat/runtime"
	"relaychat/services"
)

// HeartbeatSettings are the liveness knobs. IdleTimeout must exceed the
// request interval by enough slack that one missed probe is never fatal.
type HeartbeatSettings struct {
	RequestInterval time.Duration // heartbeat_request cadence per connection
	SweepInterval   time.Duration // how often stale entries are evicted
	IdleTimeout     time.Duration // silence threshold before eviction
}

func DefaultHeartbeatSettings() HeartbeatSettings {
	return HeartbeatSettings{
		RequestInterval: 15 * time.Second,
		SweepInterval:   30 * time.Second,
		IdleTimeout:     60 * time.Second,
	}
}

// HeartbeatWorker probes every live connection and evicts the ones that
// have gone silent. Eviction reuses the normal disconnect path, so room
// departures, counters, and offline transitions happen exactly once.
type HeartbeatWorker struct {
	registry *runtime.Registry
	presence services.IPresenceService
	monitor  *observability.Monitor
	settings HeartbeatSettings
	log      *slog.Logger
	now      func() time.Time
}

func NewHeartbeatWorker(
	registry *runtime.Registry,
	presence services.IPresenceService,
	monitor *observability.Monitor,
	settings HeartbeatSettings,
	log *slog.Logger,
) *HeartbeatWorker {
	return &HeartbeatWorker{
		registry: registry,
		presence: presence,
		monitor:  monitor,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat monitor",
		"request_interval", w.settings.RequestInterval,
		"sweep_interval", w.settings.SweepInterval,
		"idle_timeout", w.settings.IdleTimeout)

	requestTicker := time.NewTicker(w.settings.RequestInterval)
	defer requestTicker.Stop()
	sweepTicker := time.NewTicker(w.settings.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-requestTicker.C:
			w.probe()
		case <-sweepTicker.C:
			w.Sweep(ctx)
		}
	}
}

// probe asks every connection to prove it is alive. A saturated sink is
// fine here: the client's next frame of any kind also refreshes liveness.
func (w *HeartbeatWorker) probe() {
	e := domain.Event{Name: domain.EventHeartbeatRequest}
	for _, sink := range w.registry.AllSinks() {
		if err := sink.Send(e); err != nil {
			w.log.Debug("Heartbeat request dropped", "error", err)
		}
	}
}

// Sweep evicts every connection silent past the idle timeout.
func (w *HeartbeatWorker) Sweep(ctx context.Context) {
	cutoff := w.now().Add(-w.settings.IdleTimeout)
	for _, socketID := range w.registry.StaleSockets(cutoff) {
		entry, ok := w.registry.Get(socketID)
		if !ok {
			continue
		}
		w.log.Info("Evicting stale connection",
			"socket_id", socketID,
			"user_id", entry.Identity.UserID,
			"last_heartbeat", entry.LastHeartbeat)
		w.presence.Disconnect(ctx, socketID)
		w.monitor.IncrEvictions()
	}
}
