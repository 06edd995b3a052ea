// Package observability aggregates runtime counters for the debug surface.
package observability

import (
	"sync/atomic"
	"time"
)

// Monitor collects realtime telemetry with atomic counters. It is shared
// by the transport, the services, and the resilience layer; nothing here
// ever blocks a hot path.
type Monitor struct {
	startedAt time.Time

	connectionsOpened uint64
	connectionsClosed uint64
	broadcasts        uint64
	messagesRouted    uint64
	evictions         uint64
	breakerTrips      uint64
	rateLimited       uint64
	authRejections    uint64
}

func NewMonitor() *Monitor {
	return &Monitor{startedAt: time.Now()}
}

func (m *Monitor) IncrConnectionsOpened() { atomic.AddUint64(&m.connectionsOpened, 1) }
func (m *Monitor) IncrConnectionsClosed() { atomic.AddUint64(&m.connectionsClosed, 1) }
func (m *Monitor) IncrBroadcasts()        { atomic.AddUint64(&m.broadcasts, 1) }
func (m *Monitor) IncrMessagesRouted()    { atomic.AddUint64(&m.messagesRouted, 1) }
func (m *Monitor) IncrEvictions()         { atomic.AddUint64(&m.evictions, 1) }
func (m *Monitor) IncrBreakerTrips()      { atomic.AddUint64(&m.breakerTrips, 1) }
func (m *Monitor) IncrRateLimited()       { atomic.AddUint64(&m.rateLimited, 1) }
func (m *Monitor) IncrAuthRejections()    { atomic.AddUint64(&m.authRejections, 1) }

func (m *Monitor) Evictions() uint64 { return atomic.LoadUint64(&m.evictions) }

// Snapshot returns the counters for the stats endpoint and the inspect page.
func (m *Monitor) Snapshot() map[string]any {
	return map[string]any{
		"uptime":             time.Since(m.startedAt).Round(time.Second).String(),
		"connections_opened": atomic.LoadUint64(&m.connectionsOpened),
		"connections_closed": atomic.LoadUint64(&m.connectionsClosed),
		"broadcasts":         atomic.LoadUint64(&m.broadcasts),
		"messages_routed":    atomic.LoadUint64(&m.messagesRouted),
		"evictions":          atomic.LoadUint64(&m.evictions),
		"breaker_trips":      atomic.LoadUint64(&m.breakerTrips),
		"rate_limited":       atomic.LoadUint64(&m.rateLimited),
		"auth_rejections":    atomic.LoadUint64(&m.authRejections),
	}
}
