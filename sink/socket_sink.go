// Package sink buffers outbound events per connection so broadcasters are
// never blocked by one slow client.
package sink

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relaychat/domain"
	"relaychat/errors"
)

type SocketSink struct {
	events    chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
	log       *slog.Logger
}

func NewSocketSink(bufferSize int, timeout time.Duration, log *slog.Logger) *SocketSink {
	return &SocketSink{
		events:  make(chan domain.Event, bufferSize),
		done:    make(chan struct{}),
		timeout: timeout,
		log:     log,
	}
}

// Send enqueues an event for the connection's writer. When the buffer stays
// full past the delivery timeout the event is dropped and an error returned;
// the broadcaster logs and moves on rather than stalling the whole room.
func (s *SocketSink) Send(e domain.Event) error {
	select {
	case <-s.done:
		return errors.ErrSinkClosed
	default:
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrSinkClosed
	case <-timer.C:
		s.log.Warn("Dropping event for slow connection", "event", e.Name)
		return fmt.Errorf("%s: %w", e.Name, errors.ErrDeliveryTimeout)
	}
}

// Events is consumed by the connection's writer goroutine.
func (s *SocketSink) Events() <-chan domain.Event { return s.events }

// Done is closed when the sink is shut down, which force-disconnects the
// socket on the transport side.
func (s *SocketSink) Done() <-chan struct{} { return s.done }

// Close is idempotent and safe to call from any goroutine.
func (s *SocketSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
