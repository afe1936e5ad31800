package gateway

import (
	"context"
	"sync"
	"time"

	"chat_gateway/pkg/logger"
)

// heartbeatMonitor owns the liveness loop of one authenticated connection:
// it emits pings, watches the pong gap, and re-runs the access check on a
// longer period so a revocation does not outlive the recheck interval.
type heartbeatMonitor struct {
	interval        time.Duration
	timeout         time.Duration
	recheckInterval time.Duration

	lastPong func() time.Time
	sendPing func(ts time.Time)
	recheck  func(ctx context.Context) (bool, error)
	// terminate is invoked at most once, from the monitor goroutine.
	terminate func(code CloseCode, reason string)

	log logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newHeartbeatMonitor(
	interval, timeout, recheckInterval time.Duration,
	lastPong func() time.Time,
	sendPing func(ts time.Time),
	recheck func(ctx context.Context) (bool, error),
	terminate func(code CloseCode, reason string),
	log logger.Logger,
) *heartbeatMonitor {
	return &heartbeatMonitor{
		interval:        interval,
		timeout:         timeout,
		recheckInterval: recheckInterval,
		lastPong:        lastPong,
		sendPing:        sendPing,
		recheck:         recheck,
		terminate:       terminate,
		log:             log,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (h *heartbeatMonitor) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop cancels the loop and waits for it to exit, so a tick can never fire
// against a connection that is already torn down.
func (h *heartbeatMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *heartbeatMonitor) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	lastRecheck := time.Now()

	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(h.lastPong()) > h.timeout {
				h.terminate(CloseHeartbeatTimeout, "heartbeat-timeout")
				return
			}

			if h.recheckInterval > 0 && time.Since(lastRecheck) >= h.recheckInterval {
				lastRecheck = time.Now()
				allowed, err := h.recheck(ctx)
				if err != nil {
					// Collaborator hiccups do not kill a live session;
					// the next recheck gets another chance.
					h.log.Warn("access recheck failed", "error", err)
				} else if !allowed {
					h.terminate(CloseForbidden, "permissions-changed")
					return
				}
			}

			h.sendPing(time.Now())
		}
	}
}
