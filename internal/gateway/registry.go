package gateway

import (
	"context"
	"sync"
	"time"

	"chat_gateway/pkg/logger"
)

// Registry is the process-wide set of live connections. Its only consumer
// beyond add/remove bookkeeping is coordinated graceful shutdown.
type Registry struct {
	mu    sync.Mutex
	conns map[*Connection]struct{}
	log   logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		conns: make(map[*Connection]struct{}),
		log:   log,
	}
}

func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

func (r *Registry) Remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Shutdown notifies every live connection, waits the grace interval, then
// closes each with the shutdown code. Connections that close on their own
// in the meantime are fine: Connection.close is idempotent.
func (r *Registry) Shutdown(ctx context.Context, grace time.Duration) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	if len(conns) == 0 {
		return
	}

	r.log.Info("shutting down live connections", "count", len(conns))

	var wg sync.WaitGroup
	for _, c := range conns {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()

			c.notifyShutdown()

			select {
			case <-time.After(grace):
			case <-ctx.Done():
			case <-c.closing:
			}

			c.close(CloseShutdown, "shutdown")
		}()
	}
	wg.Wait()
}
