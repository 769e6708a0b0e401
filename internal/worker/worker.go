package worker

import (
	"context"
	"fmt"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/repcoach/engine/internal/cache"
	"github.com/repcoach/engine/internal/influx"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/storage"
	"github.com/repcoach/engine/pkg/core"
)

// ErrSessionNotActive is returned when a per-frame event references a session
// that is not in the live cache.
var ErrSessionNotActive = fmt.Errorf("session not active")

// Dependencies holds all dependencies for the worker manager.
// Influx may be nil when metrics are disabled.
type Dependencies struct {
	SessionCache *cache.SessionCache
	LogManager   *logging.SlogManager
	Influx       *influx.Manager
}

// Manager consumes dispatched session events and forwards them to the
// configured storage backend. The analysis pipeline itself runs in the
// connection goroutine; the manager only sees its output.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
}

// NewManager wires the handler set to its dependencies and backend.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// writeMetric sends a point to InfluxDB. Metric failures are logged and
// never fail the persistence path.
func (m *Manager) writeMetric(bucket string, point *influxdb2_write.Point) {
	if m.deps.Influx == nil || !m.deps.Influx.Ready() {
		return
	}
	if err := m.deps.Influx.WritePoint(context.Background(), bucket, point); err != nil {
		m.deps.LogManager.Logger().Error("Failed to write metric point",
			"bucket", bucket,
			"error", err)
	}
}

// ActiveSessions returns the number of sessions currently under analysis.
func (m *Manager) ActiveSessions() int {
	return m.deps.SessionCache.Len()
}

// QueueDepths reports the backend's internal write buffer sizes for
// monitoring. Returns zeros if the backend doesn't batch writes.
func (m *Manager) QueueDepths() core.QueueDepths {
	if p, ok := m.backend.(storage.Measurable); ok {
		return p.QueueDepths()
	}
	return core.QueueDepths{}
}

// LastWriteDuration returns the duration of the last backend write
// cycle, or 0 for backends that do not measure their writes.
func (m *Manager) LastWriteDuration() time.Duration {
	if p, ok := m.backend.(storage.Measurable); ok {
		return p.LastWriteDuration()
	}
	return 0
}
