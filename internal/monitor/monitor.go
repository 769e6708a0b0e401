// Package monitor samples engine health once a second while sessions
// are active, mirrors the latest sample to a status file, and routes
// it into the event pipeline for persistence.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/repcoach/engine/internal/dispatcher"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/worker"
	"github.com/repcoach/engine/pkg/core"

	"gorm.io/gorm"
)

// Dependencies holds everything the status monitor reads from.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	Dispatcher    *dispatcher.Dispatcher
	WorkerManager *worker.Manager
	StatusDir     string
}

// Service runs the periodic health sampler.
type Service struct {
	deps    Dependencies
	mu      sync.RWMutex
	running bool
	stop    chan struct{}
}

// NewService creates a stopped monitor. Call Start to begin sampling.
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// IsRunning reports whether the sampler goroutine is alive.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Snapshot gathers a point-in-time health sample.
func (s *Service) Snapshot() core.EnginePerformance {
	return core.EnginePerformance{
		Time:                time.Now(),
		ActiveSessions:      s.deps.WorkerManager.ActiveSessions(),
		Goroutines:          runtime.NumGoroutine(),
		QueueDepths:         s.deps.WorkerManager.QueueDepths(),
		LastWriteDurationMs: float64(s.deps.WorkerManager.LastWriteDuration().Milliseconds()),
	}
}

// Start launches the sampler goroutine. Calling Start on a running
// service is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.run(s.stop)
	return nil
}

// Stop terminates the sampler goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stop)
		s.running = false
	}
}

func (s *Service) run(stop chan struct{}) {
	log := s.deps.LogManager.Logger()

	path := filepath.Join(s.deps.StatusDir, "status.txt")
	file, err := os.Create(path)
	if err != nil {
		log.Error("Error creating status file", "path", path, "error", err)
	} else {
		defer file.Close()
	}
	log.Debug("Status monitor running", "path", path)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.deps.WorkerManager.ActiveSessions() == 0 {
				continue
			}
			s.sample(file)
		}
	}
}

// sample rewrites the status file with the current health snapshot and
// dispatches it for persistence.
func (s *Service) sample(file *os.File) {
	log := s.deps.LogManager.Logger()
	perf := s.Snapshot()

	if file != nil {
		body, err := json.MarshalIndent(perf, "", "  ")
		if err != nil {
			body = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
		}
		file.Truncate(0)
		file.Seek(0, 0)
		file.Write(append(body, '\n'))
	}

	payload, err := json.Marshal(worker.PerformanceEvent{Performance: perf})
	if err != nil {
		log.Error("Error marshalling performance sample", "error", err)
		return
	}
	if _, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Kind:      worker.EventPerformance,
		Payload:   payload,
		Timestamp: perf.Time,
	}); err != nil {
		log.Error("Error dispatching performance sample", "error", err)
	}
}

// ValidateHypertables converts the given tables into TimescaleDB
// hypertables partitioned on their time column, with compression
// segmented by the listed columns. Tables already registered with
// Timescale are left alone.
func (s *Service) ValidateHypertables(tables map[string][]string) error {
	log := s.deps.LogManager.Logger()

	for table, segmentBy := range tables {
		if s.hypertableExists(table) {
			log.Info("Hypertable already configured", "table", table)
			continue
		}
		if err := s.createHypertable(table, segmentBy); err != nil {
			log.Error("Hypertable setup failed", "table", table, "error", err)
			return err
		}
		log.Info("Created compressed hypertable", "table", table)
	}
	return nil
}

func (s *Service) hypertableExists(table string) bool {
	row := any(nil)
	s.deps.DB.Exec(
		`SELECT x.* FROM timescaledb_information.hypertables WHERE hypertable_name = ?`,
		table,
	).Scan(&row)
	return row != nil
}

func (s *Service) createHypertable(table string, segmentBy []string) error {
	steps := []struct {
		name  string
		query string
		args  []any
	}{
		{
			"create",
			fmt.Sprintf(`SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true)`, table),
			nil,
		},
		{
			"compression",
			fmt.Sprintf(`ALTER TABLE %s SET (timescaledb.compress, timescaledb.compress_segmentby = ?)`, table),
			[]any{strings.Join(segmentBy, ",")},
		},
		{
			"compression policy",
			fmt.Sprintf(`SELECT add_compression_policy('%s', compress_after => interval '14 day')`, table),
			nil,
		},
	}

	for _, step := range steps {
		if err := s.deps.DB.Exec(step.query, step.args...).Error; err != nil {
			return fmt.Errorf("%s for %s: %w", step.name, table, err)
		}
	}
	return nil
}
