// Package influx exports session metrics and engine health samples to
// InfluxDB. When the server is unreachable, points are appended to a
// gzip backup file in line protocol so nothing is lost.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/pkg/core"
)

// Buckets used by the engine.
const (
	BucketSessionData       = "session_data"
	BucketEnginePerformance = "engine_performance"
)

const (
	writeBatchSize     = 2500
	flushIntervalMs    = 1000
	bucketRetentionSec = 60 * 60 * 24 * 90 // 90 days
)

// DefaultBucketNames are the InfluxDB buckets the engine writes to.
var DefaultBucketNames = []string{
	BucketSessionData,
	BucketEnginePerformance,
}

// Manager owns the InfluxDB client and one async writer per bucket.
type Manager struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string

	client     influxdb2.Client
	writers    map[string]influxdb2_api.WriteAPI
	buckets    []string
	live       bool
	backup     *gzip.Writer
	backupFile *os.File
}

// NewManager creates a disconnected manager. Call Connect before
// writing points.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:        cfg,
		log:        log,
		backupPath: backupPath,
		writers:    make(map[string]influxdb2_api.WriteAPI),
		buckets:    DefaultBucketNames,
	}
}

// Ready reports whether points can go somewhere, either the live
// client or the backup file.
func (m *Manager) Ready() bool {
	return m.live || m.backup != nil
}

// Connect pings the configured server and prepares the writers. An
// unreachable server is not an error: the manager degrades to the
// backup file and keeps accepting points.
func (m *Manager) Connect() error {
	if !m.cfg.Enabled {
		return errors.New("metrics export is disabled")
	}

	m.client = influxdb2.NewClientWithOptions(m.cfg.URL(), m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(writeBatchSize).
			SetFlushInterval(flushIntervalMs),
	)

	up, err := m.client.Ping(context.Background())
	if err != nil || !up {
		m.log.Warn().Str("url", m.cfg.URL()).Str("backup", m.backupPath).
			Msg("InfluxDB unreachable, appending points to backup file")
		return m.openBackup()
	}

	if err := m.ensureOrganization(); err != nil {
		return err
	}
	if err := m.ensureBuckets(); err != nil {
		return err
	}
	m.startWriters()
	m.live = true

	m.log.Info().Str("url", m.cfg.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening metrics backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureOrganization() error {
	ctx := context.Background()
	api := m.client.OrganizationsAPI()

	if _, err := api.FindOrganizationByName(ctx, m.cfg.Org); err == nil {
		return nil
	}
	m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
	if _, err := api.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
		return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
	}
	return nil
}

func (m *Manager) ensureBuckets() error {
	ctx := context.Background()
	org, err := m.client.OrganizationsAPI().FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		return fmt.Errorf("looking up organization %s: %w", m.cfg.Org, err)
	}

	retention := domain.RetentionRuleTypeExpire
	for _, bucket := range m.buckets {
		if _, err := m.client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.log.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
		_, err := m.client.BucketsAPI().CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &retention,
			EverySeconds: bucketRetentionSec,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// startWriters builds the async write APIs and drains their error
// channels into the log.
func (m *Manager) startWriters() {
	for _, bucket := range m.buckets {
		w := m.client.WriteAPI(m.cfg.Org, bucket)
		m.writers[bucket] = w

		go func(bucket string, errs <-chan error) {
			for err := range errs {
				m.log.Error().Err(err).Str("bucket", bucket).Msg("Async metric write failed")
			}
		}(bucket, w.Errors())
	}
	m.log.Debug().Int("writers", len(m.writers)).Msg("InfluxDB writers initialized")
}

// WritePoint queues a point for the named bucket, or appends it to the
// backup file when the server is down.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.live {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("bucket %q has no writer", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.backup == nil {
		return errors.New("no influx client and no backup writer")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.backup.Write([]byte(line)); err != nil {
		return fmt.Errorf("appending to metrics backup: %w", err)
	}
	return nil
}

// Close flushes the async writers and finishes the backup stream.
func (m *Manager) Close() {
	for _, w := range m.writers {
		w.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	if m.backup != nil {
		if err := m.backup.Close(); err != nil {
			m.log.Error().Err(err).Msg("Error closing metrics backup writer")
		}
		m.backupFile.Close()
		m.backup, m.backupFile = nil, nil
	}
}

// SummaryPoint builds the point recorded when a session finishes.
func SummaryPoint(s core.Session, sum core.SessionSummary) (bucket string, point *influxdb2_write.Point) {
	point = influxdb2_write.NewPointWithMeasurement("session_summary").
		AddTag("exercise", string(s.Exercise)).
		AddTag("subject", s.Subject).
		AddTag("session_id", s.ID).
		AddField("duration", sum.Duration).
		AddField("frames", int(sum.FrameCount)).
		AddField("skipped_frames", int(sum.SkippedBad)).
		AddField("reps", sum.RepCount).
		AddField("cues", len(sum.FeedbackLog)).
		SetTime(sum.EndedAt)
	return BucketSessionData, point
}

// RepPoint builds the point recorded for each counted repetition,
// stamped at the rep's end relative to the session start.
func RepPoint(s core.Session, r core.Rep) (bucket string, point *influxdb2_write.Point) {
	stamp := s.StartedAt.Add(time.Duration(r.EndTime * float64(time.Second)))
	point = influxdb2_write.NewPointWithMeasurement("rep").
		AddTag("exercise", string(s.Exercise)).
		AddTag("subject", s.Subject).
		AddTag("session_id", s.ID).
		AddField("index", r.Index).
		AddField("duration", r.Duration).
		AddField("min_angle", r.MinAngle).
		SetTime(stamp)
	return BucketSessionData, point
}

// FeedbackPoint builds the point recorded for each coaching cue.
func FeedbackPoint(s core.Session, ev core.FeedbackEvent) (bucket string, point *influxdb2_write.Point) {
	stamp := s.StartedAt.Add(time.Duration(ev.RelativeTime * float64(time.Second)))
	point = influxdb2_write.NewPointWithMeasurement("feedback").
		AddTag("exercise", string(s.Exercise)).
		AddTag("subject", s.Subject).
		AddTag("session_id", s.ID).
		AddTag("kind", string(ev.Kind)).
		AddField("message", ev.Message).
		AddField("frame_index", int(ev.FrameIndex)).
		SetTime(stamp)
	return BucketSessionData, point
}

// PerformancePoint builds the point recorded from each engine health sample.
func PerformancePoint(p core.EnginePerformance) (bucket string, point *influxdb2_write.Point) {
	point = influxdb2_write.NewPointWithMeasurement("engine_performance").
		AddField("active_sessions", p.ActiveSessions).
		AddField("goroutines", p.Goroutines).
		AddField("queued_frames", p.QueueDepths.FrameSamples).
		AddField("queued_reps", p.QueueDepths.Reps).
		AddField("queued_feedback", p.QueueDepths.FeedbackEvents).
		AddField("queued_performances", p.QueueDepths.Performances).
		AddField("last_write_ms", p.LastWriteDurationMs).
		SetTime(p.Time)
	return BucketEnginePerformance, point
}
