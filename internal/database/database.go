// Package database owns the engine's GORM connection: Postgres when it
// is reachable, otherwise an in-memory SQLite database that is vacuumed
// to disk on an interval.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/repcoach/engine/internal/model"
)

// Manager owns the GORM handle and records which store it landed on.
// Ready stays false until Connect succeeds. LocalOnly reports that
// writes go to the SQLite fallback and must be dumped to disk via
// DumpPath before the process exits.
type Manager struct {
	DB        *gorm.DB
	Ready     bool
	LocalOnly bool
	DumpPath  string

	sqlDB *sql.DB
	log   zerolog.Logger
}

// NewManager returns an unconnected manager; call Connect before using DB.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Connect opens Postgres from the db.* config keys and verifies the
// connection with a ping. Either failure drops to the SQLite fallback
// so a workout in progress never loses its writes.
func (m *Manager) Connect() error {
	var err error

	m.DB, err = m.openPostgres()
	if err == nil {
		m.sqlDB, err = m.DB.DB()
		if err != nil {
			return fmt.Errorf("sql handle: %w", err)
		}
		err = m.sqlDB.Ping()
	}

	if err != nil {
		m.log.Error().Err(err).Msg("Postgres unavailable, falling back to SQLite")
		return m.useSqliteFallback()
	}

	m.Ready = true
	m.sqlDB.SetMaxOpenConns(10)
	m.log.Info().Msg("Connected to Postgres")
	return nil
}

// useSqliteFallback swaps DB for the in-memory SQLite store and marks
// the manager for periodic disk dumps.
func (m *Manager) useSqliteFallback() error {
	m.LocalOnly = true

	db, err := m.openSqlite("")
	if err != nil {
		m.Ready = false
		return fmt.Errorf("sqlite fallback: %w", err)
	}

	m.DB = db
	m.Ready = true
	return nil
}

func (m *Manager) gormConfig(batchSize int) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        batchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

func (m *Manager) openPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		viper.GetString("db.host"), viper.GetString("db.port"),
		viper.GetString("db.username"), viper.GetString("db.password"),
		viper.GetString("db.database"))

	m.log.Debug().Msgf("Connecting to Postgres at '%s'", dsn)

	cfg := m.gormConfig(10000)
	cfg.PrepareStmt = false
	return gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), cfg)
}

// openSqlite opens the database at path, or the process-shared
// in-memory database when path is empty.
func (m *Manager) openSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), m.gormConfig(2000))
	if err != nil {
		m.Ready = false
		return nil, err
	}

	if path == "" {
		m.log.Info().Msg("In-memory SQLite active, dumping to disk on an interval")
	} else {
		m.log.Info().Str("path", path).Msg("Opened SQLite database file")
	}

	// Frame inserts arrive at capture rate; durability comes from the
	// periodic dump, so journaling and sync are turned off.
	for _, stmt := range []string{
		"PRAGMA user_version = 1",
		"PRAGMA journal_mode = MEMORY",
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = -32000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA page_size = 32768",
		"PRAGMA mmap_size = 30000000000",
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
	}

	return db, nil
}

// Setup migrates the schema, seeds the instance row, and installs
// PostGIS when the dialect is Postgres.
func (m *Manager) Setup() error {
	if err := m.seedEngineInfo(); err != nil {
		m.Ready = false
		return err
	}

	// Rep trajectories are geometry columns and need PostGIS on the
	// Postgres side.
	if m.DB.Dialector.Name() == "postgres" {
		if err := m.DB.Exec("CREATE EXTENSION IF NOT EXISTS postgis;").Error; err != nil {
			m.Ready = false
			return fmt.Errorf("install postgis: %w", err)
		}
		m.log.Info().Msg("PostGIS extension ready")
	}

	m.log.Info().Msg("Migrating database schema")
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		m.Ready = false
		return fmt.Errorf("migrate schema: %w", err)
	}

	m.log.Info().Msg("Database ready")
	return nil
}

// seedEngineInfo creates the single instance row on first run so the
// frontend has something to display before any session lands.
func (m *Manager) seedEngineInfo() error {
	if m.DB.Migrator().HasTable(&model.EngineInfo{}) {
		return nil
	}

	if err := m.DB.AutoMigrate(&model.EngineInfo{}); err != nil {
		return fmt.Errorf("create engine info table: %w", err)
	}

	row := model.EngineInfo{
		InstanceName:        "RepCoach",
		InstanceDescription: "Exercise rep counting and form feedback",
		InstanceWebsite:     "https://github.com/repcoach/engine",
		EngineVersion:       "1.0.0",
	}
	if err := m.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("seed engine info row: %w", err)
	}
	return nil
}

// DumpMemoryToDisk vacuums the in-memory database into DumpPath,
// replacing whatever file is already there.
func (m *Manager) DumpMemoryToDisk() error {
	if m.DumpPath == "" {
		return fmt.Errorf("no dump path configured")
	}

	if _, err := os.Stat(m.DumpPath); err == nil {
		if err := os.Remove(m.DumpPath); err != nil {
			return fmt.Errorf("remove stale dump: %w", err)
		}
	}

	start := time.Now()
	if err := m.DB.Exec("VACUUM INTO 'file:" + m.DumpPath + "';").Error; err != nil {
		return fmt.Errorf("vacuum into %s: %w", m.DumpPath, err)
	}

	m.log.Debug().Dur("duration", time.Since(start)).Msg("SQLite dump written")
	return nil
}
