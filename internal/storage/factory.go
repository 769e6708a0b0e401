// internal/storage/factory.go
package storage

import (
	"fmt"
	"strings"

	"github.com/repcoach/engine/internal/cache"
	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/storage/gormdb"
	"github.com/repcoach/engine/internal/storage/memory"
	"github.com/repcoach/engine/internal/storage/relay"
	"gorm.io/gorm"
)

// Dependencies carries the shared services backends draw from. DB and
// the validity callbacks come from the database manager owned by the
// caller; the memory and relay backends ignore them.
type Dependencies struct {
	DB            *gorm.DB
	Sessions      *cache.IDCache
	LogManager    *logging.SlogManager
	DatabaseReady func() bool
	LocalOnly     func() bool
	InsertsPaused func() bool
}

// NewBackend picks the backend named by cfg.Type and hands it the
// dependencies it needs.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "gorm":
		return gormdb.New(gormdb.Dependencies{
			DB:            deps.DB,
			Sessions:      deps.Sessions,
			LogManager:    deps.LogManager,
			DatabaseReady: deps.DatabaseReady,
			LocalOnly:     deps.LocalOnly,
			InsertsPaused: deps.InsertsPaused,
		}), nil

	case "relay":
		relayCfg := config.GetRelayConfig()
		return relay.New(relay.Config{
			URL:    wsURL(relayCfg.URL),
			Secret: relayCfg.Secret,
		}), nil

	case "memory":
		return memory.New(cfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// wsURL rewrites an HTTP(S) endpoint into its WebSocket equivalent.
func wsURL(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		return "wss://" + strings.TrimPrefix(trimmed, "https://")
	case strings.HasPrefix(trimmed, "http://"):
		return "ws://" + strings.TrimPrefix(trimmed, "http://")
	}
	return trimmed
}
