package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/pkg/core"
)

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds local database backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// StorageConfig selects and configures the session storage backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// OTelConfig holds OpenTelemetry export settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds session metrics export settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// URL assembles the full server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF log forwarding settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// ServerConfig holds the live websocket analysis service settings
type ServerConfig struct {
	ListenAddr string `json:"listenAddr" mapstructure:"listenAddr"`
	Secret     string `json:"secret" mapstructure:"secret"`
}

// RelayConfig holds the upstream result relay settings
type RelayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// APIConfig holds the recording upload endpoint settings
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("defaultTag", "Training")
	viper.SetDefault("logsDir", "./repcoachlogs")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("server.listenAddr", ":8077")
	viper.SetDefault("server.secret", "")

	viper.SetDefault("relay.enabled", false)
	viper.SetDefault("relay.url", "")
	viper.SetDefault("relay.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "repcoach")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "repcoach-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "repcoach-engine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./backup")

	for _, ex := range core.Exercises {
		setAnalyzerDefaults(ex)
	}

	viper.SetConfigName("repcoach.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setAnalyzerDefaults(ex core.Exercise) {
	d := analyzer.DefaultConfig()
	p := "analyzer." + string(ex) + "."
	viper.SetDefault(p+"repThreshold", d.RepThreshold)
	viper.SetDefault(p+"depthThreshold", d.DepthThreshold)
	viper.SetDefault(p+"minRepSeconds", d.MinRepSeconds)
	viper.SetDefault(p+"debounceFrames", d.DebounceFrames)
	viper.SetDefault(p+"straightnessMin", d.StraightnessMin)
	viper.SetDefault(p+"elbowFlareMax", d.ElbowFlareMax)
	viper.SetDefault(p+"smoothingAlpha", d.SmoothingAlpha)
	viper.SetDefault(p+"praiseStreak", d.PraiseStreak)
	viper.SetDefault(p+"squatUpThreshold", d.SquatUpThreshold)
	viper.SetDefault(p+"kneeRatioMin", d.KneeRatioMin)
	viper.SetDefault(p+"kneeRatioMax", d.KneeRatioMax)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetStorageConfig returns the storage backend selection and settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry export settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the session metrics export settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetGraylogConfig returns the GELF log forwarding settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetServerConfig returns the live analysis service settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: viper.GetString("server.listenAddr"),
		Secret:     viper.GetString("server.secret"),
	}
}

// GetAPIConfig returns the recording upload endpoint settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetRelayConfig returns the upstream relay settings.
func GetRelayConfig() RelayConfig {
	return RelayConfig{
		Enabled: viper.GetBool("relay.enabled"),
		URL:     viper.GetString("relay.url"),
		Secret:  viper.GetString("relay.secret"),
	}
}

// GetAnalyzerConfig returns the tuning for one exercise, with file
// overrides applied on top of the built-in defaults.
func GetAnalyzerConfig(ex core.Exercise) analyzer.Config {
	p := "analyzer." + string(ex) + "."
	return analyzer.Config{
		RepThreshold:     viper.GetFloat64(p + "repThreshold"),
		DepthThreshold:   viper.GetFloat64(p + "depthThreshold"),
		MinRepSeconds:    viper.GetFloat64(p + "minRepSeconds"),
		DebounceFrames:   viper.GetInt(p + "debounceFrames"),
		StraightnessMin:  viper.GetFloat64(p + "straightnessMin"),
		ElbowFlareMax:    viper.GetFloat64(p + "elbowFlareMax"),
		SmoothingAlpha:   viper.GetFloat64(p + "smoothingAlpha"),
		PraiseStreak:     viper.GetInt(p + "praiseStreak"),
		SquatUpThreshold: viper.GetFloat64(p + "squatUpThreshold"),
		KneeRatioMin:     viper.GetFloat64(p + "kneeRatioMin"),
		KneeRatioMax:     viper.GetFloat64(p + "kneeRatioMax"),
	}
}
