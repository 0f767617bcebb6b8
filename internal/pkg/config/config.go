// Package config holds the process-wide settings every other package reads
// through the package-level Get() singleton, the same role Zeno's
// internal/pkg/config plays for its Crawl struct.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Config is every scalar setting a harvest worker, stream controller, or
// exporter needs at runtime.
type Config struct {
	// Bus connection
	AMQPURI  string `json:"amqp_uri"`
	Queue    string `json:"queue"`
	RoutingKeys []string `json:"routing_keys"`

	// Filesystem layout
	WorkingPath string `json:"working_path"`

	// Retry / timing, defaults mirror BaseHarvester's keyword defaults
	Tries                     int `json:"tries"`
	StreamRestartIntervalSecs int `json:"stream_restart_interval_secs"`
	QueueWarcFilesIntervalSecs int `json:"queue_warc_files_interval_secs"`
	WarcRolloverSecs          int `json:"warc_rollover_secs"`

	// Recording proxy
	UseWARCProxy     bool `json:"use_warc_proxy"`
	DebugWARCProxy   bool `json:"debug_warc_proxy"`
	ProxyPortStart   int  `json:"proxy_port_start"`
	ProxyPortEnd     int  `json:"proxy_port_end"`

	// Concurrency
	WorkersCount int `json:"workers_count"`

	// Logging
	LogFilePath     string `json:"log_file_path"`
	LogLevel        string `json:"log_level"`
	StdoutEnabled   bool   `json:"stdout_enabled"`
	RotateLogFile   bool   `json:"rotate_log_file"`
	ElasticsearchURL string `json:"elasticsearch_url"`

	// Catalog collaborator
	CatalogBaseURL string `json:"catalog_base_url"`
}

// Default returns the zero-value-safe defaults, mirroring
// BaseHarvester.__init__'s keyword defaults.
func Default() *Config {
	return &Config{
		Tries:                      3,
		StreamRestartIntervalSecs:  1800,
		QueueWarcFilesIntervalSecs: 300,
		WarcRolloverSecs:           1800,
		ProxyPortStart:             8000,
		ProxyPortEnd:               8100,
		WorkersCount:               4,
		LogLevel:                   "info",
		StdoutEnabled:              true,
	}
}

var (
	globalConfig *Config
	once         sync.Once
	mu           sync.RWMutex
)

// Get returns the process-wide Config, initializing it to defaults on first
// call so packages can be exercised in tests without an explicit Init.
func Get() *Config {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		globalConfig = Default()
	})
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Set installs cfg as the process-wide Config. Intended for cmd/ entrypoints
// and tests; not safe to call concurrently with Get().
func Set(cfg *Config) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}

// InitFromFile loads a JSON config file and installs it, filling any zero
// fields from Default() first.
func InitFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	Set(cfg)
	return nil
}
