// Package log wraps logrus with the fielded-component convention every
// package in this repo logs through: log.NewFieldedLogger(&log.Fields{...}).
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/internetarchive/elogrus"
	"github.com/lestrrat-go/file-rotatelogs"
	"github.com/olivere/elastic/v7"
	"github.com/sirupsen/logrus"

	appconfig "github.com/gwu-libraries/sfm-go/internal/pkg/config"
)

// Fields is the component-tagging map passed to NewFieldedLogger, e.g.
// &Fields{"component": "harvester.run"}.
type Fields map[string]interface{}

// Config controls where log output goes. The zero value logs to stdout only.
type Config struct {
	FileConfig       string
	FileLevel        string
	StdoutEnabled    bool
	RotateLogFile    bool
	ElasticsearchConfig *ElasticsearchConfig
}

type ElasticsearchConfig struct {
	Addresses []string
	Index     string
}

var (
	base   *logrus.Logger
	once   sync.Once
	mu     sync.Mutex
	config Config
)

// Start initializes the shared logrus logger according to the last Configure
// call (or stdout-only defaults). Safe to call repeatedly; only the first
// call takes effect, matching Zeno's log.Start() idiom used defensively at
// the top of every component's Start().
func Start() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		base = logrus.New()
		base.SetFormatter(&logrus.JSONFormatter{})

		var writers []io.Writer
		if config.StdoutEnabled || config.FileConfig == "" {
			writers = append(writers, os.Stdout)
		}

		if config.FileConfig != "" {
			if config.RotateLogFile {
				rl, err := rotatelogs.New(
					config.FileConfig+".%Y%m%d",
					rotatelogs.WithLinkName(config.FileConfig),
				)
				if err == nil {
					writers = append(writers, rl)
				}
			} else if f, err := os.OpenFile(config.FileConfig, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
				writers = append(writers, f)
			}
		}

		if len(writers) > 0 {
			base.SetOutput(io.MultiWriter(writers...))
		}

		if lvl, err := logrus.ParseLevel(config.FileLevel); err == nil {
			base.SetLevel(lvl)
		} else {
			base.SetLevel(logrus.InfoLevel)
		}

		if config.ElasticsearchConfig != nil {
			esClient, err := elastic.NewClient(elastic.SetURL(config.ElasticsearchConfig.Addresses...), elastic.SetSniff(false))
			if err == nil {
				hook, err := elogrus.NewAsyncElasticHook(esClient, config.ElasticsearchConfig.Addresses[0], logrus.InfoLevel, config.ElasticsearchConfig.Index)
				if err == nil {
					base.AddHook(hook)
				}
			}
		}
	})
}

// Configure sets the Config Start() will apply. Must be called before the
// first Start().
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// ConfigureFrom derives a log Config from the process-wide app Config, the
// glue every cmd/ entrypoint runs in its Before hook ahead of log.Start().
func ConfigureFrom(appCfg *appconfig.Config) {
	var esCfg *ElasticsearchConfig
	if appCfg.ElasticsearchURL != "" {
		esCfg = &ElasticsearchConfig{
			Addresses: strings.Split(appCfg.ElasticsearchURL, ","),
			Index:     "sfm-go",
		}
	}

	Configure(Config{
		FileConfig:          appCfg.LogFilePath,
		FileLevel:           appCfg.LogLevel,
		StdoutEnabled:       appCfg.StdoutEnabled,
		RotateLogFile:       appCfg.RotateLogFile,
		ElasticsearchConfig: esCfg,
	})
}

// Stop flushes and detaches the shared logger. Safe to call even if Start
// was never called.
func Stop() {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		return
	}
	base.SetOutput(io.Discard)
}

// FieldedLogger is a logrus entry pre-tagged with a component field.
type FieldedLogger struct {
	entry *logrus.Entry
}

// NewFieldedLogger returns a logger with fields permanently attached, the
// same call shape used by archiver.go, postprocessor.go and preprocessor.go.
func NewFieldedLogger(fields *Fields) *FieldedLogger {
	Start()
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		l = logrus.New()
	}
	lf := logrus.Fields{}
	for k, v := range *fields {
		lf[k] = v
	}
	return &FieldedLogger{entry: l.WithFields(lf)}
}

func kvFields(keyvals []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprintf("%v", keyvals[i])
		f[key] = keyvals[i+1]
	}
	return f
}

func (f *FieldedLogger) Debug(msg string, keyvals ...interface{}) {
	f.entry.WithFields(kvFields(keyvals)).Debug(msg)
}

func (f *FieldedLogger) Info(msg string, keyvals ...interface{}) {
	f.entry.WithFields(kvFields(keyvals)).Info(msg)
}

func (f *FieldedLogger) Warn(msg string, keyvals ...interface{}) {
	f.entry.WithFields(kvFields(keyvals)).Warn(msg)
}

func (f *FieldedLogger) Error(msg string, keyvals ...interface{}) {
	f.entry.WithFields(kvFields(keyvals)).Error(msg)
}
