// Package settings loads process settings with viper: defaults, then an
// optional YAML file, then STARTLIGHTS_* environment variables.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment override, e.g. STARTLIGHTS_SERVER_PORT.
const EnvPrefix = "STARTLIGHTS"

// Settings is the top-level settings structure.
type Settings struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Configs  ConfigsConfig  `mapstructure:"configs"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Ngrok    NgrokConfig    `mapstructure:"ngrok"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
	// ExternalURL is probed by stdio-mcp before starting an internal server.
	ExternalURL string `mapstructure:"external_url"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Color      bool   `mapstructure:"color"`
	Directory  string `mapstructure:"directory"` // empty disables the file log
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ConfigsConfig points at the trial configuration directory.
type ConfigsConfig struct {
	Directory string `mapstructure:"directory"`
}

// SessionsConfig controls live session expiry.
type SessionsConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxIdle         time.Duration `mapstructure:"max_idle"`
}

// UploadConfig selects the sinks completed sessions are sent to.
type UploadConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	ArchiveDir string        `mapstructure:"archive_dir"`
}

// NgrokConfig controls the optional public tunnel.
type NgrokConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Authtoken string `mapstructure:"authtoken"`
	Domain    string `mapstructure:"domain"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.external_url", "http://localhost:8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.directory", "")
	v.SetDefault("logging.max_size", 10) // MB
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7) // days
	v.SetDefault("logging.compress", true)

	v.SetDefault("configs.directory", "configs")

	v.SetDefault("sessions.cleanup_interval", time.Hour)
	v.SetDefault("sessions.max_idle", 24*time.Hour)

	v.SetDefault("upload.endpoint", "")
	v.SetDefault("upload.token", "")
	v.SetDefault("upload.timeout", 10*time.Second)
	v.SetDefault("upload.sqlite_path", "data/records.db")
	v.SetDefault("upload.archive_dir", "")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authtoken", "")
	v.SetDefault("ngrok.domain", "")
}

// Loader owns a viper instance and the most recently decoded Settings.
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger

	mu       sync.RWMutex
	current  *Settings
	onChange []func(*Settings)
}

// Load reads settings. When file is empty, a settings.yaml in the working
// directory or ./config is used if present.
func Load(file string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading settings file: %w", err)
		}
	}

	l := &Loader{v: v, logger: logger}
	s, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = s
	return l, nil
}

func (l *Loader) decode() (*Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return nil, fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Server.Port)
	}
	return &s, nil
}

// Settings returns the current settings. Callers must not modify the result.
func (l *Loader) Settings() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// File returns the settings file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// OnChange registers a callback run after a successful reload.
func (l *Loader) OnChange(fn func(*Settings)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch reloads settings when the file changes. A reload that fails to
// decode keeps the previous settings.
func (l *Loader) Watch() {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("Settings file changed, reloading", zap.String("file", e.Name))
		l.reload()
	})
	l.v.WatchConfig()
}

func (l *Loader) reload() {
	s, err := l.decode()
	if err != nil {
		l.logger.Error("Error reloading settings", zap.Error(err))
		return
	}

	l.mu.Lock()
	l.current = s
	callbacks := append([]func(*Settings){}, l.onChange...)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(s)
	}
}
