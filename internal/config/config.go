// Package config loads server settings from defaults, the environment and
// an optional YAML file, in that order of increasing precedence.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "RACETRACK_"

// FileEnv names the environment variable holding the YAML file path.
const FileEnv = EnvPrefix + "CONFIG_FILE"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Race      RaceConfig      `yaml:"race"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StaticDir      string        `yaml:"static_dir"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
}

type RaceConfig struct {
	CourseLength     int           `yaml:"course_length"`
	ObstacleInterval int           `yaml:"obstacle_interval"`
	CountdownFrom    int           `yaml:"countdown_from"`
	CountdownStep    time.Duration `yaml:"countdown_step"`
	SpectatorID      string        `yaml:"spectator_id"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         3001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     256,
			MaxMessageSize: 64 * 1024,
			RateLimit:      240,
			RateWindow:     time.Second,
		},
		Race: RaceConfig{
			CourseLength:     2000,
			ObstacleInterval: 200,
			CountdownFrom:    3,
			CountdownStep:    time.Second,
			SpectatorID:      "RECEIVER",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Addr is the listen address.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// ZerologLevel parses Level.
func (l LogConfig) ZerologLevel() (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(l.Level))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Host == "" {
		return fmt.Errorf("http.host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http.read_timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http.write_timeout must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.ping_interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket.read_timeout must exceed websocket.ping_interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket.write_timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket.buffer_size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket.max_message_size must be positive")
	}
	if c.WebSocket.RateLimit < 0 {
		return fmt.Errorf("websocket.rate_limit cannot be negative")
	}
	if c.WebSocket.RateLimit > 0 && c.WebSocket.RateWindow <= 0 {
		return fmt.Errorf("websocket.rate_window must be positive when rate limiting")
	}

	if c.Race.CourseLength <= 0 {
		return fmt.Errorf("race.course_length must be positive")
	}
	if c.Race.ObstacleInterval <= 0 || c.Race.ObstacleInterval >= c.Race.CourseLength {
		return fmt.Errorf("race.obstacle_interval must be between 1 and race.course_length-1")
	}
	if c.Race.CountdownFrom < 1 {
		return fmt.Errorf("race.countdown_from must be at least 1")
	}
	if c.Race.CountdownStep <= 0 {
		return fmt.Errorf("race.countdown_step must be positive")
	}
	if c.Race.SpectatorID == "" {
		return fmt.Errorf("race.spectator_id cannot be empty")
	}

	if _, err := c.Log.ZerologLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the environment,
// then the YAML file at path. An empty path falls back to RACETRACK_CONFIG_FILE;
// no path at all means no file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv applies the environment over the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile applies the YAML file at path over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	e := &envReader{}

	e.setString("HTTP_HOST", &cfg.HTTP.Host)
	e.setInt("HTTP_PORT", &cfg.HTTP.Port)
	e.setDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	e.setDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	e.setList("HTTP_ALLOWED_ORIGINS", &cfg.HTTP.AllowedOrigins)
	e.setString("STATIC_DIR", &cfg.HTTP.StaticDir)

	e.setDuration("WEBSOCKET_PING_INTERVAL", &cfg.WebSocket.PingInterval)
	e.setDuration("WEBSOCKET_READ_TIMEOUT", &cfg.WebSocket.ReadTimeout)
	e.setDuration("WEBSOCKET_WRITE_TIMEOUT", &cfg.WebSocket.WriteTimeout)
	e.setInt("WEBSOCKET_BUFFER_SIZE", &cfg.WebSocket.BufferSize)
	e.setInt64("WEBSOCKET_MAX_MESSAGE_SIZE", &cfg.WebSocket.MaxMessageSize)
	e.setInt("WEBSOCKET_RATE_LIMIT", &cfg.WebSocket.RateLimit)
	e.setDuration("WEBSOCKET_RATE_WINDOW", &cfg.WebSocket.RateWindow)

	e.setInt("RACE_COURSE_LENGTH", &cfg.Race.CourseLength)
	e.setInt("RACE_OBSTACLE_INTERVAL", &cfg.Race.ObstacleInterval)
	e.setInt("RACE_COUNTDOWN_FROM", &cfg.Race.CountdownFrom)
	e.setDuration("RACE_COUNTDOWN_STEP", &cfg.Race.CountdownStep)
	e.setString("RACE_SPECTATOR_ID", &cfg.Race.SpectatorID)

	e.setString("LOG_LEVEL", &cfg.Log.Level)
	e.setBool("LOG_PRETTY", &cfg.Log.Pretty)

	return e.err
}

// envReader reads prefixed variables, keeping the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, value string, err error) {
	e.err = fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, value, err)
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	if v, ok := e.lookup(key); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}
