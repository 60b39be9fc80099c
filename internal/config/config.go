// Package config loads service and relay settings from the environment, an
// optional .env file and an optional YAML file of backend definitions.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bulatminnakhmetov/media-relay/internal/database"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

const (
	DefaultServerPort  = "8080"
	DefaultUploadDir   = "./uploads"
	DefaultBackend     = "imgbb"
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// Config holds all settings of the media relay service
type Config struct {
	ServerPort string
	JWTSecret  string
	LogLevel   slog.Level

	DB database.Config

	UploadDir     string
	UploadBaseURL string
	MaxFileSize   int64

	// ActiveBackend names the one backend uploads are relayed to.
	ActiveBackend string
	// DeleteLocalAfterRelay is the host policy for removing local copies.
	DeleteLocalAfterRelay bool
	Backends              map[string]relay.BackendConfig
}

// Load reads .env when present and builds the configuration from the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	dbPort, err := strconv.Atoi(env("DB_PORT", "5432"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid DB_PORT")
	}
	maxFileSize, err := strconv.ParseInt(env("RELAY_MAX_FILE_SIZE", strconv.Itoa(DefaultMaxFileSize)), 10, 64)
	if err != nil || maxFileSize <= 0 {
		return nil, errors.Errorf("invalid RELAY_MAX_FILE_SIZE %q", getenv("RELAY_MAX_FILE_SIZE"))
	}
	deleteLocal, err := strconv.ParseBool(env("RELAY_DELETE_LOCAL", "false"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid RELAY_DELETE_LOCAL")
	}
	level, err := ParseLogLevel(getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	serverPort := env("SERVER_PORT", DefaultServerPort)
	cfg := &Config{
		ServerPort: serverPort,
		JWTSecret:  getenv("JWT_SECRET"),
		LogLevel:   level,
		DB: database.Config{
			Host:     env("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     env("DB_USER", "postgres"),
			Password: env("DB_PASSWORD", "postgres"),
			DBName:   env("DB_NAME", "media"),
			SSLMode:  env("DB_SSL_MODE", "disable"),
		},
		UploadDir:             env("UPLOAD_DIR", DefaultUploadDir),
		UploadBaseURL:         strings.TrimRight(env("UPLOAD_BASE_URL", "http://localhost:"+serverPort+"/uploads"), "/"),
		MaxFileSize:           maxFileSize,
		ActiveBackend:         env("RELAY_BACKEND", DefaultBackend),
		DeleteLocalAfterRelay: deleteLocal,
	}

	cfg.Backends = relay.Presets()
	if path := getenv("RELAY_BACKENDS_FILE"); path != "" {
		custom, err := LoadBackendsFile(path)
		if err != nil {
			return nil, err
		}
		for name, b := range custom {
			cfg.Backends[name] = b
		}
	}
	for name, b := range cfg.Backends {
		withEnv, err := applyEnv(b, getenv)
		if err != nil {
			return nil, err
		}
		cfg.Backends[name] = withEnv
	}

	return cfg, nil
}

// Backend returns the active backend definition
func (c *Config) Backend() (relay.BackendConfig, error) {
	return c.BackendByName(c.ActiveBackend)
}

// BackendByName returns a configured backend
func (c *Config) BackendByName(name string) (relay.BackendConfig, error) {
	b, ok := c.Backends[name]
	if !ok {
		return relay.BackendConfig{}, errors.Errorf("unknown relay backend %q (known: %s)", name, strings.Join(c.BackendNames(), ", "))
	}
	return b, nil
}

// BackendNames lists the configured backends in a stable order
func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the settings the HTTP service cannot run without
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if _, err := c.Backend(); err != nil {
		return err
	}
	return nil
}

type backendsFile struct {
	Backends []yaml.Node `yaml:"backends"`
}

type backendHeader struct {
	Name   string `yaml:"name"`
	Preset string `yaml:"preset"`
}

// LoadBackendsFile reads backend definitions from a YAML file. An entry whose
// name or preset field matches a built-in preset starts from that preset.
func LoadBackendsFile(path string) (map[string]relay.BackendConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read backends file")
	}
	return ParseBackends(raw)
}

// ParseBackends decodes YAML backend definitions
func ParseBackends(raw []byte) (map[string]relay.BackendConfig, error) {
	var file backendsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse backends file")
	}

	presets := relay.Presets()
	backends := make(map[string]relay.BackendConfig, len(file.Backends))
	for i := range file.Backends {
		node := &file.Backends[i]

		var header backendHeader
		if err := node.Decode(&header); err != nil {
			return nil, errors.Wrapf(err, "backend #%d", i+1)
		}
		if header.Name == "" {
			return nil, errors.Errorf("backend #%d has no name", i+1)
		}
		if _, dup := backends[header.Name]; dup {
			return nil, errors.Errorf("backend %q is defined twice", header.Name)
		}

		base := header.Preset
		if base == "" {
			base = header.Name
		}
		b, fromPreset := presets[base]
		if header.Preset != "" && !fromPreset {
			return nil, errors.Errorf("backend %q: unknown preset %q", header.Name, header.Preset)
		}
		if err := node.Decode(&b); err != nil {
			return nil, errors.Wrapf(err, "backend %q", header.Name)
		}
		b.Name = header.Name
		if err := validateKind(b); err != nil {
			return nil, err
		}
		backends[header.Name] = b
	}
	return backends, nil
}

func validateKind(b relay.BackendConfig) error {
	switch b.Kind {
	case relay.KindHTTPForm, relay.KindHTTPJSON, relay.KindHTTPMultipart, relay.KindFTP, relay.KindS3:
		return nil
	}
	return errors.Errorf("backend %q: unknown kind %q", b.Name, b.Kind)
}

// EnvPrefix is the prefix of the environment variables overriding a backend,
// e.g. IMGBB_ for "imgbb" and MY_CDN_ for "my-cdn".
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name)) + "_"
}

func applyEnv(b relay.BackendConfig, getenv func(string) string) (relay.BackendConfig, error) {
	prefix := EnvPrefix(b.Name)
	str := func(field *string, key string) {
		if v := getenv(prefix + key); v != "" {
			*field = v
		}
	}
	str(&b.APIKey, "API_KEY")
	str(&b.Endpoint, "ENDPOINT")
	str(&b.Endpoint, "HOST")
	str(&b.Username, "USERNAME")
	str(&b.Password, "PASSWORD")
	str(&b.BaseURL, "BASE_URL")
	str(&b.Directory, "DIRECTORY")
	str(&b.Bucket, "BUCKET")
	str(&b.AccessKeyID, "ACCESS_KEY_ID")
	str(&b.SecretAccessKey, "SECRET_ACCESS_KEY")

	if v := getenv(prefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return b, errors.Wrapf(err, "invalid %sPORT", prefix)
		}
		b.Port = port
	}
	if v := getenv(prefix + "USE_TLS"); v != "" {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return b, errors.Wrapf(err, "invalid %sUSE_TLS", prefix)
		}
		b.UseTLS = useTLS
	}
	if v := getenv(prefix + "TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return b, errors.Wrapf(err, "invalid %sTIMEOUT", prefix)
		}
		b.Timeout = timeout
	}
	if v := getenv(prefix + "KEEP_LOCAL_COPY"); v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return b, errors.Wrapf(err, "invalid %sKEEP_LOCAL_COPY", prefix)
		}
		b.KeepLocalCopy = keep
	}
	return b, nil
}

// String hides credentials when a config is printed
func (c *Config) String() string {
	return fmt.Sprintf("port=%s backend=%s upload_dir=%s delete_local=%t backends=%d",
		c.ServerPort, c.ActiveBackend, c.UploadDir, c.DeleteLocalAfterRelay, len(c.Backends))
}
