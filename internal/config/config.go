// Package config loads bridge settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "octosphere"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"

	DefaultPDSURL       = "https://bsky.social"
	DefaultPLCDirectory = "https://plc.directory"
	DefaultDatabasePath = "octosphere.db"
	DefaultSyncInterval = "7d"
	DefaultEnvironment  = "development"
)

// Environment variable names.
const (
	EnvOctopusAPIURL  = "OCTOPUS_API_URL"
	EnvOctopusWebURL  = "OCTOPUS_WEB_URL"
	EnvOctopusToken   = "OCTOPUS_ACCESS_TOKEN"
	EnvPDSURL         = "ATPROTO_PDS_URL"
	EnvPLCDirectory   = "PLC_DIRECTORY_URL"
	EnvEncryptionKey  = "OCTOSPHERE_ENCRYPTION_KEY"
	EnvLegacyKey      = "ENCRYPTION_KEY"
	EnvSyncDays       = "SYNC_INTERVAL_DAYS"
	EnvSyncInterval   = "SYNC_INTERVAL"
	EnvDatabasePath   = "DATABASE_PATH"
	EnvEnvironment    = "ENVIRONMENT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvDotenvFilePath = "OCTOSPHERE_ENV_FILE"
)

// ErrMissing is wrapped by MissingError.
var ErrMissing = errors.New("missing required configuration")

// MissingError names every required setting that is unset.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissing, strings.Join(e.Keys, ", "))
}

func (e *MissingError) Unwrap() error {
	return ErrMissing
}

// Settings is the resolved bridge configuration.
type Settings struct {
	OctopusAPIURL   string `yaml:"octopus_api_url,omitempty"`
	OctopusWebURL   string `yaml:"octopus_web_url,omitempty"`
	OctopusToken    string `yaml:"octopus_access_token,omitempty"`
	PDSURL          string `yaml:"atproto_pds_url,omitempty"`
	PLCDirectoryURL string `yaml:"plc_directory_url,omitempty"`
	EncryptionKey   string `yaml:"encryption_key,omitempty"`
	SyncInterval    string `yaml:"sync_interval,omitempty"`
	DatabasePath    string `yaml:"database_path,omitempty"`
	Environment     string `yaml:"environment,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
	LogFormat       string `yaml:"log_format,omitempty"`
}

// Defaults returns settings with every optional value filled in.
func Defaults() Settings {
	return Settings{
		PDSURL:          DefaultPDSURL,
		PLCDirectoryURL: DefaultPLCDirectory,
		SyncInterval:    DefaultSyncInterval,
		DatabasePath:    DefaultDatabasePath,
		Environment:     DefaultEnvironment,
		LogLevel:        "info",
	}
}

// DefaultPath returns the config file path, respecting XDG_CONFIG_HOME and
// defaulting to ~/.config/octosphere/config.yml.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load resolves settings. path names a YAML file; empty means DefaultPath.
// A missing file is not an error. A .env file in the working directory (or
// at $OCTOSPHERE_ENV_FILE) is loaded without overriding variables that are
// already set.
func Load(path string) (*Settings, error) {
	envFile := os.Getenv(EnvDotenvFilePath)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	s := Defaults()
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		if err := s.mergeFile(path); err != nil {
			return nil, err
		}
	}
	s.applyEnv(os.LookupEnv)
	s.DatabasePath = ExpandTilde(s.DatabasePath)

	if _, err := s.Interval(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	var file Settings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	s.merge(file)
	return nil
}

// merge copies every non-empty field of o onto s.
func (s *Settings) merge(o Settings) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.OctopusAPIURL, o.OctopusAPIURL)
	set(&s.OctopusWebURL, o.OctopusWebURL)
	set(&s.OctopusToken, o.OctopusToken)
	set(&s.PDSURL, o.PDSURL)
	set(&s.PLCDirectoryURL, o.PLCDirectoryURL)
	set(&s.EncryptionKey, o.EncryptionKey)
	set(&s.SyncInterval, o.SyncInterval)
	set(&s.DatabasePath, o.DatabasePath)
	set(&s.Environment, o.Environment)
	set(&s.LogLevel, o.LogLevel)
	set(&s.LogFormat, o.LogFormat)
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) {
	get := func(name string) string {
		v, _ := lookup(name)
		return strings.TrimSpace(v)
	}

	var env Settings
	env.OctopusAPIURL = get(EnvOctopusAPIURL)
	env.OctopusWebURL = get(EnvOctopusWebURL)
	env.OctopusToken = get(EnvOctopusToken)
	env.PDSURL = get(EnvPDSURL)
	env.PLCDirectoryURL = get(EnvPLCDirectory)
	env.EncryptionKey = get(EnvEncryptionKey)
	if env.EncryptionKey == "" {
		env.EncryptionKey = get(EnvLegacyKey)
	}
	env.SyncInterval = get(EnvSyncInterval)
	if days := get(EnvSyncDays); days != "" && env.SyncInterval == "" {
		env.SyncInterval = days + "d"
	}
	env.DatabasePath = get(EnvDatabasePath)
	env.Environment = get(EnvEnvironment)
	env.LogLevel = get(EnvLogLevel)
	env.LogFormat = get(EnvLogFormat)
	s.merge(env)
}

// Interval parses SyncInterval.
func (s *Settings) Interval() (time.Duration, error) {
	d, err := ParseDuration(s.SyncInterval)
	if err != nil {
		return 0, fmt.Errorf("sync interval %q: %w", s.SyncInterval, err)
	}
	return d, nil
}

// IsProduction reports whether ENVIRONMENT is "production".
func (s *Settings) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// Validate reports every required setting that is unset. Octopus URLs are
// always required; the encryption key only when stored credentials are used.
func (s *Settings) Validate(needCredentials bool) error {
	var missing []string
	if s.OctopusAPIURL == "" {
		missing = append(missing, EnvOctopusAPIURL)
	}
	if s.OctopusWebURL == "" {
		missing = append(missing, EnvOctopusWebURL)
	}
	if needCredentials && s.EncryptionKey == "" {
		missing = append(missing, EnvEncryptionKey)
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (s Settings) Redacted() Settings {
	if s.EncryptionKey != "" {
		s.EncryptionKey = "<redacted>"
	}
	if s.OctopusToken != "" {
		s.OctopusToken = "<redacted>"
	}
	return s
}

// ExpandTilde expands ~ to the user's home directory.
func ExpandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
