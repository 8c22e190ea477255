package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvOctopusAPIURL, EnvOctopusWebURL, EnvOctopusToken, EnvPDSURL, EnvPLCDirectory,
		EnvEncryptionKey, EnvLegacyKey, EnvSyncDays, EnvSyncInterval, EnvDatabasePath,
		EnvEnvironment, EnvLogLevel, EnvLogFormat,
	} {
		t.Setenv(name, "")
	}
	// Point .env loading at a file that does not exist.
	t.Setenv(EnvDotenvFilePath, filepath.Join(t.TempDir(), "absent.env"))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := DefaultPath(), "/custom/config/octosphere/config.yml"; got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.PDSURL != DefaultPDSURL {
		t.Errorf("PDSURL = %q, want %q", s.PDSURL, DefaultPDSURL)
	}
	if s.PLCDirectoryURL != DefaultPLCDirectory {
		t.Errorf("PLCDirectoryURL = %q", s.PLCDirectoryURL)
	}
	if s.DatabasePath != DefaultDatabasePath {
		t.Errorf("DatabasePath = %q", s.DatabasePath)
	}
	d, err := s.Interval()
	if err != nil || d != 7*24*time.Hour {
		t.Errorf("Interval() = %v, %v; want 168h", d, err)
	}
	if s.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yml := `octopus_api_url: https://file.api
octopus_web_url: https://file.web
sync_interval: 2w
database_path: /var/lib/file.db
`
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	dotenv := filepath.Join(dir, "test.env")
	if err := os.WriteFile(dotenv, []byte("OCTOPUS_WEB_URL=https://dotenv.web\nENVIRONMENT=production\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDotenvFilePath, dotenv)
	t.Setenv(EnvOctopusAPIURL, "https://env.api")
	// godotenv never overrides a variable that is set, even to "".
	// clearEnv's cleanup restores both.
	os.Unsetenv(EnvOctopusWebURL)
	os.Unsetenv(EnvEnvironment)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"env beats file", s.OctopusAPIURL, "https://env.api"},
		{"dotenv beats file", s.OctopusWebURL, "https://dotenv.web"},
		{"file beats default", s.DatabasePath, "/var/lib/file.db"},
		{"dotenv only", s.Environment, "production"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if d, _ := s.Interval(); d != 14*24*time.Hour {
		t.Errorf("Interval() = %v, want 336h", d)
	}
	if !s.IsProduction() {
		t.Error("IsProduction() = false")
	}
}

func TestLoad_SyncIntervalDays(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSyncDays, "14")

	s, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d, _ := s.Interval(); d != 14*24*time.Hour {
		t.Errorf("Interval() = %v, want 336h", d)
	}
}

func TestLoad_InvalidInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSyncInterval, "5m")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("Load() error = %v, want ErrUnknownUnit", err)
	}
}

func TestLoad_LegacyEncryptionKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLegacyKey, "legacy")

	s, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if s.EncryptionKey != "legacy" {
		t.Errorf("EncryptionKey = %q, want legacy", s.EncryptionKey)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("octopus_api_url: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() with invalid YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		creds    bool
		missing  []string
	}{
		{"all missing", Settings{}, true, []string{EnvOctopusAPIURL, EnvOctopusWebURL, EnvEncryptionKey}},
		{"key not needed", Settings{}, false, []string{EnvOctopusAPIURL, EnvOctopusWebURL}},
		{"complete", Settings{OctopusAPIURL: "a", OctopusWebURL: "w", EncryptionKey: "k"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate(tt.creds)
			if tt.missing == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var me *MissingError
			if !errors.As(err, &me) {
				t.Fatalf("Validate() error = %v, want MissingError", err)
			}
			if strings.Join(me.Keys, ",") != strings.Join(tt.missing, ",") {
				t.Errorf("missing = %v, want %v", me.Keys, tt.missing)
			}
			if !errors.Is(err, ErrMissing) {
				t.Error("MissingError should wrap ErrMissing")
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	s := Settings{EncryptionKey: "secret", OctopusToken: "tok", PDSURL: "p"}
	r := s.Redacted()
	if r.EncryptionKey == "secret" || r.OctopusToken == "tok" {
		t.Errorf("Redacted() leaked secrets: %+v", r)
	}
	if s.EncryptionKey != "secret" || r.PDSURL != "p" {
		t.Error("Redacted() modified the original or dropped fields")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},

		{"5m", 0, true},
		{"", 0, true},
		{"d", 0, true},
		{"abcd", 0, true},
		{"-5d", 0, true},
		{"0d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDuration(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
