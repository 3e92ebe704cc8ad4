// Package config loads the runtime configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendICloud = "icloud"
)

// Task store backends.
const (
	TasksFile     = "file"
	TasksPostgres = "postgres"
)

// GeminiConfig configures the text generation client.
type GeminiConfig struct {
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// UseMock swaps the remote client for a canned local generator.
	UseMock bool `yaml:"use_mock"`
}

// GoogleConfig holds the OAuth client and the target calendar.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Account      string `yaml:"account"`
	CalendarID   string `yaml:"calendar_id"`
}

// ICloudConfig holds CalDAV credentials.
type ICloudConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"app_specific_password"`
	CalendarName string `yaml:"calendar_name"`
}

// Config is the top-level application configuration.
type Config struct {
	Gemini          GeminiConfig `yaml:"gemini"`
	Google          GoogleConfig `yaml:"google"`
	ICloud          ICloudConfig `yaml:"icloud"`
	CalendarBackend string       `yaml:"calendar_backend"`

	// Timezone is the IANA zone placements and phrases are interpreted in.
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`

	TasksBackend string `yaml:"tasks_backend"`
	TasksFile    string `yaml:"tasks_file"`
	DBURL        string `yaml:"db_url"`

	Listen            string `yaml:"listen"`
	MinDocumentLength int    `yaml:"min_document_length"`
	HorizonDays       int    `yaml:"horizon_days"`
	ScheduleCron      string `yaml:"schedule_cron"`
	SyncStateFile     string `yaml:"sync_state_file"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() Config {
	return Config{
		Gemini: GeminiConfig{
			Model:    "gemini-2.0-flash",
			Endpoint: "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  60 * time.Second,
		},
		Google:            GoogleConfig{Account: "default", CalendarID: "primary"},
		ICloud:            ICloudConfig{CalendarName: "Schedai"},
		CalendarBackend:   BackendGoogle,
		Timezone:          "UTC",
		LogLevel:          "info",
		TasksBackend:      TasksFile,
		TasksFile:         "tasks.json",
		Listen:            "127.0.0.1:8080",
		MinDocumentLength: 50,
		HorizonDays:       7,
		SyncStateFile:     "sync-state.json",
	}
}

// Normalize fills in zero values so that partially filled configs still work.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Gemini.Model == "" {
		c.Gemini.Model = d.Gemini.Model
	}
	if c.Gemini.Endpoint == "" {
		c.Gemini.Endpoint = d.Gemini.Endpoint
	}
	if c.Gemini.Timeout <= 0 {
		c.Gemini.Timeout = d.Gemini.Timeout
	}
	if c.Google.Account == "" {
		c.Google.Account = d.Google.Account
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = d.Google.CalendarID
	}
	if c.ICloud.CalendarName == "" {
		c.ICloud.CalendarName = d.ICloud.CalendarName
	}
	c.CalendarBackend = strings.ToLower(c.CalendarBackend)
	if c.CalendarBackend == "" {
		c.CalendarBackend = d.CalendarBackend
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.TasksBackend = strings.ToLower(c.TasksBackend)
	if c.TasksBackend == "" {
		c.TasksBackend = d.TasksBackend
	}
	if c.TasksFile == "" {
		c.TasksFile = d.TasksFile
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.MinDocumentLength <= 0 {
		c.MinDocumentLength = d.MinDocumentLength
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.SyncStateFile == "" {
		c.SyncStateFile = d.SyncStateFile
	}
}

// Load reads the YAML file at path when it exists, applies environment
// overrides, normalizes defaults and validates the result. An empty path skips
// the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString("GEMINI_API_KEY", &c.Gemini.APIKey)
	setString("GEMINI_MODEL", &c.Gemini.Model)
	setString("GEMINI_ENDPOINT", &c.Gemini.Endpoint)
	setString("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	setString("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	setString("GOOGLE_ACCOUNT", &c.Google.Account)
	setString("GOOGLE_CALENDAR_ID", &c.Google.CalendarID)
	setString("CALENDAR_BACKEND", &c.CalendarBackend)
	setString("ICLOUD_USERNAME", &c.ICloud.Username)
	setString("ICLOUD_APP_SPECIFIC_PASSWORD", &c.ICloud.Password)
	setString("ICLOUD_CALENDAR_NAME", &c.ICloud.CalendarName)
	setString("PRIMARY_TIMEZONE", &c.Timezone)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("TASKS_BACKEND", &c.TasksBackend)
	setString("TASKS_FILE", &c.TasksFile)
	setString("DB_URL", &c.DBURL)
	setString("SCHEDAI_LISTEN", &c.Listen)
	setString("SCHEDAI_SCHEDULE_CRON", &c.ScheduleCron)
	setString("SCHEDAI_SYNC_STATE_FILE", &c.SyncStateFile)

	if v := env("GEMINI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GEMINI_TIMEOUT must be a duration: %w", err)
		}
		c.Gemini.Timeout = d
	}
	if v := env("SCHEDAI_USE_MOCK_LLM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCHEDAI_USE_MOCK_LLM must be a boolean: %w", err)
		}
		c.Gemini.UseMock = b
	}
	if err := setInt("SCHEDAI_MIN_DOCUMENT_LENGTH", &c.MinDocumentLength); err != nil {
		return err
	}
	return setInt("SCHEDAI_HORIZON_DAYS", &c.HorizonDays)
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if !c.Gemini.UseMock && c.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY required (or set SCHEDAI_USE_MOCK_LLM=true)")
	}
	switch c.CalendarBackend {
	case BackendGoogle:
	case BackendICloud:
		if c.ICloud.Username == "" || c.ICloud.Password == "" {
			return errors.New("ICLOUD_USERNAME and ICLOUD_APP_SPECIFIC_PASSWORD required for the icloud backend")
		}
	default:
		return fmt.Errorf("CALENDAR_BACKEND must be %q or %q, got %q", BackendGoogle, BackendICloud, c.CalendarBackend)
	}
	switch c.TasksBackend {
	case TasksFile:
	case TasksPostgres:
		if c.DBURL == "" {
			return errors.New("DB_URL required for the postgres tasks backend")
		}
	default:
		return fmt.Errorf("TASKS_BACKEND must be %q or %q, got %q", TasksFile, TasksPostgres, c.TasksBackend)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	if c.ScheduleCron != "" {
		if _, err := cron.ParseStandard(c.ScheduleCron); err != nil {
			return fmt.Errorf("invalid schedule cron %q: %w", c.ScheduleCron, err)
		}
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Horizon is the look-ahead window for calendar reads.
func (c Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(key string, dst *string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v := env(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}
