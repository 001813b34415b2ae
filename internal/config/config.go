// Package config loads the calreport configuration: the calendar alias table,
// OAuth client settings and where the credential token is cached.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"calreport/internal/apperr"
)

// Calendar backend types.
const (
	TypeGoogle = "google"
	TypeCalDAV = "caldav"
	TypeICS    = "ics"
)

// Token store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreEnv    = "env"
)

// DefaultFile is looked up in the working directory when no config path is given.
const DefaultFile = "calreport.yaml"

// Config is the root configuration structure.
type Config struct {
	DefaultCalendar  string              `yaml:"default_calendar" toml:"default_calendar"`
	ClientSecretFile string              `yaml:"client_secret_file" toml:"client_secret_file"`
	ClientID         string              `yaml:"client_id,omitempty" toml:"client_id"`
	ClientSecret     string              `yaml:"client_secret,omitempty" toml:"client_secret"`
	Token            TokenConfig         `yaml:"token" toml:"token"`
	Calendars        map[string]Calendar `yaml:"calendars" toml:"calendars"`
}

// TokenConfig selects where the OAuth token is cached.
type TokenConfig struct {
	Store   string `yaml:"store" toml:"store"`     // "file", "sqlite" or "env"
	Path    string `yaml:"path" toml:"path"`       // token file or sqlite database
	Account string `yaml:"account" toml:"account"` // row key in the sqlite store
	EnvVar  string `yaml:"env_var" toml:"env_var"` // variable holding the token JSON
}

// Calendar maps one alias to a concrete calendar. ID is the Google calendar
// id; URL is the CalDAV endpoint or ICS feed; Calendar names the CalDAV
// calendar by display name or path.
type Calendar struct {
	Type        string `yaml:"type" toml:"type"`
	ID          string `yaml:"id,omitempty" toml:"id"`
	URL         string `yaml:"url,omitempty" toml:"url"`
	Calendar    string `yaml:"calendar,omitempty" toml:"calendar"`
	Username    string `yaml:"username,omitempty" toml:"username"`
	Password    string `yaml:"password,omitempty" toml:"password"`
	PasswordCmd string `yaml:"password_cmd,omitempty" toml:"password_cmd"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file at path. An empty path falls back to
// $CALREPORT_CONFIG, then DefaultFile if it exists, then Default().
// Environment overrides are applied in every case.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CALREPORT_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}

	cfg := &Config{}
	if path != "" {
		var err error
		cfg, err = LoadFrom(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg.applyDefaults()
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom decodes a YAML or TOML file, chosen by extension, and applies defaults.
func LoadFrom(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %w", apperr.ErrInvalidArgument, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config file %s: %w", apperr.ErrInvalidArgument, path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config file %s: %w", apperr.ErrInvalidArgument, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", apperr.ErrInvalidArgument, filepath.Ext(path))
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults sets default values for unspecified config options.
func (c *Config) applyDefaults() {
	if len(c.Calendars) == 0 {
		c.Calendars = map[string]Calendar{
			"primary": {Type: TypeGoogle, ID: "primary"},
		}
	}
	for alias, cal := range c.Calendars {
		if cal.Type == "" {
			cal.Type = TypeGoogle
			c.Calendars[alias] = cal
		}
	}
	if c.DefaultCalendar == "" {
		if _, ok := c.Calendars["primary"]; ok {
			c.DefaultCalendar = "primary"
		} else {
			c.DefaultCalendar = c.Aliases()[0]
		}
	}
	if c.ClientSecretFile == "" {
		c.ClientSecretFile = "credentials.json"
	}
	if c.Token.Store == "" {
		c.Token.Store = StoreFile
	}
	if c.Token.Path == "" {
		switch c.Token.Store {
		case StoreSQLite:
			c.Token.Path = filepath.Join("~", ".credentials", "calreport.db")
		default:
			c.Token.Path = filepath.Join("~", ".credentials", "calreport.json")
		}
	}
	if c.Token.Account == "" {
		c.Token.Account = "default"
	}
	if c.Token.EnvVar == "" {
		c.Token.EnvVar = "CALREPORT_TOKEN"
	}

	c.ClientSecretFile = expandPath(c.ClientSecretFile)
	c.Token.Path = expandPath(c.Token.Path)
}

// applyEnv lets the environment (or a .env file) override file settings.
func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv("CALREPORT_CLIENT_SECRET_FILE"); v != "" {
		c.ClientSecretFile = expandPath(v)
	}
	if v := os.Getenv("CALREPORT_TOKEN_FILE"); v != "" {
		c.Token.Path = expandPath(v)
	}
	if v := os.Getenv("CALREPORT_DEFAULT_CALENDAR"); v != "" {
		c.DefaultCalendar = v
	}
}

// Validate checks every calendar entry and the token store kind.
func (c *Config) Validate() error {
	switch c.Token.Store {
	case StoreFile, StoreSQLite, StoreEnv:
	default:
		return fmt.Errorf("%w: unknown token store %q", apperr.ErrInvalidArgument, c.Token.Store)
	}

	if _, ok := c.Calendars[c.DefaultCalendar]; !ok {
		return fmt.Errorf("%w: default_calendar %q is not a configured calendar (known: %s)",
			apperr.ErrInvalidArgument, c.DefaultCalendar, strings.Join(c.Aliases(), ", "))
	}

	for _, alias := range c.Aliases() {
		cal := c.Calendars[alias]
		switch cal.Type {
		case TypeGoogle:
			if cal.ID == "" {
				return fmt.Errorf("%w: calendar %q: id is required", apperr.ErrInvalidArgument, alias)
			}
		case TypeCalDAV:
			if cal.URL == "" || cal.Calendar == "" {
				return fmt.Errorf("%w: calendar %q: url and calendar are required", apperr.ErrInvalidArgument, alias)
			}
		case TypeICS:
			if cal.URL == "" {
				return fmt.Errorf("%w: calendar %q: url is required", apperr.ErrInvalidArgument, alias)
			}
		default:
			return fmt.Errorf("%w: calendar %q: unknown type %q", apperr.ErrInvalidArgument, alias, cal.Type)
		}
	}
	return nil
}

// Aliases returns the configured calendar aliases in sorted order.
func (c *Config) Aliases() []string {
	out := make([]string, 0, len(c.Calendars))
	for alias := range c.Calendars {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// GetPassword returns the CalDAV password, executing password_cmd if needed.
func (c Calendar) GetPassword() (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	if c.PasswordCmd == "" {
		return "", nil
	}

	out, err := exec.Command("sh", "-c", c.PasswordCmd).Output()
	if err != nil {
		return "", fmt.Errorf("%w: password command: %w", apperr.ErrAuthentication, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
