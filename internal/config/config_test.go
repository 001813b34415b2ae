package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"calreport/internal/apperr"
)

const yamlConfig = `
default_calendar: qtof
client_secret_file: /etc/calreport/client_secret.json
token:
  store: sqlite
  account: lab
calendars:
  qtof:
    id: gnpn.chemh.lc.ms@gmail.com
  qqq:
    type: google
    id: 3eic0r8c6jmtdf9e350dg8cl74@group.calendar.google.com
  lab:
    type: caldav
    url: https://dav.example.com/
    username: me
    password: secret
    calendar: Lab
  holidays:
    type: ics
    url: https://example.com/holidays.ics
`

const tomlConfig = `
default_calendar = "qqq"

[token]
store = "env"
env_var = "MY_TOKEN"

[calendars.qqq]
type = "google"
id = "3eic0r8c6jmtdf9e350dg8cl74@group.calendar.google.com"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFrom(writeFile(t, "calreport.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.DefaultCalendar != "qtof" {
		t.Errorf("DefaultCalendar = %q, want qtof", cfg.DefaultCalendar)
	}
	if got := cfg.Calendars["qtof"]; got.Type != TypeGoogle || got.ID != "gnpn.chemh.lc.ms@gmail.com" {
		t.Errorf("qtof = %+v, want google calendar with default type", got)
	}
	if got := cfg.Calendars["lab"]; got.Type != TypeCalDAV || got.Calendar != "Lab" {
		t.Errorf("lab = %+v", got)
	}
	if cfg.Token.Store != StoreSQLite || cfg.Token.Account != "lab" {
		t.Errorf("Token = %+v", cfg.Token)
	}
	if filepath.Base(cfg.Token.Path) != "calreport.db" {
		t.Errorf("Token.Path = %q, want sqlite default", cfg.Token.Path)
	}
	if want := []string{"holidays", "lab", "qqq", "qtof"}; !equal(cfg.Aliases(), want) {
		t.Errorf("Aliases() = %v, want %v", cfg.Aliases(), want)
	}
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFrom(writeFile(t, "calreport.toml", tomlConfig))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.DefaultCalendar != "qqq" {
		t.Errorf("DefaultCalendar = %q, want qqq", cfg.DefaultCalendar)
	}
	if cfg.Token.Store != StoreEnv || cfg.Token.EnvVar != "MY_TOKEN" {
		t.Errorf("Token = %+v", cfg.Token)
	}
	if cfg.ClientSecretFile != "credentials.json" {
		t.Errorf("ClientSecretFile = %q, want credentials.json", cfg.ClientSecretFile)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DefaultCalendar != "primary" {
		t.Errorf("DefaultCalendar = %q, want primary", cfg.DefaultCalendar)
	}
	if got := cfg.Calendars["primary"]; got.Type != TypeGoogle || got.ID != "primary" {
		t.Errorf("primary = %+v", got)
	}
	if cfg.Token.Store != StoreFile || filepath.Base(cfg.Token.Path) != "calreport.json" {
		t.Errorf("Token = %+v", cfg.Token)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDefaultCalendarChoice(t *testing.T) {
	t.Setenv("CALREPORT_DEFAULT_CALENDAR", "")

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"primary configured", "calendars:\n  qtof:\n    id: a@x.com\n  primary:\n    id: primary\n", "primary"},
		{"single alias", "calendars:\n  lab:\n    id: lab@x.com\n", "lab"},
		{"no primary", "calendars:\n  qtof:\n    id: a@x.com\n  qqq:\n    id: b@x.com\n", "qqq"},
		{"explicit", "default_calendar: qtof\ncalendars:\n  qtof:\n    id: a@x.com\n  qqq:\n    id: b@x.com\n", "qtof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, "calreport.yaml", tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.DefaultCalendar != tt.want {
				t.Errorf("DefaultCalendar = %q, want %q", cfg.DefaultCalendar, tt.want)
			}
			if _, ok := cfg.Calendars[cfg.DefaultCalendar]; !ok {
				t.Errorf("DefaultCalendar %q does not resolve", cfg.DefaultCalendar)
			}
		})
	}

	path := writeFile(t, "calreport.yaml", "default_calendar: nope\ncalendars:\n  qtof:\n    id: a@x.com\n")
	if _, err := Load(path); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Load() with unknown default_calendar error = %v, want ErrInvalidArgument", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CALREPORT_CONFIG", writeFile(t, "calreport.yaml", yamlConfig))
	t.Setenv("GOOGLE_CLIENT_ID", "id-from-env")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret-from-env")
	t.Setenv("CALREPORT_TOKEN_FILE", "/tmp/token.json")
	t.Setenv("CALREPORT_DEFAULT_CALENDAR", "qqq")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClientID != "id-from-env" || cfg.ClientSecret != "secret-from-env" {
		t.Errorf("client = (%q, %q)", cfg.ClientID, cfg.ClientSecret)
	}
	if cfg.Token.Path != "/tmp/token.json" {
		t.Errorf("Token.Path = %q", cfg.Token.Path)
	}
	if cfg.DefaultCalendar != "qqq" {
		t.Errorf("DefaultCalendar = %q, want qqq", cfg.DefaultCalendar)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cal  Calendar
	}{
		{"google without id", Calendar{Type: TypeGoogle}},
		{"caldav without calendar", Calendar{Type: TypeCalDAV, URL: "https://dav.example.com/"}},
		{"ics without url", Calendar{Type: TypeICS}},
		{"unknown type", Calendar{Type: "exchange", URL: "https://x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Calendars["bad"] = tt.cal
			if err := cfg.Validate(); !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
		})
	}

	cfg := Default()
	cfg.Token.Store = "vault"
	if err := cfg.Validate(); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Validate() with unknown store error = %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := LoadFrom(writeFile(t, "bad.yaml", "calendars: [")); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("bad yaml error = %v", err)
	}
	if _, err := LoadFrom(writeFile(t, "cfg.json", "{}")); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("unsupported extension error = %v", err)
	}
}

func TestGetPassword(t *testing.T) {
	if got, _ := (Calendar{Password: "plain"}).GetPassword(); got != "plain" {
		t.Errorf("GetPassword() = %q, want plain", got)
	}
	got, err := (Calendar{PasswordCmd: "echo from-cmd"}).GetPassword()
	if err != nil || got != "from-cmd" {
		t.Errorf("GetPassword() = %q, %v", got, err)
	}
	if _, err := (Calendar{PasswordCmd: "exit 3"}).GetPassword(); !errors.Is(err, apperr.ErrAuthentication) {
		t.Errorf("failing command error = %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.credentials/x.json"); got != filepath.Join(home, ".credentials", "x.json") {
		t.Errorf("expandPath() = %q", got)
	}
	if got := expandPath("relative/x.json"); got != "relative/x.json" {
		t.Errorf("expandPath() = %q", got)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
