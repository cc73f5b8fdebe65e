package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deskbridge/deskbridge/internal/domain"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Migration.BatchSize != 50 {
		t.Errorf("BatchSize = %v, want 50", cfg.Migration.BatchSize)
	}
	if cfg.Migration.StateFile != "migration_state.json" {
		t.Errorf("StateFile = %v, want migration_state.json", cfg.Migration.StateFile)
	}
	if cfg.Source.Timeout != 30*time.Second {
		t.Errorf("Source.Timeout = %v, want 30s", cfg.Source.Timeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Migration.Timezone != "Asia/Bangkok" {
		t.Errorf("Timezone = %v, want Asia/Bangkok", cfg.Migration.Timezone)
	}
	if cfg.Defaults.Status != "planned" || cfg.Defaults.Type != "request" {
		t.Errorf("Defaults status/type = %q/%q, want planned/request", cfg.Defaults.Status, cfg.Defaults.Type)
	}
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()
	shared := writeDoc(t, dir, "shared.yaml", `
jira:
  url: https://jira.example.com
  pat: shared-pat
glpi:
  url: https://glpi.example.com/apirest.php
  app_token: app-tok
  user_token: user-tok
logging:
  level: warn
migration:
  batch_size: 50
mappings:
  status:
    Open: 1
    Closed: 6
`)
	specific := writeDoc(t, dir, "tickets.yaml", `
jira:
  project: SUP
migration:
  batch_size: 10
mappings:
  status:
    Closed: 5
`)

	cfg := Default()
	if err := cfg.Load(shared, specific, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Migration.BatchSize != 10 {
		t.Errorf("BatchSize = %v, want 10 (specific over shared)", cfg.Migration.BatchSize)
	}
	if cfg.Source.URL != "https://jira.example.com" {
		t.Errorf("Source.URL = %v, want shared value", cfg.Source.URL)
	}
	if cfg.Source.Project != "SUP" {
		t.Errorf("Source.Project = %v, want SUP", cfg.Source.Project)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
	if got := cfg.Mappings.Status["Open"]; got != 1 {
		t.Errorf("Status[Open] = %v, want 1 (kept from shared)", got)
	}
	if got := cfg.Mappings.Status["Closed"]; got != 5 {
		t.Errorf("Status[Closed] = %v, want 5 (specific wins)", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	specific := writeDoc(t, dir, "tickets.yaml", `
glpi:
  app_token: doc-tok
logging:
  level: warn
`)

	os.Setenv("GLPI_APP_TOKEN", "env-tok")
	os.Setenv("LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("GLPI_APP_TOKEN")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg := Default()
	if err := cfg.Load("", specific, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.AppToken != "env-tok" {
		t.Errorf("AppToken = %v, want env-tok (env wins over documents)", cfg.Target.AppToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %v, want debug (env wins over documents)", cfg.Logging.Level)
	}
}

func TestLoadFlagsBeatEnv(t *testing.T) {
	dir := t.TempDir()
	specific := writeDoc(t, dir, "tickets.yaml", `
logging:
  level: warn
`)

	os.Setenv("LOG_LEVEL", "debug")
	defer os.Unsetenv("LOG_LEVEL")

	cfg := Default()
	cfg.Logging.Level = "trace" // bound flag value
	changed := map[string]bool{"log-level": true}
	if err := cfg.Load("", specific, changed); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "trace" {
		t.Errorf("Level = %v, want trace (flag wins over env and documents)", cfg.Logging.Level)
	}
}

func TestLoadMissingSpecificDocument(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	err := cfg.Load("", filepath.Join(dir, "absent.yaml"), nil)
	if !errors.Is(err, domain.ErrMissingFile) {
		t.Errorf("Load error = %v, want ErrMissingFile", err)
	}
}

func TestLoadSharedDocumentOptional(t *testing.T) {
	dir := t.TempDir()
	specific := writeDoc(t, dir, "tickets.yaml", `
migration:
  state_file: state/tickets.json
`)

	cfg := Default()
	if err := cfg.Load(filepath.Join(dir, "no-shared.yaml"), specific, nil); err != nil {
		t.Fatalf("Load with absent shared document: %v", err)
	}

	// With no shared document, the specific document's directory anchors
	// relative paths.
	want := filepath.Join(dir, "state", "tickets.json")
	if cfg.Migration.StateFile != want {
		t.Errorf("StateFile = %v, want %v", cfg.Migration.StateFile, want)
	}
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	bad := writeDoc(t, dir, "bad.yaml", "jira: [unclosed")

	cfg := Default()
	if err := cfg.Load("", bad, nil); !errors.Is(err, domain.ErrParse) {
		t.Errorf("Load error = %v, want ErrParse", err)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	doc := writeDoc(t, dir, "config.json", `{"jira": {}}`)

	cfg := Default()
	if err := cfg.Load("", doc, nil); !errors.Is(err, domain.ErrParse) {
		t.Errorf("Load error = %v, want ErrParse for unsupported extension", err)
	}
}

func TestLoadTOMLDocument(t *testing.T) {
	dir := t.TempDir()
	specific := writeDoc(t, dir, "tickets.toml", `
[jira]
url = "https://jira.example.com"
project = "SUP"

[migration]
batch_size = 25
batch_pause = "2s"
`)

	cfg := Default()
	if err := cfg.Load("", specific, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Project != "SUP" {
		t.Errorf("Project = %v, want SUP", cfg.Source.Project)
	}
	if cfg.Migration.BatchSize != 25 {
		t.Errorf("BatchSize = %v, want 25", cfg.Migration.BatchSize)
	}
	if cfg.Migration.BatchPause != 2*time.Second {
		t.Errorf("BatchPause = %v, want 2s", cfg.Migration.BatchPause)
	}
}

func TestLoadTLSPolicies(t *testing.T) {
	dir := t.TempDir()
	shared := writeDoc(t, dir, "shared.yaml", `
jira:
  verify_ssl: false
glpi:
  verify_ssl: certs/ca.pem
`)
	specific := writeDoc(t, dir, "tickets.yaml", "")

	cfg := Default()
	if err := cfg.Load(shared, specific, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Source.TLS.Insecure {
		t.Error("Source.TLS.Insecure = false, want true")
	}
	want := filepath.Join(dir, "certs", "ca.pem")
	if cfg.Target.TLS.CABundle != want {
		t.Errorf("Target CABundle = %v, want %v (resolved against shared dir)", cfg.Target.TLS.CABundle, want)
	}
	if cfg.Target.TLS.Insecure {
		t.Error("Target.TLS.Insecure = true, want false")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Source.URL = "https://jira.example.com"
	valid.Source.Token = "pat"
	valid.Source.Project = "SUP"
	valid.Target.URL = "https://glpi.example.com"
	valid.Target.AppToken = "app"
	valid.Target.UserToken = "user"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid with user token",
			mutate: func(c *Config) {},
		},
		{
			name: "valid with username and password",
			mutate: func(c *Config) {
				c.Target.UserToken = ""
				c.Target.Username = "glpi"
				c.Target.Password = "secret"
			},
		},
		{
			name:    "missing source token",
			mutate:  func(c *Config) { c.Source.Token = "" },
			wantErr: domain.ErrMissingKey,
		},
		{
			name: "missing all target credentials",
			mutate: func(c *Config) {
				c.Target.UserToken = ""
			},
			wantErr: domain.ErrMissingKey,
		},
		{
			name: "password without username",
			mutate: func(c *Config) {
				c.Target.UserToken = ""
				c.Target.Password = "secret"
			},
			wantErr: domain.ErrMissingKey,
		},
		{
			name:    "missing project and query",
			mutate:  func(c *Config) { c.Source.Project = "" },
			wantErr: domain.ErrMissingKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsZeroBatch(t *testing.T) {
	cfg := Default()
	cfg.Source.URL = "https://jira.example.com"
	cfg.Source.Token = "pat"
	cfg.Source.Project = "SUP"
	cfg.Target.URL = "https://glpi.example.com"
	cfg.Target.AppToken = "app"
	cfg.Target.UserToken = "user"
	cfg.Migration.BatchSize = 0

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted zero batch size")
	}
}

func TestMergeMapsDoesNotMutateInputs(t *testing.T) {
	base := map[string]int{"Open": 1, "Closed": 6}
	override := map[string]int{"Closed": 5}

	merged := mergeMaps(base, override)

	if base["Closed"] != 6 {
		t.Errorf("base mutated: Closed = %v, want 6", base["Closed"])
	}
	if merged["Closed"] != 5 || merged["Open"] != 1 {
		t.Errorf("merged = %v, want override winning per key", merged)
	}
}

func TestQuery(t *testing.T) {
	s := SourceConfig{Project: "SUP"}
	if got := s.Query(); got != "project = SUP ORDER BY key ASC" {
		t.Errorf("Query() = %q", got)
	}

	s.JQL = "assignee = currentUser()"
	if got := s.Query(); got != "assignee = currentUser()" {
		t.Errorf("Query() = %q, want configured JQL", got)
	}
}
