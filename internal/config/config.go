// Package config resolves the layered runtime configuration for a migration
// run: a shared document, a migration-specific document merged over it,
// environment overrides, and command-line flags, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// TLSPolicy is the tri-state server certificate policy for one client:
// verify against the system pool (zero value), verify against a custom CA
// bundle (CABundle set), or skip verification entirely (Insecure).
type TLSPolicy struct {
	Insecure bool
	CABundle string
}

// SourceConfig addresses the system records are read from.
type SourceConfig struct {
	URL     string
	Token   string
	Project string
	JQL     string
	TLS     TLSPolicy
	Timeout time.Duration
}

// Query returns the effective search query: the configured JQL override, or
// the whole project in key order.
func (s SourceConfig) Query() string {
	if s.JQL != "" {
		return s.JQL
	}
	return fmt.Sprintf("project = %s ORDER BY key ASC", s.Project)
}

// TargetConfig addresses the system records are written to. Either UserToken
// or Username/Password must be set; the token wins when both are.
type TargetConfig struct {
	URL       string
	AppToken  string
	UserToken string
	Username  string
	Password  string
	TLS       TLSPolicy
	Timeout   time.Duration
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string
	File  string
}

// MigrationConfig holds the knobs of the batch loop itself.
type MigrationConfig struct {
	BatchSize     int
	MaxRecords    int
	OnlyRecord    string
	StateFile     string
	MissingReport string
	BatchPause    time.Duration
	Timezone      string
	DryRun        bool
}

// DefaultsConfig names the target-side fallbacks used when a source value
// cannot be resolved. Status and Type are status/type names looked up in the
// target's tables; an empty User, Category or Location means the
// corresponding target field is left unset rather than defaulted.
type DefaultsConfig struct {
	User     string
	Category string
	Location string
	Status   string
	Type     string
	Urgency  int
	Impact   int
}

// MappingsConfig carries the name→identifier tables used during transform.
// Keys are matched case-insensitively.
type MappingsConfig struct {
	Status                 map[string]int
	Type                   map[string]int
	Priority               map[string]PriorityRef
	ClassificationLocation map[string]string
	ClassificationItem     map[string]ItemRef
}

// PriorityRef is the urgency/impact pair a source priority maps to.
type PriorityRef struct {
	Urgency int
	Impact  int
}

// ItemRef names a target inventory item by type and name.
type ItemRef struct {
	Type string
	Name string
}

// FieldsConfig names the source custom-field identifiers the fetch stage
// reads. Empty fields disable the corresponding extraction.
type FieldsConfig struct {
	RequestType    string
	Classification string
	Participants   string
}

// Config is the fully resolved runtime configuration for one migration run.
type Config struct {
	Source    SourceConfig
	Target    TargetConfig
	Logging   LoggingConfig
	Migration MigrationConfig
	Defaults  DefaultsConfig
	Mappings  MappingsConfig
	Fields    FieldsConfig

	// baseDir anchors relative path values; it is the directory of the
	// shared document when one exists, else of the specific document.
	baseDir string
}

// Default returns a Config with default values.
func Default() Config {
	return Config{
		Source: SourceConfig{Timeout: 30 * time.Second},
		Target: TargetConfig{Timeout: 30 * time.Second},
		Logging: LoggingConfig{
			Level: "info",
		},
		Migration: MigrationConfig{
			BatchSize:     50,
			StateFile:     "migration_state.json",
			MissingReport: "missing_users.txt",
			Timezone:      "Asia/Bangkok",
		},
		Defaults: DefaultsConfig{
			Status:  "planned",
			Type:    "request",
			Urgency: 3,
			Impact:  3,
		},
	}
}

// Load resolves the configuration documents into c. The specific document is
// required; the shared one is optional and merged underneath it. Environment
// overrides are applied after the documents. Values whose flags appear in
// changed are left alone throughout, so flag values survive with the highest
// precedence. Validation is separate so inspection-only commands can skip it.
func (c *Config) Load(sharedPath, specificPath string, changed map[string]bool) error {
	var shared fileDocument
	if sharedPath != "" {
		doc, err := loadDocument(sharedPath)
		switch {
		case err == nil:
			shared = doc
			c.baseDir = filepath.Dir(sharedPath)
		case os.IsNotExist(err):
			// Shared settings are optional.
		default:
			return err
		}
	}

	if specificPath == "" {
		return fmt.Errorf("%w: no migration config given", domain.ErrMissingFile)
	}
	specific, err := loadDocument(specificPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrMissingFile, specificPath)
		}
		return err
	}
	if c.baseDir == "" {
		c.baseDir = filepath.Dir(specificPath)
	}

	merged := mergeDocuments(shared, specific)
	if err := c.apply(merged, changed); err != nil {
		return err
	}
	ApplyEnv(c, changed)
	c.resolvePaths()
	return nil
}

// Validate checks that every key required to reach both services is present.
// All missing keys are reported in a single error.
func (c *Config) Validate() error {
	var missing []string
	if c.Source.URL == "" {
		missing = append(missing, "jira.url")
	}
	if c.Source.Token == "" {
		missing = append(missing, "jira.pat")
	}
	if c.Source.Project == "" && c.Source.JQL == "" && c.Migration.OnlyRecord == "" {
		missing = append(missing, "jira.project")
	}
	if c.Target.URL == "" {
		missing = append(missing, "glpi.url")
	}
	if c.Target.AppToken == "" {
		missing = append(missing, "glpi.app_token")
	}
	if c.Target.UserToken == "" && (c.Target.Username == "" || c.Target.Password == "") {
		missing = append(missing, "glpi.user_token (or glpi.username and glpi.password)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingKey, strings.Join(missing, ", "))
	}

	if c.Migration.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if c.Source.Timeout <= 0 || c.Target.Timeout <= 0 {
		return errors.New("client timeout must be positive")
	}
	if c.Migration.MaxRecords < 0 {
		return errors.New("max records must not be negative")
	}
	return nil
}

// apply copies document values into c, skipping any field whose flag was
// explicitly set on the command line.
func (c *Config) apply(doc fileDocument, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("source-url", doc.Jira.URL, &c.Source.URL)
	s.setString("jira.pat", doc.Jira.PAT, &c.Source.Token)
	s.setString("project", doc.Jira.Project, &c.Source.Project)
	s.setString("jql", doc.Jira.JQL, &c.Source.JQL)
	if err := s.setDuration("jira.timeout", doc.Jira.Timeout, &c.Source.Timeout); err != nil {
		return err
	}
	if err := s.setTLS("jira.verify_ssl", doc.Jira.VerifySSL, &c.Source.TLS); err != nil {
		return err
	}

	s.setString("target-url", doc.GLPI.URL, &c.Target.URL)
	s.setString("glpi.app_token", doc.GLPI.AppToken, &c.Target.AppToken)
	s.setString("glpi.user_token", doc.GLPI.UserToken, &c.Target.UserToken)
	s.setString("glpi.username", doc.GLPI.Username, &c.Target.Username)
	s.setString("glpi.password", doc.GLPI.Password, &c.Target.Password)
	if err := s.setDuration("glpi.timeout", doc.GLPI.Timeout, &c.Target.Timeout); err != nil {
		return err
	}
	if err := s.setTLS("glpi.verify_ssl", doc.GLPI.VerifySSL, &c.Target.TLS); err != nil {
		return err
	}

	s.setString("log-level", doc.Logging.Level, &c.Logging.Level)
	s.setString("log-file", doc.Logging.File, &c.Logging.File)

	s.setInt("batch-size", doc.Migration.BatchSize, &c.Migration.BatchSize)
	s.setInt("max-records", doc.Migration.MaxRecords, &c.Migration.MaxRecords)
	s.setString("record", doc.Migration.OnlyRecord, &c.Migration.OnlyRecord)
	s.setString("state-file", doc.Migration.StateFile, &c.Migration.StateFile)
	s.setString("missing-report", doc.Migration.MissingReport, &c.Migration.MissingReport)
	if err := s.setDuration("batch-pause", doc.Migration.BatchPause, &c.Migration.BatchPause); err != nil {
		return err
	}
	s.setString("timezone", doc.Migration.Timezone, &c.Migration.Timezone)

	s.setString("defaults.user", doc.Defaults.User, &c.Defaults.User)
	s.setString("defaults.category", doc.Defaults.Category, &c.Defaults.Category)
	s.setString("defaults.location", doc.Defaults.Location, &c.Defaults.Location)
	s.setString("defaults.status", doc.Defaults.Status, &c.Defaults.Status)
	s.setString("defaults.type", doc.Defaults.Type, &c.Defaults.Type)
	s.setInt("defaults.urgency", doc.Defaults.Urgency, &c.Defaults.Urgency)
	s.setInt("defaults.impact", doc.Defaults.Impact, &c.Defaults.Impact)

	if len(doc.Mappings.Status) > 0 {
		c.Mappings.Status = doc.Mappings.Status
	}
	if len(doc.Mappings.Type) > 0 {
		c.Mappings.Type = doc.Mappings.Type
	}
	if len(doc.Mappings.Priority) > 0 {
		c.Mappings.Priority = make(map[string]PriorityRef, len(doc.Mappings.Priority))
		for k, v := range doc.Mappings.Priority {
			c.Mappings.Priority[k] = PriorityRef{Urgency: v.Urgency, Impact: v.Impact}
		}
	}
	if len(doc.Mappings.ClassificationLocation) > 0 {
		c.Mappings.ClassificationLocation = doc.Mappings.ClassificationLocation
	}
	if len(doc.Mappings.ClassificationItem) > 0 {
		c.Mappings.ClassificationItem = make(map[string]ItemRef, len(doc.Mappings.ClassificationItem))
		for k, v := range doc.Mappings.ClassificationItem {
			c.Mappings.ClassificationItem[k] = ItemRef{Type: v.Type, Name: v.Name}
		}
	}

	s.setString("custom_fields.request_type", doc.Fields.RequestType, &c.Fields.RequestType)
	s.setString("custom_fields.classification", doc.Fields.Classification, &c.Fields.Classification)
	s.setString("custom_fields.participants", doc.Fields.Participants, &c.Fields.Participants)

	return nil
}

// resolvePaths rewrites relative path values against the anchoring document
// directory so the working directory of the process never matters.
func (c *Config) resolvePaths() {
	c.Source.TLS.CABundle = c.absPath(c.Source.TLS.CABundle)
	c.Target.TLS.CABundle = c.absPath(c.Target.TLS.CABundle)
	c.Migration.StateFile = c.absPath(c.Migration.StateFile)
	c.Migration.MissingReport = c.absPath(c.Migration.MissingReport)
	c.Logging.File = c.absPath(c.Logging.File)
}

func (c *Config) absPath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setTLS normalizes and sets a verify_ssl document value.
func (s *configSetter) setTLS(flag string, value any, dst *TLSPolicy) error {
	policy, ok, err := tlsPolicy(value)
	if err != nil {
		return err
	}
	if !ok || s.changed[flag] {
		return nil
	}
	*dst = policy
	return nil
}
