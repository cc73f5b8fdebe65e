package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// fileDocument mirrors Config for document decoding: durations are strings,
// every field is optional, and verify_ssl accepts either a boolean or a
// certificate bundle path. The same shape is decoded from YAML or TOML
// depending on the file extension.
type fileDocument struct {
	Jira      jiraSection      `toml:"jira" yaml:"jira"`
	GLPI      glpiSection      `toml:"glpi" yaml:"glpi"`
	Logging   loggingSection   `toml:"logging" yaml:"logging"`
	Migration migrationSection `toml:"migration" yaml:"migration"`
	Defaults  defaultsSection  `toml:"defaults" yaml:"defaults"`
	Mappings  mappingsSection  `toml:"mappings" yaml:"mappings"`
	Fields    fieldsSection    `toml:"custom_fields" yaml:"custom_fields"`
}

type jiraSection struct {
	URL       string `toml:"url" yaml:"url"`
	PAT       string `toml:"pat" yaml:"pat"`
	Project   string `toml:"project" yaml:"project"`
	JQL       string `toml:"jql" yaml:"jql"`
	VerifySSL any    `toml:"verify_ssl" yaml:"verify_ssl"`
	Timeout   string `toml:"timeout" yaml:"timeout"`
}

type glpiSection struct {
	URL       string `toml:"url" yaml:"url"`
	AppToken  string `toml:"app_token" yaml:"app_token"`
	UserToken string `toml:"user_token" yaml:"user_token"`
	Username  string `toml:"username" yaml:"username"`
	Password  string `toml:"password" yaml:"password"`
	VerifySSL any    `toml:"verify_ssl" yaml:"verify_ssl"`
	Timeout   string `toml:"timeout" yaml:"timeout"`
}

type loggingSection struct {
	Level string `toml:"level" yaml:"level"`
	File  string `toml:"file" yaml:"file"`
}

type migrationSection struct {
	BatchSize     int    `toml:"batch_size" yaml:"batch_size"`
	MaxRecords    int    `toml:"max_records" yaml:"max_records"`
	OnlyRecord    string `toml:"only_record" yaml:"only_record"`
	StateFile     string `toml:"state_file" yaml:"state_file"`
	MissingReport string `toml:"missing_report" yaml:"missing_report"`
	BatchPause    string `toml:"batch_pause" yaml:"batch_pause"`
	Timezone      string `toml:"timezone" yaml:"timezone"`
}

type defaultsSection struct {
	User     string `toml:"user" yaml:"user"`
	Category string `toml:"category" yaml:"category"`
	Location string `toml:"location" yaml:"location"`
	Status   string `toml:"status" yaml:"status"`
	Type     string `toml:"type" yaml:"type"`
	Urgency  int    `toml:"urgency" yaml:"urgency"`
	Impact   int    `toml:"impact" yaml:"impact"`
}

type mappingsSection struct {
	Status                 map[string]int         `toml:"status" yaml:"status"`
	Type                   map[string]int         `toml:"type" yaml:"type"`
	Priority               map[string]priorityRef `toml:"priority" yaml:"priority"`
	ClassificationLocation map[string]string      `toml:"classification_location" yaml:"classification_location"`
	ClassificationItem     map[string]itemRef     `toml:"classification_item" yaml:"classification_item"`
}

type priorityRef struct {
	Urgency int `toml:"urgency" yaml:"urgency"`
	Impact  int `toml:"impact" yaml:"impact"`
}

type itemRef struct {
	Type string `toml:"type" yaml:"type"`
	Name string `toml:"name" yaml:"name"`
}

type fieldsSection struct {
	RequestType    string `toml:"request_type" yaml:"request_type"`
	Classification string `toml:"classification" yaml:"classification"`
	Participants   string `toml:"participants" yaml:"participants"`
}

// loadDocument reads and parses one configuration document. The parser is
// chosen by file extension.
func loadDocument(path string) (fileDocument, error) {
	var doc fileDocument
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return doc, fmt.Errorf("%w: %s: %v", domain.ErrParse, path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &doc); err != nil {
			return doc, fmt.Errorf("%w: %s: %v", domain.ErrParse, path, err)
		}
	default:
		return doc, fmt.Errorf("%w: %s: unsupported config format %q", domain.ErrParse, path, filepath.Ext(path))
	}
	return doc, nil
}

// mergeDocuments layers the migration-specific document over the shared one.
// Scalar values from the specific side replace shared values; mapping tables
// merge key-wise with the specific side winning. Neither input is mutated.
func mergeDocuments(shared, specific fileDocument) fileDocument {
	out := shared

	overlayString(&out.Jira.URL, specific.Jira.URL)
	overlayString(&out.Jira.PAT, specific.Jira.PAT)
	overlayString(&out.Jira.Project, specific.Jira.Project)
	overlayString(&out.Jira.JQL, specific.Jira.JQL)
	overlayAny(&out.Jira.VerifySSL, specific.Jira.VerifySSL)
	overlayString(&out.Jira.Timeout, specific.Jira.Timeout)

	overlayString(&out.GLPI.URL, specific.GLPI.URL)
	overlayString(&out.GLPI.AppToken, specific.GLPI.AppToken)
	overlayString(&out.GLPI.UserToken, specific.GLPI.UserToken)
	overlayString(&out.GLPI.Username, specific.GLPI.Username)
	overlayString(&out.GLPI.Password, specific.GLPI.Password)
	overlayAny(&out.GLPI.VerifySSL, specific.GLPI.VerifySSL)
	overlayString(&out.GLPI.Timeout, specific.GLPI.Timeout)

	overlayString(&out.Logging.Level, specific.Logging.Level)
	overlayString(&out.Logging.File, specific.Logging.File)

	overlayInt(&out.Migration.BatchSize, specific.Migration.BatchSize)
	overlayInt(&out.Migration.MaxRecords, specific.Migration.MaxRecords)
	overlayString(&out.Migration.OnlyRecord, specific.Migration.OnlyRecord)
	overlayString(&out.Migration.StateFile, specific.Migration.StateFile)
	overlayString(&out.Migration.MissingReport, specific.Migration.MissingReport)
	overlayString(&out.Migration.BatchPause, specific.Migration.BatchPause)
	overlayString(&out.Migration.Timezone, specific.Migration.Timezone)

	overlayString(&out.Defaults.User, specific.Defaults.User)
	overlayString(&out.Defaults.Category, specific.Defaults.Category)
	overlayString(&out.Defaults.Location, specific.Defaults.Location)
	overlayString(&out.Defaults.Status, specific.Defaults.Status)
	overlayString(&out.Defaults.Type, specific.Defaults.Type)
	overlayInt(&out.Defaults.Urgency, specific.Defaults.Urgency)
	overlayInt(&out.Defaults.Impact, specific.Defaults.Impact)

	out.Mappings.Status = mergeMaps(shared.Mappings.Status, specific.Mappings.Status)
	out.Mappings.Type = mergeMaps(shared.Mappings.Type, specific.Mappings.Type)
	out.Mappings.Priority = mergeMaps(shared.Mappings.Priority, specific.Mappings.Priority)
	out.Mappings.ClassificationLocation = mergeMaps(shared.Mappings.ClassificationLocation, specific.Mappings.ClassificationLocation)
	out.Mappings.ClassificationItem = mergeMaps(shared.Mappings.ClassificationItem, specific.Mappings.ClassificationItem)

	overlayString(&out.Fields.RequestType, specific.Fields.RequestType)
	overlayString(&out.Fields.Classification, specific.Fields.Classification)
	overlayString(&out.Fields.Participants, specific.Fields.Participants)

	return out
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func overlayAny(dst *any, v any) {
	if v != nil {
		*dst = v
	}
}

// mergeMaps unions two mapping tables with the override side winning per
// key. The result never aliases the override map, so later merges cannot
// write through to a caller-owned document.
func mergeMaps[V any](base, override map[string]V) map[string]V {
	if len(override) == 0 {
		return base
	}
	if len(base) == 0 {
		return override
	}
	out := make(map[string]V, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// tlsPolicy normalizes a verify_ssl document value: a boolean toggles
// verification, a string names a CA bundle path. The second return reports
// whether the document carried a value at all.
func tlsPolicy(v any) (TLSPolicy, bool, error) {
	switch t := v.(type) {
	case nil:
		return TLSPolicy{}, false, nil
	case bool:
		return TLSPolicy{Insecure: !t}, true, nil
	case string:
		if t == "" {
			return TLSPolicy{}, false, nil
		}
		return TLSPolicy{CABundle: t}, true, nil
	default:
		return TLSPolicy{}, false, fmt.Errorf("verify_ssl: want boolean or certificate path, got %T", v)
	}
}
