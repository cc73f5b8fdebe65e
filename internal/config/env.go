package config

import "os"

// ApplyEnv applies the fixed environment override table. Environment values
// win over both documents but lose to explicitly set flags (changed map).
// A variable that is unset or empty leaves the configuration untouched.
func ApplyEnv(c *Config, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setString("source-url", os.Getenv("JIRA_URL"), &c.Source.URL)
	s.setString("jira.pat", os.Getenv("JIRA_PAT"), &c.Source.Token)
	s.setString("target-url", os.Getenv("GLPI_URL"), &c.Target.URL)
	s.setString("glpi.app_token", os.Getenv("GLPI_APP_TOKEN"), &c.Target.AppToken)
	s.setString("glpi.user_token", os.Getenv("GLPI_USER_TOKEN"), &c.Target.UserToken)
	s.setString("glpi.username", os.Getenv("GLPI_USERNAME"), &c.Target.Username)
	s.setString("glpi.password", os.Getenv("GLPI_PASSWORD"), &c.Target.Password)
	s.setString("log-level", os.Getenv("LOG_LEVEL"), &c.Logging.Level)
}
