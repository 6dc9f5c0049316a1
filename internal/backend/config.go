package backend

import (
	"fmt"

	"rette/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		RosterEndpoint: appConfig.RosterEndpoint,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleSheetTimeZone:      appConfig.GoogleSheetTimeZone,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,

		SeedFile: appConfig.MemorySeedFile,

		RateLimit: appConfig.RemoteRateLimit,
		Timeout:   appConfig.RemoteTimeout,
	}, nil
}

// Validate validates the backend configuration. Missing endpoints and
// spreadsheet ids are allowed: they mean setup required.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SheetsBackend:
		if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
			return fmt.Errorf("Google Sheet name is required for sheets backend")
		}
	case MemoryBackend:
		if c.SeedFile == "" {
			return fmt.Errorf("seed file path is required for memory backend")
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{AppScriptBackend, SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
