package config

import "os"

const (
	appNameVar = "APP_NAME"
	folderVar  = "FOLDER"
	siteURLVar = "SITE_URL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Turnstile")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderVar, "./data")
}

// GetSiteURL returns the production site origin, used to seed the OAuth
// callback allow-list.
func (EnvVars) GetSiteURL() string {
	return GetEnv(siteURLVar, "https://surfing.salty.vip")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
