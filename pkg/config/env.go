package config

import "strings"

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// NormalizeEnvironment lowercases env and maps empty to development
func NormalizeEnvironment(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return EnvDevelopment
	}
	return env
}

// IsProductionLike reports whether env needs shared infrastructure:
// a real database host, a remote broker and Redis
func IsProductionLike(env string) bool {
	env = NormalizeEnvironment(env)
	return env == EnvStaging || env == EnvProduction
}
