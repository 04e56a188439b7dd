package session

import "github.com/tribalmingle/mobileapp-sub000/internal/config"

// ResolveConfig loads the effective configuration using precedence:
// 1. environment (including envFile, default ~/.chatsync/.env)
// 2. the TOML file at path (default ~/.chatsync/config.toml)
// 3. built-in defaults
func ResolveConfig(path, envFile string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	if envFile == "" {
		envFile = EnvPath()
	}
	return config.Resolve(path, envFile)
}
