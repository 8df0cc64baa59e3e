package session

import "github.com/Sagarika311/roomsync/internal/config"

// DefaultSessionName is used when neither the flag, the environment, nor the
// config file names a session.
const DefaultSessionName = "main"

// Resolve determines the active session name. Precedence: the --session flag
// override, then the config layer (where ROOMSYNC_SESSION wins over the
// config.toml session entry), then "main". A missing config file is fine;
// the daemon runs on defaults.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.LoadOrDefault(ConfigPath()); err == nil && cfg.Session != "" {
		return cfg.Session
	}
	return DefaultSessionName
}
