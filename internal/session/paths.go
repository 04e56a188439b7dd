// Package session locates the on-disk state of one account: its log file and
// the lock that keeps a single sync daemon per account.
package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// Dir returns the directory of the account named by key (see AccountKey).
func Dir(key string) string {
	return filepath.Join(BaseDir(), "accounts", key)
}

// LogDir returns the log directory for an account.
func LogDir(key string) string {
	return filepath.Join(Dir(key), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(key string) string {
	return filepath.Join(LogDir(key), "chatsync.log")
}

// EnvPath returns the optional .env file next to the config.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the account directory tree with owner-only permissions.
func EnsureDir(key string) error {
	for _, d := range []string{Dir(key), LogDir(key)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
