package conventions

import (
	"path/filepath"

	"k8s.io/client-go/util/homedir"
)

const (
	// DefaultDataDir is the default clockin data directory name (relative to home).
	DefaultDataDir = ".clockin"
	// DBFile is the SQLite database filename.
	DBFile = "clockin.db"
	// ConfigFile is the optional client configuration filename.
	ConfigFile = "config.yaml"

	// EnvPrefix is the prefix of the environment variables that set the CLI flags.
	EnvPrefix = "CLOCKIN"
)

// DataDir returns the data directory under the home directory.
func DataDir() string {
	return filepath.Join(homedir.HomeDir(), DefaultDataDir)
}

// DBPath returns the default database path.
func DBPath() string {
	return filepath.Join(DataDir(), DBFile)
}

// ConfigPath returns the default client configuration path.
func ConfigPath() string {
	return filepath.Join(DataDir(), ConfigFile)
}
