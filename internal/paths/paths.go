// Package paths locates callrec's files under its home directory.
//
// Layout:
//
//	~/.callrec/
//	  config.json
//	  index.db
//	  repository/      archives in Maven layout
//	  logs/callrec.log
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// HomeEnvVar overrides the home directory.
	HomeEnvVar  = "CALLREC_HOME"
	// DefaultHome is the home directory name under the user's home.
	DefaultHome = ".callrec"

	ConfigFile    = "config.json"
	IndexFile     = "index.db"
	RepositoryDir = "repository"
	LogsDir       = "logs"
	LogFile       = "callrec.log"
)

// GetHome returns the callrec home directory. CALLREC_HOME wins over
// ~/.callrec.
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(userHome, DefaultHome), nil
}

func inHome(parts ...string) (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, parts...)...), nil
}

// GetConfigPath returns the default config file location.
func GetConfigPath() (string, error) {
	return inHome(ConfigFile)
}

// GetIndexPath returns the default artifact index location.
func GetIndexPath() (string, error) {
	return inHome(IndexFile)
}

// GetRepositoryDir returns the default local archive repository.
func GetRepositoryDir() (string, error) {
	return inHome(RepositoryDir)
}

// GetLogPath returns the default log file location.
func GetLogPath() (string, error) {
	return inHome(LogsDir, LogFile)
}

// EnsureDir creates dir and its parents and returns it.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureHome creates the home directory.
func EnsureHome() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return EnsureDir(home)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(userHome, path[2:])
}
