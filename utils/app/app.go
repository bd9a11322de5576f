// Package app manages the XDG-compliant filesystem layout organfox uses for
// presets, logs and cached state.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

const appLocalDataDir = "organfox"

// pathManager centralizes every directory organfox reads from or writes to.
type pathManager struct {
	isPortable bool
	rootDir    string

	configDir string
	dataDir   string
	stateDir  string
	cacheDir  string

	dbDir  string
	logDir string
}

var (
	paths         pathManager
	bootstrapOnce sync.Once
)

func initPaths() {
	bootstrapOnce.Do(func() {
		portableRoot := os.Getenv("ORGANFOX_ROOT")
		if portableRoot != "" {
			absRoot, err := filepath.Abs(portableRoot)
			if err != nil {
				panic(fmt.Sprintf("cannot resolve portable root: %v", err))
			}
			paths.isPortable = true
			paths.rootDir = absRoot
			paths.configDir = absRoot
			paths.stateDir = absRoot
			paths.dataDir = filepath.Join(absRoot, "data")
			paths.cacheDir = filepath.Join(absRoot, "cache")
			mustCreateDirectory(absRoot)
		} else {
			paths.dataDir = filepath.Join(xdg.DataHome, appLocalDataDir)
			paths.stateDir = filepath.Join(xdg.StateHome, appLocalDataDir)
			paths.cacheDir = filepath.Join(xdg.CacheHome, appLocalDataDir)
			path, err := xdg.ConfigFile(appLocalDataDir)
			if err != nil {
				panic(fmt.Sprintf("cannot resolve config dir: %v", err))
			}
			paths.configDir = path
		}
		paths.logDir = filepath.Join(paths.stateDir, "log")
		paths.dbDir = filepath.Join(paths.dataDir, "db")

		mustCreateDirectory(paths.configDir, paths.dataDir, paths.logDir, paths.dbDir)
	})
}

func mustCreateDirectory(dirs ...string) {
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				slog.Error("failed to create directory", "dir", dir, "error", err)
			}
		}
	}
}

// ConfigDir returns the directory organfox.toml lives in.
func ConfigDir() string {
	initPaths()
	return paths.configDir
}

// DataDir returns the directory for persistent application data.
func DataDir() string {
	initPaths()
	return paths.dataDir
}

// DBDir returns the directory holding the preset database (one document
// per organ inside it).
func DBDir() string {
	initPaths()
	return paths.dbDir
}

// LogDir returns the directory the engine log file is written to.
func LogDir() string {
	initPaths()
	return paths.logDir
}
