package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath     string `yaml:"db_path"`
	TeamConfig string `yaml:"team_config"`
	ListenAddr string `yaml:"listen_addr"`
}

var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride records a process-wide database path override (CLI --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	defer dbPathOverrideMu.Unlock()
	dbPathOverride = path
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	defer dbPathOverrideMu.RUnlock()
	return dbPathOverride
}

// LoadSettings loads config.yaml once per process. Missing files yield
// zero-value settings, not an error.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}

		// First readable file wins.
		paths := []string{
			filepath.Join(dir, "config.yaml"),
			filepath.Join(string(os.PathSeparator), "etc", "taskbrew", "config.yaml"),
			"config.yaml",
		}
		for _, p := range paths {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			settingsErr = err
			return
		}
	})
	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the fixed config search list
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
