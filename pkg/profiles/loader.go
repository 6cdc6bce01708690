package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openloom/openloom/pkg/core"
)

// Loader reads framework profiles from YAML files or directories and
// registers them.
type Loader struct {
	logger   zerolog.Logger
	registry *Registry
}

// NewLoader creates a loader that feeds the given registry.
func NewLoader(registry *Registry, logger zerolog.Logger) *Loader {
	return &Loader{
		logger:   logger.With().Str("component", "profile-loader").Logger(),
		registry: registry,
	}
}

// LoadFromPaths loads profiles from a list of file or directory paths.
func (l *Loader) LoadFromPaths(paths []string) (int, error) {
	total := 0
	for _, path := range paths {
		n, err := l.loadFromPath(path)
		if err != nil {
			return total, err
		}
		total += n
	}

	l.logger.Info().
		Int("profiles", total).
		Int("sources", len(paths)).
		Msg("Framework profiles loaded")

	return total, nil
}

func (l *Loader) loadFromPath(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, core.NewConfigurationError(core.ErrCodeMalformedProfile,
			fmt.Sprintf("cannot access profile path %s", path), err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(path)
	}

	if err := l.loadFromFile(path); err != nil {
		return 0, err
	}
	return 1, nil
}

// loadFromDirectory loads every .yaml/.yml file beneath a directory.
func (l *Loader) loadFromDirectory(dirPath string) (int, error) {
	count := 0
	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		if err := l.loadFromFile(path); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		if _, classified := core.KindOf(err); classified {
			return count, err
		}
		return count, core.NewConfigurationError(core.ErrCodeMalformedProfile,
			fmt.Sprintf("failed to walk profile directory %s", dirPath), err)
	}
	return count, nil
}

// loadFromFile parses and registers a single profile file. A profile
// that fails to parse or validate is a hard failure, never skipped.
func (l *Loader) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.NewConfigurationError(core.ErrCodeMalformedProfile,
			fmt.Sprintf("failed to read profile file %s", path), err)
	}

	var profile core.FrameworkProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return core.NewConfigurationError(core.ErrCodeMalformedProfile,
			fmt.Sprintf("failed to parse profile file %s", path), err)
	}

	if err := l.registry.Register(&profile); err != nil {
		return err
	}

	l.logger.Debug().
		Str("path", path).
		Str("framework", profile.Name).
		Msg("Framework profile loaded from file")

	return nil
}
