// Package config loads the report configuration. Initiative patterns are
// loaded here and threaded explicitly into the report generator; the core
// never touches the filesystem itself.
package config

import (
	"errors"
	"io/fs"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the configuration surface consumed by the report generator.
type Config struct {
	// InitiativePatterns maps an initiative name to a regular expression
	// tested case-insensitively against the PR's source branch name.
	InitiativePatterns map[string]string `mapstructure:"initiative_patterns"`
}

// DefaultInitiativePatterns returns the bundled branch-name classification
// patterns, used when no config file provides its own.
func DefaultInitiativePatterns() map[string]string {
	return map[string]string{
		"Features":       `^feature/|^feat/`,
		"Bug Fixes":      `^fix/|^bugfix/|^hotfix/`,
		"Documentation":  `^docs/|^documentation/`,
		"Testing":        `^test/|^testing/`,
		"Refactoring":    `^refactor/`,
		"Dependencies":   `^deps/|^dependencies/`,
		"CI/CD":          `^ci/|^cd/`,
		"Performance":    `^perf/`,
		"Security":       `^security/`,
		"UI/UX":          `^ui/|^ux/`,
		"Analytics":      `^analytics/`,
		"API":            `^api/`,
		"Infrastructure": `^infra/`,
		"Configuration":  `^config/`,
		"Tooling":        `^tools/|^tooling/`,
		"Maintenance":    `^chore/|^maint/`,
		"Experiments":    `^exp/|^experimental/`,
	}
}

// Load reads the YAML config file at path, or searches the working directory
// and home directory for .github_report.yaml when path is empty. A missing
// file is not an error: the defaults apply. A malformed file is reported and
// the defaults apply as well, matching the forgiving behavior of the CLI.
func Load(path string, logger *zap.Logger) *Config {
	cfg := &Config{InitiativePatterns: DefaultInitiativePatterns()}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".github_report")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to load config file, using defaults",
				zap.String("path", path), zap.Error(err))
		}
		return cfg
	}

	if v.IsSet("initiative_patterns") {
		patterns := make(map[string]string)
		if err := v.UnmarshalKey("initiative_patterns", &patterns); err != nil {
			logger.Warn("invalid initiative_patterns in config, using defaults", zap.Error(err))
		} else if len(patterns) > 0 {
			cfg.InitiativePatterns = patterns
		}
	}
	return cfg
}
