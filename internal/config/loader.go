package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/oompa-dev/oompa/internal/core"
)

// Loader reads a swarm configuration file with env overrides.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "OOMPA",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "OOMPA",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads, defaults, and validates the swarm configuration.
// Precedence (highest to lowest): env (OOMPA_*), file, defaults.
func (l *Loader) Load() (*Swarm, error) {
	l.v.SetEnvPrefix(l.envPrefix)
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("swarm")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, core.ErrValidation("CONFIG_READ",
			fmt.Sprintf("reading config: %v", err)).WithCause(err)
	}

	var swarm Swarm
	if err := l.v.Unmarshal(&swarm); err != nil {
		return nil, core.ErrValidation("CONFIG_PARSE",
			fmt.Sprintf("parsing config: %v", err)).WithCause(err)
	}

	swarm.Origin = l.v.ConfigFileUsed()
	swarm.ApplyDefaults()

	// Resolve the project root relative to the config file location so a
	// swarm file can live anywhere and still point at its repository.
	if !filepath.IsAbs(swarm.Project) && swarm.Origin != "" {
		swarm.Project = filepath.Join(filepath.Dir(swarm.Origin), swarm.Project)
	}
	abs, err := filepath.Abs(swarm.Project)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	swarm.Project = abs

	if err := Validate(&swarm); err != nil {
		return nil, err
	}
	return &swarm, nil
}
