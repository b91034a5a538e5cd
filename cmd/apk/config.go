package main

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/minilinux/apk/db"
)

// Config is the CLI's bootstrap configuration, read once at startup. It is
// YAML rather than the FDB/world text formats db owns -- those are the
// bit-exact on-disk compatibility surface (spec §6), this is purely a
// convenience for invoking the CLI without repeating flags every time,
// matching the teacher's own manifest.Repository / main.Config YAML
// bootstrap pattern.
type Config struct {
	Root         string            `yaml:"root"`
	Architecture string            `yaml:"architecture"`
	Repositories []string          `yaml:"repositories"`
	Baseline     []string          `yaml:"baseline"`
	Defines      map[string]string `yaml:"defines"`
}

// loadConfig reads and parses a YAML config file. A missing path is not an
// error: it returns an empty Config, letting callers fall back entirely to
// flags.
func loadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// baselineDependencies renders the config's Baseline names (templated
// against Defines) into the seed list Database.Create expects.
func (c *Config) baselineDependencies(engine *templateEngine) ([]db.Dependency, error) {
	deps := make([]db.Dependency, len(c.Baseline))
	for i, raw := range c.Baseline {
		name, err := engine.render("baseline", raw)
		if err != nil {
			return nil, err
		}
		deps[i] = db.Dependency{Name: name}
	}
	return deps, nil
}

// renderedRepositories renders the config's Repositories URLs against
// Defines, so a config can write e.g. "https://mirror.example/{{.arch}}"
// once and have it resolve per configured architecture.
func (c *Config) renderedRepositories(engine *templateEngine) ([]string, error) {
	out := make([]string, len(c.Repositories))
	for i, raw := range c.Repositories {
		rendered, err := engine.render(fmt.Sprintf("repository[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		out[i] = rendered
	}
	return out, nil
}
