package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/san-kum/mdsuite/internal/units"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProjectName = "MDSuite_Project"
	DefaultStoragePath = "./"
	DefaultUnits       = "real"
	DefaultTimeStep    = 1.0
	DefaultLogLevel    = "info"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Project     ProjectConfig      `yaml:"project"`
	Experiments []ExperimentConfig `yaml:"experiments"`
	Calculators []CalculatorConfig `yaml:"calculators"`
	Log         LogConfig          `yaml:"log"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	StoragePath string `yaml:"storage_path"`
}

type ExperimentConfig struct {
	Name        string             `yaml:"name"`
	TimeStep    float64            `yaml:"time_step"`
	Temperature float64            `yaml:"temperature"`
	Units       string             `yaml:"units"`
	CustomUnits *units.System      `yaml:"custom_units,omitempty"`
	Data        []DataConfig       `yaml:"data"`
	Charges     map[string]float64 `yaml:"charges,omitempty"`
	Masses      map[string]float64 `yaml:"masses,omitempty"`
	ElementMap  map[string]string  `yaml:"element_map,omitempty"`
}

type DataConfig struct {
	Path   string              `yaml:"path"`
	Format string              `yaml:"format,omitempty"`
	Sort   bool                `yaml:"sort,omitempty"`
	Rename map[string][]string `yaml:"rename,omitempty"`
}

// CalculatorConfig runs a calculator on the named experiments, or on every
// active experiment when none are named.
type CalculatorConfig struct {
	Name        string         `yaml:"name"`
	Experiments []string       `yaml:"experiments,omitempty"`
	Params      map[string]any `yaml:"params,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:        DefaultProjectName,
			StoragePath: DefaultStoragePath,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads a configuration file over the defaults and fills experiment
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Experiments {
		e := &cfg.Experiments[i]
		if e.TimeStep == 0 {
			e.TimeStep = DefaultTimeStep
		}
		if e.Units == "" && e.CustomUnits == nil {
			e.Units = DefaultUnits
		}
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("%w: project name is empty", ErrInvalid)
	}
	seen := make(map[string]bool)
	for i, e := range c.Experiments {
		if e.Name == "" {
			return fmt.Errorf("%w: experiment %d has no name", ErrInvalid, i)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: experiment %s listed twice", ErrInvalid, e.Name)
		}
		seen[e.Name] = true
		if e.TimeStep <= 0 {
			return fmt.Errorf("%w: experiment %s time_step must be positive", ErrInvalid, e.Name)
		}
		if e.CustomUnits != nil {
			if !e.CustomUnits.Valid() {
				return fmt.Errorf("%w: experiment %s custom_units are incomplete", ErrInvalid, e.Name)
			}
		} else if _, err := units.Lookup(e.Units); err != nil {
			return fmt.Errorf("%w: experiment %s: %v", ErrInvalid, e.Name, err)
		}
		for j, d := range e.Data {
			if d.Path == "" {
				return fmt.Errorf("%w: experiment %s data %d has no path", ErrInvalid, e.Name, j)
			}
		}
	}
	for i, calc := range c.Calculators {
		if calc.Name == "" {
			return fmt.Errorf("%w: calculator %d has no name", ErrInvalid, i)
		}
	}
	return nil
}

// ExperimentNames returns the configured experiment names in order.
func (c *Config) ExperimentNames() []string {
	names := make([]string, len(c.Experiments))
	for i, e := range c.Experiments {
		names[i] = e.Name
	}
	return names
}
