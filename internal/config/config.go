package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"freightline/internal/workflow"
)

// Config models freightline.yml: the workflow catalog that fixes the step
// pipeline and the per-route checkpoint table. It is loaded once at startup
// and passed through explicitly; nothing reads it as ambient state.
type Config struct {
	Workflow struct {
		Steps        []string               `yaml:"steps"`
		Checkpoints  []string               `yaml:"checkpoints"`
		DefaultRoute string                 `yaml:"default_route"`
		Routes       map[string]RouteConfig `yaml:"routes"`
	} `yaml:"workflow"`
}

type RouteConfig struct {
	Checkpoints map[string]TerminalConfig `yaml:"checkpoints"`
}

type TerminalConfig struct {
	Flag string `yaml:"flag"`
	Date string `yaml:"date"`
}

// Load reads config from the workspace, falling back to the built-in
// default when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "freightline.yml")
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the catalog is internally consistent.
func (c *Config) Validate() error {
	if len(c.Workflow.Steps) == 0 {
		return fmt.Errorf("config.workflow.steps is required")
	}
	steps := map[string]bool{}
	for _, s := range c.Workflow.Steps {
		if s == "" {
			return fmt.Errorf("config.workflow.steps contains an empty name")
		}
		if steps[s] {
			return fmt.Errorf("duplicate step %s", s)
		}
		steps[s] = true
	}
	for _, cp := range c.Workflow.Checkpoints {
		if !steps[cp] {
			return fmt.Errorf("checkpoint %s not in step list", cp)
		}
	}
	if len(c.Workflow.Routes) == 0 {
		return fmt.Errorf("config.workflow.routes is required")
	}
	for name, route := range c.Workflow.Routes {
		if name == "" {
			return fmt.Errorf("config.workflow.routes contains an empty route id")
		}
		for cp, term := range route.Checkpoints {
			if !steps[cp] {
				return fmt.Errorf("route %s references unknown checkpoint %s", name, cp)
			}
			if term.Flag == "" && term.Date == "" {
				return fmt.Errorf("route %s checkpoint %s needs a terminal flag or date", name, cp)
			}
		}
	}
	if c.Workflow.DefaultRoute == "" {
		return fmt.Errorf("config.workflow.default_route is required")
	}
	if _, ok := c.Workflow.Routes[c.Workflow.DefaultRoute]; !ok {
		return fmt.Errorf("default route %s not defined", c.Workflow.DefaultRoute)
	}
	return nil
}

// Catalog converts the parsed config into the immutable catalog the status
// deriver consumes.
func (c *Config) Catalog() workflow.Catalog {
	cat := workflow.Catalog{
		Steps:        append([]string(nil), c.Workflow.Steps...),
		Checkpoints:  append([]string(nil), c.Workflow.Checkpoints...),
		Routes:       make(map[workflow.Route]workflow.RouteSpec, len(c.Workflow.Routes)),
		DefaultRoute: workflow.Route(c.Workflow.DefaultRoute),
	}
	for name, route := range c.Workflow.Routes {
		spec := workflow.RouteSpec{Checkpoints: make(map[string]workflow.Terminal, len(route.Checkpoints))}
		for cp, term := range route.Checkpoints {
			spec.Checkpoints[cp] = workflow.Terminal{Flag: term.Flag, Date: term.Date}
		}
		cat.Routes[workflow.Route(name)] = spec
	}
	return cat
}

// Default returns the built-in config mirroring workflow.DefaultCatalog.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML for seeding a workspace.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `workflow:
  steps:
    - plan_overview
    - trucks_details
    - loading_details
    - import_selection
    - export_invoice
    - stock_view
    - customs_allocation
    - checkpoint_ksa
    - checkpoint_jordan
    - checkpoint_syria

  checkpoints:
    - checkpoint_ksa
    - checkpoint_jordan
    - checkpoint_syria

  default_route: JAFZA_TO_KSA

  routes:
    JAFZA_TO_KSA:
      checkpoints:
        checkpoint_ksa:
          flag: batha_delivered
          date: batha_delivered_date

    JAFZA_TO_JORDAN:
      checkpoints:
        checkpoint_ksa:
          flag: transit_exited
          date: transit_exit_date
        checkpoint_jordan:
          flag: border_exited
          date: border_exit_date

    JAFZA_TO_SYRIA_VIA_MUSHTARAKAH:
      checkpoints:
        checkpoint_ksa:
          flag: transit_exited
          date: transit_exit_date
        checkpoint_jordan:
          flag: border_exited
          date: border_exit_date
        checkpoint_syria:
          flag: delivered
          date: delivered_date
`
