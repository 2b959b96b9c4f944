package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models cropline.yml. It is imported into the DB per farm and read
// back from there; the YAML file is only the import source.
type Config struct {
	Farm struct {
		ID       string `yaml:"id" json:"id"`
		Name     string `yaml:"name" json:"name"`
		Location string `yaml:"location" json:"location"`
	} `yaml:"farm" json:"farm"`
	// StageTemplates maps a crop type code to the ordered stages a new cycle
	// of that crop is seeded with.
	StageTemplates map[string][]StageTemplate `yaml:"stage_templates" json:"stage_templates"`
	Catalog        struct {
		Units             []UnitSeed             `yaml:"units" json:"units"`
		ActivityTypes     []ActivityTypeSeed     `yaml:"activity_types" json:"activity_types"`
		SeasonDefinitions []SeasonDefinitionSeed `yaml:"season_definitions" json:"season_definitions"`
	} `yaml:"catalog" json:"catalog"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type StageTemplate struct {
	Name         string `yaml:"name" json:"name"`
	DurationDays int    `yaml:"duration_days" json:"duration_days"`
}

type UnitSeed struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
}

type ActivityTypeSeed struct {
	Code     string `yaml:"code" json:"code"`
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
}

type SeasonDefinitionSeed struct {
	Code       string `yaml:"code" json:"code"`
	Name       string `yaml:"name" json:"name"`
	StartMonth int    `yaml:"start_month" json:"start_month"`
	EndMonth   int    `yaml:"end_month" json:"end_month"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

var unitKinds = map[string]bool{"weight": true, "volume": true, "area": true, "count": true, "currency": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Farm.ID == "" {
		return fmt.Errorf("config.farm.id is required")
	}
	for crop, stages := range c.StageTemplates {
		if crop == "" {
			return fmt.Errorf("config.stage_templates contains empty crop type code")
		}
		if len(stages) == 0 {
			return fmt.Errorf("stage template for %s is empty", crop)
		}
		seen := map[string]bool{}
		for i, st := range stages {
			if st.Name == "" {
				return fmt.Errorf("stage template for %s has unnamed stage at position %d", crop, i+1)
			}
			if seen[st.Name] {
				return fmt.Errorf("stage template for %s repeats stage %s", crop, st.Name)
			}
			seen[st.Name] = true
			if st.DurationDays < 0 {
				return fmt.Errorf("stage %s for %s has negative duration", st.Name, crop)
			}
		}
	}
	for _, u := range c.Catalog.Units {
		if u.Code == "" {
			return fmt.Errorf("config.catalog.units contains a unit without code")
		}
		if !unitKinds[u.Kind] {
			return fmt.Errorf("unit %s has unknown kind %q", u.Code, u.Kind)
		}
	}
	for _, a := range c.Catalog.ActivityTypes {
		if a.Code == "" {
			return fmt.Errorf("config.catalog.activity_types contains an entry without code")
		}
	}
	for _, s := range c.Catalog.SeasonDefinitions {
		if s.Code == "" {
			return fmt.Errorf("config.catalog.season_definitions contains an entry without code")
		}
		if s.StartMonth < 1 || s.StartMonth > 12 || s.EndMonth < 1 || s.EndMonth > 12 {
			return fmt.Errorf("season definition %s has months outside 1..12", s.Code)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
	}
	return nil
}

// StagesFor returns the stage template for a crop type code, or nil.
func (c *Config) StagesFor(cropCode string) []StageTemplate {
	if c == nil || c.StageTemplates == nil {
		return nil
	}
	return c.StageTemplates[cropCode]
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cropline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with cl farm config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
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

// Default returns the default Config struct for a farm.
func Default(farmID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, farmID))).Decode(&cfg)
	cfg.Farm.ID = farmID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(farmID string) string {
	return fmt.Sprintf(defaultTemplate, farmID)
}

const defaultTemplate = `farm:
  id: %s
  name: ""
  location: ""

stage_templates:
  maize:
    - name: land_preparation
      duration_days: 10
    - name: planting
      duration_days: 5
    - name: vegetative_growth
      duration_days: 55
    - name: flowering
      duration_days: 20
    - name: harvest
      duration_days: 10
  rice:
    - name: land_preparation
      duration_days: 14
    - name: nursery
      duration_days: 21
    - name: transplanting
      duration_days: 7
    - name: vegetative_growth
      duration_days: 45
    - name: harvest
      duration_days: 10
  vegetables:
    - name: land_preparation
      duration_days: 7
    - name: planting
      duration_days: 3
    - name: growth
      duration_days: 40
    - name: harvest
      duration_days: 14

catalog:
  units:
    - {code: kg, name: Kilogram, kind: weight}
    - {code: t, name: Tonne, kind: weight}
    - {code: l, name: Litre, kind: volume}
    - {code: m3, name: Cubic metre, kind: volume}
    - {code: ha, name: Hectare, kind: area}
    - {code: acre, name: Acre, kind: area}
    - {code: unit, name: Unit, kind: count}
    - {code: usd, name: US Dollar, kind: currency}
  activity_types:
    - {code: tillage, name: Tillage, category: land_preparation}
    - {code: sowing, name: Sowing, category: planting}
    - {code: irrigation, name: Irrigation, category: water}
    - {code: fertilization, name: Fertilization, category: inputs}
    - {code: pest_control, name: Pest control, category: inputs}
    - {code: weeding, name: Weeding, category: maintenance}
    - {code: harvesting, name: Harvesting, category: harvest}
    - {code: inspection, name: Inspection, category: monitoring}
  season_definitions:
    - {code: spring, name: Spring, start_month: 3, end_month: 5}
    - {code: summer, name: Summer, start_month: 6, end_month: 8}
    - {code: autumn, name: Autumn, start_month: 9, end_month: 11}
    - {code: winter, name: Winter, start_month: 12, end_month: 2}
`
