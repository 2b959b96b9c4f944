package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("farm-1")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "farm-1", cfg.Farm.ID)
	assert.NotEmpty(t, cfg.StageTemplates["maize"])
	assert.NotEmpty(t, cfg.Catalog.Units)
	assert.NotEmpty(t, cfg.Catalog.ActivityTypes)
}

func TestValidateRejectsMissingFarmID(t *testing.T) {
	cfg := Default("farm-1")
	cfg.Farm.ID = ""
	assert.ErrorContains(t, cfg.Validate(), "farm.id")
}

func TestValidateRejectsBadStageTemplates(t *testing.T) {
	cfg := Default("farm-1")
	cfg.StageTemplates["wheat"] = nil
	assert.ErrorContains(t, cfg.Validate(), "empty")

	cfg = Default("farm-1")
	cfg.StageTemplates["wheat"] = []StageTemplate{{Name: "sowing"}, {Name: "sowing"}}
	assert.ErrorContains(t, cfg.Validate(), "repeats")

	cfg = Default("farm-1")
	cfg.StageTemplates["wheat"] = []StageTemplate{{Name: "sowing", DurationDays: -1}}
	assert.ErrorContains(t, cfg.Validate(), "negative")
}

func TestValidateRejectsUnknownUnitKind(t *testing.T) {
	cfg := Default("farm-1")
	cfg.Catalog.Units = append(cfg.Catalog.Units, UnitSeed{Code: "x", Name: "X", Kind: "distance"})
	assert.ErrorContains(t, cfg.Validate(), "unknown kind")
}

func TestValidateRejectsSeasonMonthsOutOfRange(t *testing.T) {
	cfg := Default("farm-1")
	cfg.Catalog.SeasonDefinitions = append(cfg.Catalog.SeasonDefinitions,
		SeasonDefinitionSeed{Code: "monsoon", Name: "Monsoon", StartMonth: 0, EndMonth: 9})
	assert.ErrorContains(t, cfg.Validate(), "months outside")
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
farm:
  id: riverside
  name: Riverside Farm
stage_templates:
  maize:
    - name: planting
      duration_days: 5
    - name: harvest
      duration_days: 10
catalog:
  units:
    - {code: kg, name: Kilogram, kind: weight}
`))
	require.NoError(t, err)
	assert.Equal(t, "riverside", cfg.Farm.ID)
	require.Len(t, cfg.StagesFor("maize"), 2)
	assert.Equal(t, "planting", cfg.StagesFor("maize")[0].Name)
	assert.Nil(t, cfg.StagesFor("rice"))

	_, err = FromYAML([]byte("farm: ["))
	assert.ErrorContains(t, err, "invalid config yaml")
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("farm-2")))
	require.NoError(t, err)
	assert.Equal(t, "farm-2", cfg.Farm.ID)
}
