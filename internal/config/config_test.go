package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 150, cfg.Economy.WeeklyRent)
	assert.Equal(t, 3, cfg.Economy.DowntimeTokens)
	assert.Len(t, cfg.Training.Activities, 4)
	assert.Equal(t, 60*time.Second, cfg.Gateway.Timeout())
	act, ok := cfg.TrainingActivity("parkour")
	require.True(t, ok)
	assert.Equal(t, "agility", act.Target)
	_, ok = cfg.WorkActivity("shift")
	assert.True(t, ok)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("economy:\n  weekly_rent: 90\n"))
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Economy.WeeklyRent)
	assert.Equal(t, 100, cfg.Economy.StatXPPerPoint)
	assert.Equal(t, 20, cfg.Checks.DieSides)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"negative rent":    "economy:\n  weekly_rent: -1\n",
		"provider":         "gateway:\n  provider: carrier-pigeon\n",
		"die":              "checks:\n  die_sides: 1\n",
		"webhook url":      "server:\n  webhooks:\n    - events: [day.advanced]\n",
		"duplicate work":   "work:\n  - id: a\n  - id: a\n",
		"training missing": "training:\n  activities:\n    - id: x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Economy, cfg.Economy)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "capeline.yml"), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Nightjar", cfg.Game.SuperName)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}
