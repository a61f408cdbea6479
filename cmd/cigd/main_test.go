package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agrilink/cig-engine/config"
	"github.com/agrilink/cig-engine/cycle"
	"github.com/agrilink/cig-engine/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.Bytes()
}

func TestSeedThenRollover(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "data", "cig.db")
	common := []string{"--config", filepath.Join(dir, "missing.yaml"), "--driver", "sqlite", "--db", db}

	// GIVEN: A seeded hotspot locality
	out := run(t, append([]string{"seed", "--wards", "1", "--localities", "1", "--hotspot-farms", "36", "--seed", "5"}, common...)...)
	var seeded struct {
		Report   seed.Report  `json:"report"`
		Rollover cycle.Result `json:"rollover"`
	}
	require.NoError(t, json.Unmarshal(out, &seeded))
	assert.Equal(t, 36, seeded.Report.FarmsCreated)
	assert.Equal(t, seeded.Report.GroupsCreated, seeded.Rollover.Opened)

	// WHEN: A rollover runs years later
	out = run(t, append([]string{"rollover", "--at", "2040-01-01"}, common...)...)

	// THEN: Every group's cycle is closed and replaced
	var res cycle.Result
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, seeded.Report.GroupsCreated, res.Closed)
	assert.Zero(t, res.Failed)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cigd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: postgres\n  dsn: postgres://x\nlogging:\n  level: warn\n"), 0o644))

	cfg, err := loadConfig(&globalFlags{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "warn", cfg.Logging.Level)

	cfg, err = loadConfig(&globalFlags{configPath: path, driver: "sqlite", dsn: ":memory:", debug: true})
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLitePure, cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = loadConfig(&globalFlags{configPath: path, driver: "mysql"})
	assert.ErrorContains(t, err, "database.driver")
}

func TestRollover_BadDate(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"rollover", "--at", "soon", "--config", ""})
	assert.ErrorContains(t, cmd.Execute(), "--at")
}
