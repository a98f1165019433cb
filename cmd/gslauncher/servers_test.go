package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/loykin/gslauncher/internal/store"
)

func TestServersCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "servers.json")

	out, err := runCLI(t, "", "servers", "list", "--servers-file", file)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	out, err = runCLI(t, "", "servers", "add", "--servers-file", file,
		"--name", "survival", "--script", "/srv/mc/run.sh", "--env", "JAVA_OPTS=-Xmx2G", "--force-kill")
	require.NoError(t, err)
	var added store.Record
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "survival", added.Name)
	assert.Equal(t, "-Xmx2G", added.Env["JAVA_OPTS"])
	assert.True(t, added.ForceKillOnStop)

	out, err = runCLI(t, "", "servers", "edit", "--servers-file", file, "--id", added.ID, "--name", "creative", "--force-kill=false", "-o", "yaml")
	require.NoError(t, err)
	var edited store.Record
	require.NoError(t, yaml.Unmarshal([]byte(out), &edited))
	assert.Equal(t, "creative", edited.Name)
	assert.Equal(t, "/srv/mc/run.sh", edited.StartScript, "unchanged flags keep values")
	assert.Equal(t, "-Xmx2G", edited.Env["JAVA_OPTS"])
	assert.False(t, edited.ForceKillOnStop)

	out, err = runCLI(t, "", "servers", "list", "--servers-file", file, "--output", "yaml")
	require.NoError(t, err)
	var listed []store.Record
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, added.ID, listed[0].ID)

	out, err = runCLI(t, "", "servers", "remove", "--servers-file", file, "--id", added.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed server "+added.ID)

	_, err = runCLI(t, "", "servers", "remove", "--servers-file", file, "--id", added.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = runCLI(t, "", "servers", "add", "--servers-file", file, "--name", "x", "--script", "run.sh", "--env", "bad")
	assert.Error(t, err)
}

func TestServersUseConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "gsl.yaml")
	writeFile(t, cfg, "servers_file: data/servers.json\n")

	_, err := runCLI(t, "", "--config", cfg, "servers", "add", "--name", "a", "--script", "run.sh")
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "data", "servers.json"), nil)
	require.NoError(t, err)
	recs, err := st.LoadAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Name)
}
