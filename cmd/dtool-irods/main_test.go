package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dtool-irods/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a configuration using an on-disk badger remote so that
// state survives between command invocations.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "logging:\n" +
		"  level: ERROR\n" +
		"remote:\n" +
		"  type: badger\n" +
		"  badger:\n" +
		"    path: " + filepath.Join(dir, "db") + "\n" +
		"cache:\n" +
		"  directory: " + filepath.Join(dir, "cache") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b.txt"), []byte("hello\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("world"), 0644))
	return dir
}

func TestCreateAndRead(t *testing.T) {
	cfg := writeConfig(t)
	src := writeTree(t)

	readme := filepath.Join(t.TempDir(), "README.yml")
	require.NoError(t, os.WriteFile(readme, []byte("description: demo\n"), 0644))

	out, err := run(t, cfg, "create", "/", "demo", src, "--readme", readme)
	require.NoError(t, err, out)
	uri := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(uri, "irods:/"), uri)

	out, err = run(t, cfg, "ls", "/")
	require.NoError(t, err, out)
	assert.Equal(t, uri+"\n", out)

	out, err = run(t, cfg, "show", uri, "--readme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "name: demo")
	assert.Contains(t, out, "type: dataset")
	assert.Contains(t, out, "items: 2 (11 B)")
	assert.Contains(t, out, "description: demo")

	out, err = run(t, cfg, "items", uri)
	require.NoError(t, err, out)
	assert.Contains(t, out, "09a62d2dcd900b1d2da88021afb07884731b8656")
	assert.Contains(t, out, "a/b.txt")
	assert.Contains(t, out, "fe4c80bb098894b4d6ca36c16082d567bfd41b8b")
	assert.Contains(t, out, "c.txt")

	out, err = run(t, cfg, "props", uri, "09a62d2dcd900b1d2da88021afb07884731b8656")
	require.NoError(t, err, out)
	var props dataset.ItemProperties
	require.NoError(t, json.Unmarshal([]byte(out), &props))
	assert.Equal(t, "a/b.txt", props.RelPath)
	assert.EqualValues(t, 6, props.SizeInBytes)
	assert.Equal(t, "b1946ac92492d2347c6235b4d2611184", props.Hash)

	out, err = run(t, cfg, "fetch", uri, "09a62d2dcd900b1d2da88021afb07884731b8656")
	require.NoError(t, err, out)
	local := strings.TrimSpace(out)
	assert.True(t, strings.HasSuffix(local, filepath.Join("a", "b.txt")), local)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	out, err = run(t, cfg, "cache", "clear", uri)
	require.NoError(t, err, out)
	_, err = os.Stat(local)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateNoFreeze(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "create", "/", "proto", writeTree(t), "--no-freeze")
	require.NoError(t, err, out)
	uri := strings.TrimSpace(out)

	out, err = run(t, cfg, "show", uri)
	require.NoError(t, err, out)
	assert.Contains(t, out, "type: protodataset")
	assert.Contains(t, out, "manifest: none")
}

func TestShowNotADataset(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "show", "irods:/nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a dataset")
}

func TestArgsValidation(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "props", "irods:/x")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtool-irods.yaml")

	out, err := run(t, path, "config", "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, path, "config", "init")
	assert.Error(t, err)

	_, err = run(t, path, "config", "init", "--force")
	assert.NoError(t, err)
}
