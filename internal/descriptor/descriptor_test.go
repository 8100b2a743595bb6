package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/edgegateway-admin.sock", d.AdminSocket)
	require.Equal(t, "info", d.LogLevel)
	require.Empty(t, d.Modules)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewayd.yaml")
	contents := `
admin_socket: /tmp/custom.sock
log_level: debug
modules:
  - path: modules/hello
    config:
      greeting: hi
  - path: modules/logsink
    config: {}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.sock", d.AdminSocket)
	require.Equal(t, "debug", d.LogLevel)
	require.Len(t, d.Modules, 2)
	require.Equal(t, "modules/hello", d.Modules[0].Path)
	require.Equal(t, "hi", d.Modules[0].Config["greeting"])
}

func TestToGatewayEntriesPreservesOrder(t *testing.T) {
	d := &Descriptor{
		Modules: []ModuleEntry{
			{Path: "modules/a", Config: map[string]interface{}{"x": 1.0}},
			{Path: "modules/b", Config: map[string]interface{}{}},
		},
	}
	entries, err := d.ToGatewayEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "modules/a", entries[0].ModulePath)
	require.JSONEq(t, `{"x":1}`, string(entries[0].Config))
	require.Equal(t, "modules/b", entries[1].ModulePath)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
