package adminapi_test

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/edgegateway/internal/adminapi"
	"github.com/kartikbazzad/edgegateway/internal/gateway"
	"github.com/kartikbazzad/edgegateway/internal/loader"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
	"github.com/kartikbazzad/edgegateway/pkg/client"
)

func registerEchoModule(t *testing.T, name string) {
	t.Helper()
	loader.RegisterStatic(name, func() *module.Capabilities {
		return &module.Capabilities{
			Create: func(config json.RawMessage) (module.Handle, error) {
				return new(int), nil
			},
			Destroy: func(h module.Handle) {},
		}
	})
}

func TestAdminAPIRoundTrip(t *testing.T) {
	registerEchoModule(t, "test/admin-echo")

	gw := gateway.New(obslog.Default())
	defer gw.Destroy()

	server := adminapi.NewServer(gw, obslog.Default())
	socketPath := filepath.Join(t.TempDir(), fmt.Sprintf("admin-%d.sock", time.Now().UnixNano()))
	require.NoError(t, server.Start(socketPath))
	defer server.Stop()

	time.Sleep(10 * time.Millisecond)

	c := client.New(socketPath)
	defer c.Close()

	modules, err := c.ListModules()
	require.NoError(t, err)
	require.Empty(t, modules)

	handleID, err := c.AddModule("test/admin-echo", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NotEmpty(t, handleID)

	modules, err = c.ListModules()
	require.NoError(t, err)
	require.Len(t, modules, 1)
	require.Equal(t, "test/admin-echo", modules[0].Path)

	stats, err := c.BrokerStats()
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.MessagesPublished, float64(0))

	require.NoError(t, c.RemoveModule(handleID))

	modules, err = c.ListModules()
	require.NoError(t, err)
	require.Empty(t, modules)

	require.Error(t, c.RemoveModule("unknown-handle"))
}
