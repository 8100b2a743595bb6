package loader

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
	"github.com/kartikbazzad/edgegateway/internal/module"
)

func TestStaticLoadAndResolve(t *testing.T) {
	type handle struct{ created bool }

	RegisterStatic("test/echo", func() *module.Capabilities {
		return &module.Capabilities{
			Create: func(config json.RawMessage) (module.Handle, error) {
				return &handle{created: true}, nil
			},
			Destroy: func(h module.Handle) {},
		}
	})
	require.True(t, IsStaticName("test/echo"))

	lib, err := LoadStatic("test/echo")
	require.NoError(t, err)
	require.Equal(t, "test/echo", lib.Path())

	caps, err := lib.ResolveAPIs()
	require.NoError(t, err)
	require.NotNil(t, caps.Create)
	require.NotNil(t, caps.Destroy)
	require.Nil(t, caps.Receive)

	h, err := caps.Create(nil)
	require.NoError(t, err)
	require.True(t, h.(*handle).created)

	require.NoError(t, lib.Unload())
}

func TestLoadStaticUnknownNameFails(t *testing.T) {
	_, err := LoadStatic("test/does-not-exist")
	require.ErrorIs(t, err, gwerrors.ErrLoadFailed)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load("")
	require.ErrorIs(t, err, gwerrors.ErrInvalidArg)
}

func TestStaticEntryPointReturningNilFails(t *testing.T) {
	RegisterStatic("test/nil-caps", func() *module.Capabilities { return nil })

	lib, err := LoadStatic("test/nil-caps")
	require.NoError(t, err)

	_, err = lib.ResolveAPIs()
	require.ErrorIs(t, err, gwerrors.ErrSymbolMissing)
}
