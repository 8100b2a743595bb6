package gateway

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
	"github.com/kartikbazzad/edgegateway/internal/loader"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

type fakeModule struct {
	name string
}

// registerFake registers a static module under name. destroyed, if
// non-nil, is flipped to true the instant this module's Destroy runs -
// callers that need to observe a teardown their own test can't reach
// through a Handle (e.g. a module rolled back before Create ever returns
// one) pass their own bool here instead of reading it off the instance.
func registerFake(t *testing.T, name string, failCreate bool, destroyed *bool, order *[]string) {
	t.Helper()
	loader.RegisterStatic(name, func() *module.Capabilities {
		return &module.Capabilities{
			Create: func(config json.RawMessage) (module.Handle, error) {
				if failCreate {
					return nil, fmt.Errorf("boom")
				}
				return &fakeModule{name: name}, nil
			},
			Destroy: func(h module.Handle) {
				if destroyed != nil {
					*destroyed = true
				}
				if order != nil {
					*order = append(*order, name)
				}
			},
		}
	})
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	var okDestroyed bool
	registerFake(t, "test/gw-ok-1", false, &okDestroyed, nil)
	registerFake(t, "test/gw-fail", true, nil, nil)

	descriptor := []Entry{
		{ModulePath: "test/gw-ok-1"},
		{ModulePath: "test/gw-fail"},
	}

	gw, err := Create(descriptor, obslog.Default())
	require.Error(t, err)
	require.Nil(t, gw)

	var rollbackErr *gwerrors.RollbackError
	require.ErrorAs(t, err, &rollbackErr)
	require.Equal(t, "test/gw-fail", rollbackErr.FailedModulePath)
	require.True(t, okDestroyed, "rollback must destroy the already-created instance before unwinding")
}

func TestCreateRollsBackInReverseOrder(t *testing.T) {
	var order []string
	registerFake(t, "test/gw-rb-1", false, nil, &order)
	registerFake(t, "test/gw-rb-2", false, nil, &order)
	registerFake(t, "test/gw-rb-3", false, nil, &order)
	registerFake(t, "test/gw-rb-fail", true, nil, nil)

	descriptor := []Entry{
		{ModulePath: "test/gw-rb-1"},
		{ModulePath: "test/gw-rb-2"},
		{ModulePath: "test/gw-rb-3"},
		{ModulePath: "test/gw-rb-fail"},
	}

	gw, err := Create(descriptor, obslog.Default())
	require.Error(t, err)
	require.Nil(t, gw)
	require.Equal(t, []string{"test/gw-rb-3", "test/gw-rb-2", "test/gw-rb-1"}, order)
}

func TestCreateAddRemoveDestroy(t *testing.T) {
	var destroyed3 bool
	registerFake(t, "test/gw-ok-2", false, nil, nil)
	registerFake(t, "test/gw-ok-3", false, &destroyed3, nil)

	descriptor := []Entry{
		{ModulePath: "test/gw-ok-2"},
	}
	gw, err := Create(descriptor, obslog.Default())
	require.NoError(t, err)
	require.Equal(t, 1, gw.Len())

	handle, err := gw.AddModule(Entry{ModulePath: "test/gw-ok-3"})
	require.NoError(t, err)
	require.Equal(t, 2, gw.Len())

	gw.RemoveModule(handle)
	require.Equal(t, 1, gw.Len())
	require.True(t, destroyed3)

	gw.Destroy()
	require.Equal(t, 0, gw.Len())
}

func TestDestroyTearsDownInReverseOrder(t *testing.T) {
	var order []string
	registerFake(t, "test/gw-td-1", false, nil, &order)
	registerFake(t, "test/gw-td-2", false, nil, &order)
	registerFake(t, "test/gw-td-3", false, nil, &order)

	descriptor := []Entry{
		{ModulePath: "test/gw-td-1"},
		{ModulePath: "test/gw-td-2"},
		{ModulePath: "test/gw-td-3"},
	}
	gw, err := Create(descriptor, obslog.Default())
	require.NoError(t, err)

	gw.Destroy()
	require.Equal(t, []string{"test/gw-td-3", "test/gw-td-2", "test/gw-td-1"}, order)
}

func TestInstancesReflectsLiveSet(t *testing.T) {
	registerFake(t, "test/gw-instances-1", false, nil, nil)
	registerFake(t, "test/gw-instances-2", false, nil, nil)

	descriptor := []Entry{
		{ModulePath: "test/gw-instances-1"},
		{ModulePath: "test/gw-instances-2"},
	}
	gw, err := Create(descriptor, obslog.Default())
	require.NoError(t, err)

	infos := gw.Instances()
	require.Len(t, infos, 2)
	require.Equal(t, "test/gw-instances-1", infos[0].Path)
	require.Equal(t, "test/gw-instances-2", infos[1].Path)

	gw.RemoveModule(infos[0].Handle)
	require.Len(t, gw.Instances(), 1)
	require.Equal(t, "test/gw-instances-2", gw.Instances()[0].Path)
}

func TestRemoveModuleUnknownHandleIsNoop(t *testing.T) {
	gw := New(obslog.Default())
	gw.RemoveModule(&fakeModule{})
	require.Equal(t, 0, gw.Len())
}
