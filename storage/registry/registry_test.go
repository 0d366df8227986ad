package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/facetrouter/storage"
	_ "xdao.co/facetrouter/storage/localfs"
	"xdao.co/facetrouter/storage/registry"
)

var errClose = errors.New("close failed")

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "test-closer",
		Description: "memory store whose close always fails",
		Usage:       registry.UsageDaemon,
		Open: func(registry.Options) (storage.RefStore, func() error, error) {
			return storage.NewMemory(), func() error { return errClose }, nil
		},
	})
}

func TestRegister_RejectsIncompleteAndDuplicate(t *testing.T) {
	require.Error(t, registry.Register(registry.Backend{}))
	require.Error(t, registry.Register(registry.Backend{Name: "x", Usage: registry.UsageCLI}))
	err := registry.Register(registry.Backend{
		Name:  "memory",
		Usage: registry.UsageCLI,
		Open:  func(registry.Options) (storage.RefStore, func() error, error) { return nil, nil, nil },
	})
	require.ErrorContains(t, err, "already registered")
}

func TestNames_FilterByUsage(t *testing.T) {
	require.Equal(t, []string{"localfs"}, registry.Names(registry.UsageCLI))
	require.Subset(t, registry.Names(registry.UsageDaemon), []string{"localfs", "memory", "test-closer"})
}

func TestOpen_UnknownAndWrongUsage(t *testing.T) {
	_, _, err := registry.Open("nope", registry.UsageDaemon, nil)
	require.ErrorContains(t, err, "unknown backend")
	_, _, err = registry.Open("memory", registry.UsageCLI, nil)
	require.ErrorContains(t, err, "not supported")
	_, _, err = registry.Open("localfs", registry.UsageCLI, registry.Options{})
	require.ErrorContains(t, err, "dir")
}

func TestOpenSet_Policies(t *testing.T) {
	ctx := context.Background()
	specs := []registry.Spec{
		{Name: "localfs", ID: "disk", Options: registry.Options{"dir": t.TempDir()}},
		{Name: "memory"},
	}

	st, closeFn, err := registry.OpenSet(specs, registry.WriteAll, registry.UsageDaemon)
	require.NoError(t, err)
	require.IsType(t, storage.Mirror{}, st)
	_, err = st.Put(ctx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, closeFn())

	st, _, err = registry.OpenSet(specs, registry.WriteFirst, registry.UsageDaemon)
	require.NoError(t, err)
	require.IsType(t, storage.Fallback{}, st)

	st, _, err = registry.OpenSet(specs[1:], "", registry.UsageDaemon)
	require.NoError(t, err)
	require.IsType(t, &storage.Memory{}, st)
}

func TestOpenSet_CloseAggregatesErrors(t *testing.T) {
	specs := []registry.Spec{
		{Name: "test-closer", ID: "a"},
		{Name: "test-closer", ID: "b"},
	}
	_, closeFn, err := registry.OpenSet(specs, registry.WriteAll, registry.UsageDaemon)
	require.NoError(t, err)

	err = closeFn()
	require.ErrorIs(t, err, errClose)
	require.Contains(t, err.Error(), "2 errors occurred")
}

func TestOpenSet_ClosesOpenedOnFailure(t *testing.T) {
	specs := []registry.Spec{
		{Name: "test-closer"},
		{Name: "localfs"},
	}
	_, _, err := registry.OpenSet(specs, registry.WriteFirst, registry.UsageDaemon)
	require.Error(t, err)
	require.ErrorIs(t, err, errClose)
}

func TestValidate(t *testing.T) {
	require.Error(t, registry.Validate(nil, ""))
	require.Error(t, registry.Validate([]registry.Spec{{Name: ""}}, ""))
	require.Error(t, registry.Validate([]registry.Spec{{Name: "memory"}, {Name: "memory"}}, ""))
	require.Error(t, registry.Validate([]registry.Spec{{Name: "memory"}}, "some"))
	require.NoError(t, registry.Validate([]registry.Spec{{Name: "memory"}, {Name: "memory", ID: "m2"}}, registry.WriteAll))
}
