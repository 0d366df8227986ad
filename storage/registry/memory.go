package registry

import "xdao.co/facetrouter/storage"

func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "In-process store (lost on exit)",
		Usage:       UsageDaemon,
		Open: func(Options) (storage.RefStore, func() error, error) {
			return storage.NewMemory(), nil, nil
		},
	})
}
