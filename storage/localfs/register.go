package localfs

import (
	"fmt"

	"xdao.co/facetrouter/storage"
	"xdao.co/facetrouter/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Keys:        []string{"dir"},
		Open: func(opts registry.Options) (storage.RefStore, func() error, error) {
			dir := opts.Get("dir")
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing option %q", "dir")
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
