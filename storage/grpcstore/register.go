package grpcstore

import (
	"fmt"
	"strconv"
	"time"

	"xdao.co/facetrouter/storage"
	"xdao.co/facetrouter/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "Remote block store (talks to xdao-blockd)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Keys:        []string{"target", "dial_timeout", "timeout", "max_msg_bytes"},
		Open:        open,
	})
}

func open(opts registry.Options) (storage.RefStore, func() error, error) {
	target := opts.Get("target")
	if target == "" {
		return nil, nil, fmt.Errorf("grpc: missing option %q", "target")
	}
	dialTimeout, err := duration(opts, "dial_timeout", 5*time.Second)
	if err != nil {
		return nil, nil, err
	}
	timeout, err := duration(opts, "timeout", 0)
	if err != nil {
		return nil, nil, err
	}
	maxMsg := 0
	if v := opts.Get("max_msg_bytes"); v != "" {
		if maxMsg, err = strconv.Atoi(v); err != nil || maxMsg < 0 {
			return nil, nil, fmt.Errorf("grpc: invalid max_msg_bytes %q", v)
		}
	}

	client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return client, client.Close, nil
}

func duration(opts registry.Options, key string, def time.Duration) (time.Duration, error) {
	v := opts.Get(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("grpc: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
