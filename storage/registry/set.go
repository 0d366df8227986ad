package registry

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"xdao.co/facetrouter/storage"
)

// WritePolicy selects how a Set of several backends is combined.
type WritePolicy string

const (
	// WriteFirst writes only to the first backend; reads fall back in order.
	WriteFirst WritePolicy = "first"
	// WriteAll writes to every backend and requires CID equality.
	WriteAll WritePolicy = "all"
)

// Spec names one backend to open.
type Spec struct {
	// Name is the registry backend name (e.g. "localfs", "memory").
	Name string `mapstructure:"name" yaml:"name"`
	// ID is an optional stable alias used in Mirror results. If empty, Name is used.
	ID      string  `mapstructure:"id" yaml:"id,omitempty"`
	Options Options `mapstructure:"options" yaml:"options,omitempty"`
}

func (s Spec) id() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Validate checks a backend list and policy without opening anything.
func Validate(specs []Spec, policy WritePolicy) error {
	if len(specs) == 0 {
		return errors.New("registry: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return errors.New("registry: backend name is required")
		}
		if _, ok := seen[s.id()]; ok {
			return fmt.Errorf("registry: duplicate backend id %q", s.id())
		}
		seen[s.id()] = struct{}{}
	}
	switch policy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("registry: invalid write policy %q", policy)
	}
}

// OpenSet opens every backend in specs and combines them per policy. The
// returned close function closes backends in reverse order and reports every
// failure.
func OpenSet(specs []Spec, policy WritePolicy, usage Usage) (storage.RefStore, func() error, error) {
	if err := Validate(specs, policy); err != nil {
		return nil, nil, err
	}

	named := make([]storage.Named, 0, len(specs))
	closers := make([]func() error, 0, len(specs))
	closeAll := func() error {
		var result *multierror.Error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}

	for _, s := range specs {
		st, closeFn, err := Open(s.Name, usage, s.Options)
		if err != nil {
			if cerr := closeAll(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
			return nil, nil, fmt.Errorf("registry: open %q: %w", s.id(), err)
		}
		named = append(named, storage.Named{Name: s.id(), Store: st})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	switch policy {
	case "", WriteFirst:
		stores := make([]storage.RefStore, 0, len(named))
		for _, n := range named {
			stores = append(stores, n.Store)
		}
		return storage.Fallback{Stores: stores}, closeAll, nil
	default:
		return storage.Mirror{Backends: named}, closeAll, nil
	}
}
