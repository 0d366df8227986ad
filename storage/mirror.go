package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"

	"xdao.co/facetrouter/cidutil"
)

// Named associates a store with a stable backend name.
type Named struct {
	Name  string
	Store RefStore
}

// Mirror writes to all configured backends.
//
// Reads fall back in order. Block writes go to all backends and require every
// returned CID to match (otherwise ErrCIDMismatch is returned). Ref writes go to
// all backends; failures are collected and returned together.
type Mirror struct {
	Backends []Named
}

var _ RefStore = Mirror{}

// PutAll writes the same bytes to all backends and returns the canonical CID
// plus a map of backend name -> returned CID.
func (m Mirror) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(m.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}

	out := make(map[string]cid.Cid, len(m.Backends))
	for _, b := range m.Backends {
		if b.Store == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Put(ctx, data)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (m Mirror) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := m.PutAll(ctx, data)
	return id, err
}

func (m Mirror) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, b := range m.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m Mirror) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, b := range m.Backends {
		if b.Store == nil {
			continue
		}
		ok, err := b.Store.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m Mirror) SetRef(ctx context.Context, name string, id cid.Cid) error {
	if len(m.Backends) == 0 {
		return ErrNoBackends
	}
	var result *multierror.Error
	for _, b := range m.Backends {
		if b.Store == nil {
			continue
		}
		if err := b.Store.SetRef(ctx, name, id); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage: backend %q: %w", b.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func (m Mirror) Ref(ctx context.Context, name string) (cid.Cid, error) {
	for _, b := range m.Backends {
		if b.Store == nil {
			continue
		}
		id, err := b.Store.Ref(ctx, name)
		if err == nil {
			return id, nil
		}
		if IsNotFound(err) {
			continue
		}
		return cid.Undef, err
	}
	return cid.Undef, ErrNotFound
}
