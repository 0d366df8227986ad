package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Fallback provides deterministic, ordered fallback across several stores.
//
// Read order is the slice order in Stores; callers MUST supply a fixed order.
// Put and SetRef write only to the first store.
type Fallback struct {
	Stores []RefStore
}

var _ RefStore = Fallback{}

func (f Fallback) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(f.Stores) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return f.Stores[0].Put(ctx, data)
}

func (f Fallback) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, s := range f.Stores {
		b, err := s.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (f Fallback) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, s := range f.Stores {
		ok, err := s.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (f Fallback) SetRef(ctx context.Context, name string, id cid.Cid) error {
	if len(f.Stores) == 0 {
		return ErrNoBackends
	}
	return f.Stores[0].SetRef(ctx, name, id)
}

func (f Fallback) Ref(ctx context.Context, name string) (cid.Cid, error) {
	for _, s := range f.Stores {
		id, err := s.Ref(ctx, name)
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
