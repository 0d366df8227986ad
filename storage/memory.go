package storage

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/facetrouter/cidutil"
)

// Memory is an in-process RefStore. Blocks are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	refs   map[string]cid.Cid
}

var _ RefStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blocks: make(map[string][]byte), refs: make(map[string]cid.Cid)}
}

func (m *Memory) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[id.KeyString()]; !ok {
		m.blocks[id.KeyString()] = append([]byte(nil), data...)
	}
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.blocks[id.KeyString()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, ErrCIDMismatch
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[id.KeyString()]
	return ok, nil
}

func (m *Memory) SetRef(ctx context.Context, name string, id cid.Cid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRefName(name); err != nil {
		return err
	}
	if !id.Defined() {
		return ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[name] = id
	return nil
}

func (m *Memory) Ref(ctx context.Context, name string) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	if err := CheckRefName(name); err != nil {
		return cid.Undef, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.refs[name]
	if !ok {
		return cid.Undef, ErrNotFound
	}
	return id, nil
}
