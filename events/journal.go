package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/facetrouter/cidutil"
	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/storage"
)

// HeadRef is the ref name that points at the newest journal entry.
const HeadRef = "head"

// ErrBrokenChain is returned when an entry's Seq or Prev link is inconsistent.
var ErrBrokenChain = errors.New("events: broken journal chain")

// Entry is one journal block. Prev is the CID string of the previous entry and
// is empty only for Seq 1.
type Entry struct {
	Seq    uint64  `cbor:"1,keyasint" json:"seq"`
	Prev   string  `cbor:"2,keyasint,omitempty" json:"prev,omitempty"`
	Events []Event `cbor:"3,keyasint" json:"events"`
}

// Journal is an append-only, hash-linked event log kept in a block store.
//
// Every Publish writes one Entry block and then moves HeadRef to it. A crash
// between the two leaves an unreferenced block, never a dangling head.
type Journal struct {
	mu    sync.Mutex
	store storage.RefStore
	head  cid.Cid
	seq   uint64
	log   *zap.Logger
}

var _ Sink = (*Journal)(nil)

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal's logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.log = l
		}
	}
}

// Open resumes the journal at the store's HeadRef, or starts an empty one.
func Open(ctx context.Context, store storage.RefStore, opts ...Option) (*Journal, error) {
	if store == nil {
		return nil, errors.New("events: nil store")
	}
	j := &Journal{store: store, log: zap.NewNop()}
	for _, o := range opts {
		o(j)
	}

	head, err := store.Ref(ctx, HeadRef)
	switch {
	case storage.IsNotFound(err):
		j.log.Debug("journal: starting empty")
		return j, nil
	case err != nil:
		return nil, fmt.Errorf("events: read head: %w", err)
	}
	e, err := j.load(ctx, head)
	if err != nil {
		return nil, err
	}
	j.head, j.seq = head, e.Seq
	j.log.Info("journal: resumed", zap.String("cid", head.String()), zap.Uint64("seq", e.Seq))
	return j, nil
}

// Publish appends batch as one entry. Empty batches are ignored.
func (j *Journal) Publish(ctx context.Context, batch []Event) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := j.Append(ctx, batch)
	return err
}

// Append writes batch as the next entry and returns its CID.
func (j *Journal) Append(ctx context.Context, batch []Event) (cid.Cid, error) {
	for _, e := range batch {
		if err := e.Validate(); err != nil {
			return cid.Undef, err
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{Seq: j.seq + 1, Events: batch}
	if j.head.Defined() {
		entry.Prev = j.head.String()
	}
	data, err := codec.Marshal(entry)
	if err != nil {
		return cid.Undef, fmt.Errorf("events: encode entry: %w", err)
	}
	id, err := j.store.Put(ctx, data)
	if err != nil {
		return cid.Undef, fmt.Errorf("events: put entry: %w", err)
	}
	if err := j.store.SetRef(ctx, HeadRef, id); err != nil {
		return cid.Undef, fmt.Errorf("events: move head: %w", err)
	}
	j.head, j.seq = id, entry.Seq
	j.log.Debug("journal: appended",
		zap.String("cid", id.String()),
		zap.Uint64("seq", entry.Seq),
		zap.Int("events", len(batch)),
	)
	return id, nil
}

// Head returns the newest entry's CID and sequence number. An empty journal
// returns cid.Undef and 0.
func (j *Journal) Head() (cid.Cid, uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.head, j.seq
}

// Get loads and decodes the entry stored at id.
func (j *Journal) Get(ctx context.Context, id cid.Cid) (Entry, error) {
	return j.load(ctx, id)
}

func (j *Journal) load(ctx context.Context, id cid.Cid) (Entry, error) {
	data, err := j.store.Get(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("events: get entry %s: %w", id, err)
	}
	var e Entry
	if err := codec.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("events: decode entry %s: %w", id, err)
	}
	if e.Seq == 0 || (e.Seq == 1) != (e.Prev == "") {
		return Entry{}, fmt.Errorf("%w: entry %s has seq %d and prev %q", ErrBrokenChain, id, e.Seq, e.Prev)
	}
	return e, nil
}

// Walk visits entries from newest to oldest until fn returns an error or the
// first entry has been visited. Returning ErrStop ends the walk without error.
func (j *Journal) Walk(ctx context.Context, fn func(id cid.Cid, e Entry) error) error {
	id, want := j.Head()
	for id.Defined() {
		e, err := j.load(ctx, id)
		if err != nil {
			return err
		}
		if e.Seq != want {
			return fmt.Errorf("%w: entry %s has seq %d, want %d", ErrBrokenChain, id, e.Seq, want)
		}
		if err := fn(id, e); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		if e.Prev == "" {
			return nil
		}
		prev, err := cidutil.Parse(e.Prev)
		if err != nil {
			return fmt.Errorf("%w: entry %s prev: %v", ErrBrokenChain, id, err)
		}
		id, want = prev, want-1
	}
	return nil
}

// ErrStop may be returned by a Walk callback to stop early.
var ErrStop = errors.New("events: stop walk")

// Entries returns every entry from oldest to newest.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := j.Walk(ctx, func(_ cid.Cid, e Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
