package testkit

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/facetrouter/cidutil"
	"xdao.co/facetrouter/storage"
)

// NewStore constructs a fresh, empty store for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.RefStore

// RunStoreConformance checks the block and ref contracts every backend must
// honor.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte("hello, router journal")

		id, err := s.Put(ctx, want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.Of(want)
		if err != nil {
			t.Fatalf("cidutil.Of failed: %v", err)
		}
		if !id.Equals(wantID) {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if err := cidutil.Verify(id, got); err != nil {
			t.Fatalf("Get returned bytes not matching requested CID: %v", err)
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same bytes")

		id1, err := s.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := s.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("missing")
		id, err := cidutil.Of(b)
		if err != nil {
			t.Fatalf("cidutil.Of failed: %v", err)
		}

		if ok, err := s.Has(ctx, id); err != nil || ok {
			t.Fatalf("Has for missing CID: ok=%v err=%v", ok, err)
		}
		if _, err := s.Get(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := s.Put(ctx, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if ok, err := s.Has(ctx, id); err != nil || !ok {
			t.Fatalf("Has after Put: ok=%v err=%v", ok, err)
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		if ok, _ := s.Has(ctx, undef); ok {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := s.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
		if err := s.SetRef(ctx, "head", undef); err == nil {
			t.Fatalf("SetRef should fail for undefined CID")
		}
	})

	t.Run("RefsMove", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Ref(ctx, "head"); !storage.IsNotFound(err) {
			t.Fatalf("Ref unset: got err=%v want ErrNotFound", err)
		}

		a, err := s.Put(ctx, []byte("a"))
		if err != nil {
			t.Fatalf("Put(a) failed: %v", err)
		}
		b, err := s.Put(ctx, []byte("b"))
		if err != nil {
			t.Fatalf("Put(b) failed: %v", err)
		}
		for _, want := range []cid.Cid{a, b} {
			if err := s.SetRef(ctx, "head", want); err != nil {
				t.Fatalf("SetRef failed: %v", err)
			}
			got, err := s.Ref(ctx, "head")
			if err != nil {
				t.Fatalf("Ref failed: %v", err)
			}
			if !got.Equals(want) {
				t.Fatalf("Ref: got %s want %s", got, want)
			}
		}
	})

	t.Run("RejectBadRefName", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Put(ctx, []byte("x"))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		for _, name := range []string{"", "..", "a/b", `a\b`} {
			if err := s.SetRef(ctx, name, id); err == nil {
				t.Fatalf("SetRef(%q) should fail", name)
			}
		}
	})
}
