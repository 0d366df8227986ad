package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Store is a content-addressed block store.
//
// Contract:
// - Put MUST be idempotent.
// - Stored blocks MUST be immutable.
// - CIDs MUST be derived from the bytes written (see cidutil.Of).
// - Get MUST return ErrNotFound when the CID is absent and ErrCIDMismatch when
//   the stored bytes no longer hash to the CID.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// Refs is a set of named, mutable pointers into a Store.
//
// Ref MUST return ErrNotFound for a name that was never set.
type Refs interface {
	SetRef(ctx context.Context, name string, id cid.Cid) error
	Ref(ctx context.Context, name string) (cid.Cid, error)
}

// RefStore is a Store that also keeps refs. Every backend implements it.
type RefStore interface {
	Store
	Refs
}

// CheckRefName rejects names that are empty or that could escape a backend's
// ref namespace.
func CheckRefName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty ref name", ErrInvalidRef)
	}
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			continue
		}
		return fmt.Errorf("%w: invalid character %q in ref name", ErrInvalidRef, c)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidRef, name)
	}
	return nil
}
