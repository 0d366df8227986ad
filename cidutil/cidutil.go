// Package cidutil derives the content identifiers used for journal blocks.
//
// Every block is addressed by a CIDv1 with the "raw" multicodec and a
// sha2-256 multihash. Stores and the journal verify bytes against this
// contract on every read.
package cidutil

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrMismatch is returned by Verify when bytes do not hash to the given CID.
var ErrMismatch = errors.New("cidutil: bytes do not match cid")

// Of returns the CIDv1 (raw + sha2-256) of data.
func Of(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String returns Of(data) in its canonical string form, or "" if hashing failed.
func String(data []byte) string {
	id, err := Of(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// Verify checks that data hashes to id under the block contract.
func Verify(id cid.Cid, data []byte) error {
	got, err := Of(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrMismatch
	}
	return nil
}

// Parse decodes a CID string and rejects the undefined CID.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, errors.New("cidutil: undefined cid")
	}
	return id, nil
}
