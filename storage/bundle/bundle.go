// Package bundle moves blocks and refs between stores as a deterministic TAR
// archive, e.g. to back up a router journal or seed a replica.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"

	"xdao.co/facetrouter/cidutil"
	"xdao.co/facetrouter/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const indexName = "index.json"

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Refs are recorded in the index and restored by Import with ApplyRefs.
	Refs map[string]cid.Cid
}

// Export writes a TAR bundle holding the blocks for ids plus an index.json.
//
// The bytes are deterministic: entries are sorted by CID, headers are
// normalized, and duplicate ids are written once. Every block is verified
// against its CID before it is written.
func Export(ctx context.Context, w io.Writer, store storage.Store, ids []cid.Cid, opts ExportOptions) (err error) {
	if store == nil {
		return errors.New("bundle: nil store")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	cidStrings := make([]string, 0, len(uniq))
	for s := range uniq {
		cidStrings = append(cidStrings, s)
	}
	sort.Strings(cidStrings)

	refs, err := indexRefs(opts.Refs)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	blocks := make([]IndexBlock, 0, len(cidStrings))
	for _, s := range cidStrings {
		id := uniq[s]
		b, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("bundle: get %s: %w", s, err)
		}
		if err := cidutil.Verify(id, b); err != nil {
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			return err
		}
		blocks = append(blocks, IndexBlock{CID: s, Size: len(b)})
	}

	b, err := marshalIndex(Index{
		Version:   FormatVersion,
		CIDCodec:  "raw",
		Multihash: "sha2-256",
		Blocks:    blocks,
		Refs:      refs,
	})
	if err != nil {
		return err
	}
	return writeFile(tw, indexName, b)
}

func indexRefs(m map[string]cid.Cid) ([]IndexRef, error) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]IndexRef, 0, len(names))
	for _, name := range names {
		if err := storage.CheckRefName(name); err != nil {
			return nil, err
		}
		v := m[name]
		if !v.Defined() {
			return nil, storage.ErrInvalidCID
		}
		out = append(out, IndexRef{Name: name, CID: v.String()})
	}
	return out, nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
	// ApplyRefs sets the refs recorded in the index once all blocks are in.
	// A ref whose block is missing from the destination fails the import.
	ApplyRefs bool
}

// Import reads a bundle from r into store and returns its index (the zero
// Index when the bundle has none).
//
// Each block's bytes must hash to the CID in its entry name.
func Import(ctx context.Context, r io.Reader, store storage.RefStore, opts ImportOptions) (Index, error) {
	if store == nil {
		return Index{}, errors.New("bundle: nil store")
	}

	var idx Index
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Index{}, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return Index{}, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return Index{}, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			b, err := io.ReadAll(tr)
			if err != nil {
				return Index{}, err
			}
			if err := json.Unmarshal(b, &idx); err != nil {
				return Index{}, fmt.Errorf("bundle: index: %w", err)
			}
			if idx.Version != FormatVersion {
				return Index{}, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
			}
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return Index{}, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cidutil.Parse(strings.TrimPrefix(name, "blocks/"))
		if err != nil {
			return Index{}, storage.ErrInvalidCID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return Index{}, err
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return Index{}, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return Index{}, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		putID, err := store.Put(ctx, payload)
		if err != nil {
			return Index{}, err
		}
		if !putID.Equals(id) {
			return Index{}, storage.ErrCIDMismatch
		}
	}

	if opts.ApplyRefs {
		if err := applyRefs(ctx, store, idx.Refs); err != nil {
			return Index{}, err
		}
	}
	return idx, nil
}

func applyRefs(ctx context.Context, store storage.RefStore, refs []IndexRef) error {
	for _, ref := range refs {
		id, err := cidutil.Parse(ref.CID)
		if err != nil {
			return storage.ErrInvalidCID
		}
		ok, err := store.Has(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("bundle: ref %q points at missing block %s: %w", ref.Name, ref.CID, storage.ErrNotFound)
		}
		if err := store.SetRef(ctx, ref.Name, id); err != nil {
			return err
		}
	}
	return nil
}

// Index is the bundle's index.json.
type Index struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []IndexBlock `json:"blocks"`
	Refs      []IndexRef   `json:"refs,omitempty"`
}

type IndexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type IndexRef struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func marshalIndex(idx Index) ([]byte, error) {
	// Index holds only structs and slices, so encoding/json output is stable.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
