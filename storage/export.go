package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/tolelom/tolbattle/core"
)

// ErrSnapshotRoot is returned by ImportSnapshot when the imported entries do
// not reproduce the root recorded in the snapshot header.
var ErrSnapshotRoot = errors.New("snapshot root mismatch")

const snapshotVersion = 2

// snapshotHeader is the first JSON line of an exported snapshot.
type snapshotHeader struct {
	Version int    `json:"version"`
	ChainID string `json:"chain_id"`
	Root    string `json:"root"`
	Entries int    `json:"entries"`
}

// snapshotEntry is one state key-value pair. Keys carry their prefix, so
// accounts, receipts and meta all travel in the same stream.
type snapshotEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// entries returns every state entry (persisted merged with the write buffer)
// in key order.
func (s *StateDB) entries() ([]snapshotEntry, error) {
	var out []snapshotEntry
	for _, prefix := range statePrefixes {
		merged, err := s.scan(prefix)
		if err != nil {
			return nil, err
		}
		for k, v := range merged {
			out = append(out, snapshotEntry{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ExportSnapshot writes the complete state (accounts, receipts and meta) to w
// as zstd-compressed JSON lines: one header line, then one entry per line in
// key order.
func ExportSnapshot(w io.Writer, state *StateDB) error {
	entries, err := state.entries()
	if err != nil {
		return fmt.Errorf("list state: %w", err)
	}
	chainID, err := state.GetMeta("chain_id")
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("read chain id: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	je := json.NewEncoder(bw)
	hdr := snapshotHeader{
		Version: snapshotVersion,
		ChainID: string(chainID),
		Root:    state.ComputeRoot(),
		Entries: len(entries),
	}
	if err := je.Encode(hdr); err != nil {
		_ = enc.Close()
		return err
	}
	for _, e := range entries {
		if err := je.Encode(e); err != nil {
			_ = enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ImportSnapshot reads a snapshot written by ExportSnapshot into state's
// write buffer and checks that the result hashes to the exported root, so it
// only succeeds on a state that was empty or already equal to the snapshot.
// On error the write buffer is left as it was. The caller commits. Returns
// the number of entries loaded.
func ImportSnapshot(r io.Reader, state *StateDB) (int, error) {
	snapID, err := state.Snapshot()
	if err != nil {
		return 0, err
	}
	n, err := importEntries(r, state)
	if err != nil {
		if revertErr := state.RevertToSnapshot(snapID); revertErr != nil {
			return 0, fmt.Errorf("%w (revert: %v)", err, revertErr)
		}
		return 0, err
	}
	if err := state.DiscardSnapshot(snapID); err != nil {
		return 0, err
	}
	return n, nil
}

func importEntries(r io.Reader, state *StateDB) (int, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReader(dec))
	var hdr snapshotHeader
	if err := jd.Decode(&hdr); err != nil {
		return 0, fmt.Errorf("snapshot header: %w", err)
	}
	if hdr.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}
	existing, err := state.GetMeta("chain_id")
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return 0, err
	case string(existing) != hdr.ChainID:
		return 0, fmt.Errorf("snapshot is for chain %q, state is %q", hdr.ChainID, existing)
	}

	n := 0
	for {
		var e snapshotEntry
		err := jd.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("snapshot entry %d: %w", n, err)
		}
		if !isStateKey(e.Key) {
			return n, fmt.Errorf("snapshot entry %d: unknown key %q", n, e.Key)
		}
		if e.Value == nil {
			e.Value = []byte{}
		}
		state.set(e.Key, e.Value)
		n++
	}
	if n != hdr.Entries {
		return n, fmt.Errorf("snapshot truncated: read %d of %d entries", n, hdr.Entries)
	}
	if root := state.ComputeRoot(); root != hdr.Root {
		return n, fmt.Errorf("%w: got %s, snapshot says %s", ErrSnapshotRoot, root, hdr.Root)
	}
	return n, nil
}

func isStateKey(k string) bool {
	for _, p := range statePrefixes {
		if len(k) > len(p) && k[:len(p)] == p {
			return true
		}
	}
	return false
}
