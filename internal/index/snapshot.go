package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	// ErrCorruptSnapshot indicates the snapshot file failed its version
	// or integrity check. Callers respond with a full rebuild, never a
	// partial recovery.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")
)

// Snapshot file layout, all integers little-endian:
//
//	magic    [8]byte  "CTXDSNAP"
//	version  uint32
//	count    uint64
//	entries  count * entry (see encodeEntry)
//	checksum uint64    xxhash64 of everything before it
const (
	snapshotMagic   = "CTXDSNAP"
	snapshotVersion = uint32(2)
)

func snapshotPath(dir string) string {
	return filepath.Join(dir, "index.snapshot")
}

func journalPath(dir string) string {
	return filepath.Join(dir, "index.journal")
}

// writeSnapshot serializes entries to a temp file and atomically renames
// it over the canonical path, so a crash mid-write never corrupts the
// last good snapshot.
func writeSnapshot(path string, entries map[string]*Entry) error {
	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	_ = binary.Write(&buf, binary.LittleEndian, snapshotVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(entries)))

	// Deterministic entry order keeps snapshots byte-stable for a given
	// index state.
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := encodeEntry(&buf, entries[id]); err != nil {
			return err
		}
	}

	checksum := xxhash.Sum64(buf.Bytes())
	_ = binary.Write(&buf, binary.LittleEndian, checksum)

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads and validates the snapshot. A missing file yields an
// empty entry set; any structural or checksum failure yields
// ErrCorruptSnapshot.
func loadSnapshot(path string) (map[string]*Entry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]*Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if len(data) < len(snapshotMagic)+4+8+8 {
		return nil, fmt.Errorf("%w: truncated", ErrCorruptSnapshot)
	}

	body, tail := data[:len(data)-8], data[len(data)-8:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(tail) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	r := bytes.NewReader(body)
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	entries := make(map[string]*Entry, count)
	for i := uint64(0); i < count; i++ {
		entry, err := decodeEntry(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptSnapshot, i, err)
		}
		entries[entry.key()] = entry
	}

	return entries, nil
}

// encodeEntry writes one entry in length-prefixed binary form.
func encodeEntry(w io.Writer, e *Entry) error {
	if err := binary.Write(w, binary.LittleEndian, e.ProjectID); err != nil {
		return err
	}
	for _, s := range []string{e.UnitID, e.Path, e.SymbolName, string(e.Kind)} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if _, err := w.Write(e.ContentHash[:]); err != nil {
		return err
	}

	var flags uint8
	if e.Degraded {
		flags |= 1
	}
	if e.Tombstoned {
		flags |= 2
	}
	if err := binary.Write(w, binary.LittleEndian, flags); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Vector))); err != nil {
		return err
	}
	for _, v := range e.Vector {
		if err := binary.Write(w, binary.LittleEndian, math.Float32bits(v)); err != nil {
			return err
		}
	}
	return nil
}

// decodeEntry reads one entry written by encodeEntry.
func decodeEntry(r io.Reader) (*Entry, error) {
	e := &Entry{}

	if err := binary.Read(r, binary.LittleEndian, &e.ProjectID); err != nil {
		return nil, err
	}

	fields := make([]string, 4)
	for i := range fields {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		fields[i] = s
	}
	e.UnitID, e.Path, e.SymbolName, e.Kind = fields[0], fields[1], fields[2], types.Kind(fields[3])

	if _, err := io.ReadFull(r, e.ContentHash[:]); err != nil {
		return nil, err
	}

	var flags uint8
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return nil, err
	}
	e.Degraded = flags&1 != 0
	e.Tombstoned = flags&2 != 0

	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, err
	}
	if dim > 1<<20 {
		return nil, fmt.Errorf("implausible vector dimension %d", dim)
	}
	e.Vector = make([]float32, dim)
	for i := range e.Vector {
		var bits uint32
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		e.Vector[i] = math.Float32frombits(bits)
	}

	return e, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 1<<24 {
		return "", fmt.Errorf("implausible string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
