package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrCorruptJournal indicates a journal record failed its integrity
	// check. Like a corrupt snapshot, this triggers a full rebuild.
	ErrCorruptJournal = errors.New("corrupt index journal")
)

// Journal record opcodes.
const (
	recordUpsert = uint8(1)
	recordDelete = uint8(2)
)

// Journal is the write-ahead log for index mutations between snapshots.
// Every mutation is appended and fsynced before the in-memory generation
// is swapped, so a crash replays to the exact pre-crash state. Each
// record carries its own xxhash64 checksum:
//
//	length   uint32   payload length
//	payload  []byte   opcode + encoded entry
//	checksum uint64   xxhash64 of payload
type Journal struct {
	file *os.File
	path string
}

// openJournal opens (creating if needed) the journal for appending.
func openJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f, path: path}, nil
}

// Append writes one mutation record and syncs it to disk.
func (j *Journal) Append(op uint8, entry *Entry) error {
	var payload bytes.Buffer
	payload.WriteByte(op)
	if err := encodeEntry(&payload, entry); err != nil {
		return fmt.Errorf("encode journal record: %w", err)
	}

	var rec bytes.Buffer
	_ = binary.Write(&rec, binary.LittleEndian, uint32(payload.Len()))
	rec.Write(payload.Bytes())
	_ = binary.Write(&rec, binary.LittleEndian, xxhash.Sum64(payload.Bytes()))

	if _, err := j.file.Write(rec.Bytes()); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return j.file.Sync()
}

// Replay applies every journal record onto entries in write order. Any
// malformed or checksum-failing record fails the whole replay with
// ErrCorruptJournal; partial recovery is never attempted.
func (j *Journal) Replay(entries map[string]*Entry) error {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek journal: %w", err)
	}

	for {
		var length uint32
		err := binary.Read(j.file, binary.LittleEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: bad record header: %v", ErrCorruptJournal, err)
		}
		if length == 0 || length > 1<<28 {
			return fmt.Errorf("%w: implausible record length %d", ErrCorruptJournal, length)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(j.file, payload); err != nil {
			return fmt.Errorf("%w: truncated record: %v", ErrCorruptJournal, err)
		}

		var checksum uint64
		if err := binary.Read(j.file, binary.LittleEndian, &checksum); err != nil {
			return fmt.Errorf("%w: missing checksum: %v", ErrCorruptJournal, err)
		}
		if xxhash.Sum64(payload) != checksum {
			return fmt.Errorf("%w: checksum mismatch", ErrCorruptJournal)
		}

		op := payload[0]
		entry, err := decodeEntry(bytes.NewReader(payload[1:]))
		if err != nil {
			return fmt.Errorf("%w: undecodable entry: %v", ErrCorruptJournal, err)
		}

		switch op {
		case recordUpsert:
			entries[entry.key()] = entry
		case recordDelete:
			if existing, ok := entries[entry.key()]; ok {
				tombstone := *existing
				tombstone.Tombstoned = true
				entries[entry.key()] = &tombstone
			}
		default:
			return fmt.Errorf("%w: unknown opcode %d", ErrCorruptJournal, op)
		}
	}

	// Leave the offset at the end for subsequent appends.
	_, err := j.file.Seek(0, io.SeekEnd)
	return err
}

// Reset truncates the journal after a successful snapshot write.
func (j *Journal) Reset() error {
	if err := j.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return j.file.Sync()
}

// Close releases the journal file handle.
func (j *Journal) Close() error {
	return j.file.Close()
}
