package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/return2faye/loamkv/internal/utils"
)

var ErrClosed = errors.New("wal: log is closed")

const (
	// FileName is the single log file inside the WAL directory.
	FileName = "wal"

	// Size limits applied during recovery. A length prefix beyond these is
	// treated as a corrupt tail, not as a real record.
	maxKeySize   = 1 << 20  // 1MB
	maxValueSize = 10 << 20 // 10MB
)

// Record is one key/value pair recovered from the log.
// A value equal to the engine's tombstone is passed through untouched.
type Record struct {
	Key   []byte
	Value []byte
}

// WAL is an append-only log of every mutation, written before the memtable
// is touched. One log file exists per live memtable; the engine deletes it
// after a successful flush.
//
// Record format: key_len(4, big-endian) | key | value_len(4, big-endian) | value.
type WAL struct {
	dir    string
	path   string
	file   *os.File
	logger *slog.Logger
}

// Open creates the WAL directory if needed and opens the log in append mode.
func Open(dir string, logger *slog.Logger) (*WAL, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}

	return &WAL{
		dir:    dir,
		path:   path,
		file:   f,
		logger: logger,
	}, nil
}

// Append writes one length-prefixed record and fsyncs before returning.
// On error the caller must not apply the write to the memtable.
func (w *WAL) Append(key, value []byte) error {
	if w.file == nil {
		return ErrClosed
	}

	buf := make([]byte, 0, 8+len(key)+len(value))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(value)))
	buf = append(buf, value...)

	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// Recover reads the whole log and returns the last-written value for each
// key, sorted by the engine key order. A truncated or malformed tail ends
// recovery cleanly; whatever parsed before it is kept. The log is reopened
// in append mode afterwards so writes can continue.
func (w *WAL) Recover() ([]Record, error) {
	// The append handle is write-only; close it and scan a fresh one.
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return nil, fmt.Errorf("wal: close before recover: %w", err)
		}
		w.file = nil
	}

	latest := make(map[string][]byte)

	f, err := os.Open(w.path)
	switch {
	case os.IsNotExist(err):
		// Nothing to replay.
	case err != nil:
		return nil, fmt.Errorf("wal: open for recover: %w", err)
	default:
		w.scan(f, latest)
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("wal: close after recover: %w", err)
		}
	}

	// Reopen for continued appends.
	af, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: reopen: %w", err)
	}
	w.file = af

	records := make([]Record, 0, len(latest))
	for k, v := range latest {
		records = append(records, Record{Key: []byte(k), Value: v})
	}
	sort.Slice(records, func(i, j int) bool {
		return utils.CompareKeys(records[i].Key, records[j].Key) < 0
	})
	return records, nil
}

// scan consumes records until clean EOF or the first malformed one,
// collapsing duplicates so each key keeps only its last value.
func (w *WAL) scan(f *os.File, latest map[string][]byte) {
	r := bufio.NewReader(f)
	recovered := 0
	for {
		key, status := readField(r, maxKeySize)
		if status == fieldEOF {
			break
		}
		if status == fieldCorrupt {
			w.logger.Warn("wal: malformed record, discarding tail", "recovered", recovered)
			break
		}

		value, status := readField(r, maxValueSize)
		if status != fieldOK {
			// A key without its value is a half-written record.
			w.logger.Warn("wal: truncated record, discarding tail", "recovered", recovered)
			break
		}

		latest[string(key)] = value
		recovered++
	}
}

type fieldStatus int

const (
	fieldOK fieldStatus = iota
	fieldEOF
	fieldCorrupt
)

// readField reads one length-prefixed byte string. fieldEOF means the stream
// ended exactly on a record boundary; anything partial or oversized is
// fieldCorrupt.
func readField(r *bufio.Reader, maxSize uint32) ([]byte, fieldStatus) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, fieldEOF
		}
		return nil, fieldCorrupt
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxSize {
		return nil, fieldCorrupt
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fieldCorrupt
	}
	return data, fieldOK
}

// Path returns the location of the log file.
func (w *WAL) Path() string {
	return w.path
}

// Close releases the file handle. Append after Close returns ErrClosed.
func (w *WAL) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Delete closes the log and unlinks the file. A missing file is not an error.
func (w *WAL) Delete() error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: delete: %w", err)
	}
	return nil
}
