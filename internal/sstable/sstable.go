package sstable

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/return2faye/loamkv/internal/utils"
)

var (
	// ErrCorrupt marks a table file that failed integrity checks on load.
	ErrCorrupt = errors.New("sstable: corrupt table")
	// ErrNoEntries is returned when a create is attempted with nothing to write.
	ErrNoEntries = errors.New("sstable: no entries")
)

const (
	maxKeySize   = 1 << 20  // 1MB
	maxValueSize = 10 << 20 // 10MB

	fileSuffix = ".sst"
	filePrefix = "sst_"
)

// Entry is one key/value record of a table's data section.
type Entry struct {
	Key   []byte
	Value []byte
}

type indexEntry struct {
	key    []byte
	offset int64
	size   int64
}

// Table is one immutable on-disk sorted run. A single file holds, in order:
// a fixed-size header (magic, version, JSON metadata, NUL padding), the
// length-prefixed data records, the line-oriented sparse index, and the
// bloom section. Once written the file never changes; it disappears only
// when a finished compaction unlinks it.
type Table struct {
	file     *os.File
	path     string
	fileSize int64
	meta     *Metadata
	index    []indexEntry
	filter   *BloomFilter
}

// Filename formats the on-disk name for a sequence number.
func Filename(sequence uint64) string {
	return fmt.Sprintf("%s%d%s", filePrefix, sequence, fileSuffix)
}

// ParseFilename extracts the sequence number from an sst_<seq>.sst name.
func ParseFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	seq, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func encodeRecord(key, value []byte) []byte {
	buf := make([]byte, 0, 8+len(key)+len(value))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(value)))
	buf = append(buf, value...)
	return buf
}

// CreateFromSorted writes a new table at the given level and sequence from
// entries already sorted by the engine key order, then reopens it for reads.
// Zero entries abort the create; any I/O failure unlinks the partial file.
func CreateFromSorted(dir string, level int, sequence uint64, entries []Entry) (*Table, error) {
	path := filepath.Join(dir, Filename(sequence))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sstable: create: %w", err)
	}
	fail := func(err error) (*Table, error) {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	// Header region first: magic, version, and zeroes where the metadata
	// will land once the offsets are known.
	header := make([]byte, HeaderSize)
	copy(header, Magic)
	binary.BigEndian.PutUint32(header[4:8], Version)
	if _, err := f.Write(header); err != nil {
		return fail(fmt.Errorf("sstable: write header: %w", err))
	}

	filter := NewBloomFilter(len(entries))
	w := bufio.NewWriterSize(f, 64*1024)

	var (
		index    []indexEntry
		minKey   []byte
		maxKey   []byte
		offset   = int64(HeaderSize)
		count    = 0
	)

	for _, e := range entries {
		if minKey == nil {
			minKey = e.Key
		}
		maxKey = e.Key

		filter.Add(e.Key)

		record := encodeRecord(e.Key, e.Value)
		if count%IndexInterval == 0 {
			index = append(index, indexEntry{
				key:    utils.CopyBytes(e.Key),
				offset: offset,
				size:   int64(len(record)),
			})
		}
		if _, err := w.Write(record); err != nil {
			return fail(fmt.Errorf("sstable: write record: %w", err))
		}
		offset += int64(len(record))
		count++
	}

	if count == 0 {
		f.Close()
		os.Remove(path)
		return nil, ErrNoEntries
	}

	// Sparse index: one "key\toffset\tsize" line per indexed record.
	indexOffset := offset
	for _, e := range index {
		line := fmt.Sprintf("%s\t%d\t%d\n", e.key, e.offset, e.size)
		if _, err := w.WriteString(line); err != nil {
			return fail(fmt.Errorf("sstable: write index: %w", err))
		}
		offset += int64(len(line))
	}

	// Bloom section: m, k, then the packed bit array.
	bloomOffset := offset
	var bloomHeader [8]byte
	binary.BigEndian.PutUint32(bloomHeader[0:4], filter.M())
	binary.BigEndian.PutUint32(bloomHeader[4:8], filter.K())
	if _, err := w.Write(bloomHeader[:]); err != nil {
		return fail(fmt.Errorf("sstable: write bloom: %w", err))
	}
	if _, err := w.Write(filter.Bits()); err != nil {
		return fail(fmt.Errorf("sstable: write bloom: %w", err))
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("sstable: flush: %w", err))
	}

	meta := &Metadata{
		Level:       level,
		Sequence:    sequence,
		DataSize:    indexOffset - HeaderSize,
		MinKey:      string(minKey),
		MaxKey:      string(maxKey),
		IndexOffset: indexOffset,
		BloomOffset: bloomOffset,
	}
	block, err := meta.encode()
	if err != nil {
		return fail(err)
	}
	if _, err := f.WriteAt(block, 8); err != nil {
		return fail(fmt.Errorf("sstable: write metadata: %w", err))
	}

	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sstable: fsync: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("sstable: close: %w", err)
	}

	return LoadFile(path)
}

// Load opens the table with the given sequence number under dir.
func Load(dir string, sequence uint64) (*Table, error) {
	return LoadFile(filepath.Join(dir, Filename(sequence)))
}

// LoadFile opens an existing table file, verifying magic and version and
// reading the metadata, sparse index and bloom filter into memory. Any
// integrity problem is reported as an error wrapping ErrCorrupt so callers
// can skip the file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open: %w", err)
	}
	fail := func(err error) (*Table, error) {
		f.Close()
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		return fail(fmt.Errorf("sstable: stat: %w", err))
	}
	if stat.Size() < HeaderSize {
		return fail(fmt.Errorf("%w: file shorter than header", ErrCorrupt))
	}

	header := make([]byte, HeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return fail(fmt.Errorf("sstable: read header: %w", err))
	}
	if string(header[:4]) != Magic {
		return fail(fmt.Errorf("%w: bad magic", ErrCorrupt))
	}
	if v := binary.BigEndian.Uint32(header[4:8]); v != Version {
		return fail(fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v))
	}

	meta, err := decodeMetadata(header[8:])
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	if meta.IndexOffset < HeaderSize || meta.BloomOffset < meta.IndexOffset ||
		meta.BloomOffset+8 > stat.Size() {
		return fail(fmt.Errorf("%w: inconsistent section offsets", ErrCorrupt))
	}

	index, err := readIndex(f, meta)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
	}

	filter, err := readBloom(f, meta, stat.Size())
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
	}

	return &Table{
		file:     f,
		path:     path,
		fileSize: stat.Size(),
		meta:     meta,
		index:    index,
		filter:   filter,
	}, nil
}

func readIndex(f *os.File, meta *Metadata) ([]indexEntry, error) {
	raw := make([]byte, meta.BloomOffset-meta.IndexOffset)
	if _, err := f.ReadAt(raw, meta.IndexOffset); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var index []indexEntry
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed index line %q", line)
		}
		offset, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index offset %q", fields[1])
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index size %q", fields[2])
		}
		index = append(index, indexEntry{key: []byte(fields[0]), offset: offset, size: size})
	}
	return index, nil
}

func readBloom(f *os.File, meta *Metadata, fileSize int64) (*BloomFilter, error) {
	raw := make([]byte, fileSize-meta.BloomOffset)
	if _, err := f.ReadAt(raw, meta.BloomOffset); err != nil {
		return nil, fmt.Errorf("read bloom: %w", err)
	}
	m := binary.BigEndian.Uint32(raw[0:4])
	k := binary.BigEndian.Uint32(raw[4:8])
	filter, err := LoadBloomFilter(raw[8:], m, k)
	if err != nil {
		return nil, fmt.Errorf("decode bloom: %w", err)
	}
	return filter, nil
}

// MayContain consults the bloom filter without touching the data section.
func (t *Table) MayContain(key []byte) bool {
	if t.filter == nil {
		return true
	}
	return t.filter.MayContain(key)
}

// Get performs a point lookup: bloom filter, then sparse index, then a
// forward scan from the indexed offset. A tombstone is returned like any
// other value; only the engine interprets it. Decode errors at the data
// level resolve to "absent", never to a failure.
func (t *Table) Get(key []byte) ([]byte, bool, error) {
	if t.file == nil {
		return nil, false, os.ErrInvalid
	}

	if !t.MayContain(key) {
		return nil, false, nil
	}

	start, ok := t.seekOffset(key)
	if !ok {
		return nil, false, nil
	}

	r := bufio.NewReaderSize(io.NewSectionReader(t.file, start, t.meta.IndexOffset-start), 64*1024)
	for {
		curr, value, err := readRecord(r)
		if err != nil {
			// end of data section or a damaged record: the key is not here
			return nil, false, nil
		}
		cmp := utils.CompareKeys(curr, key)
		if cmp == 0 {
			return value, true, nil
		}
		if cmp > 0 {
			return nil, false, nil
		}
	}
}

// seekOffset binary-searches the sparse index for the largest entry whose
// key is <= the target. ok is false when every indexed key is greater.
func (t *Table) seekOffset(key []byte) (int64, bool) {
	lo, hi := 0, len(t.index)
	for lo < hi {
		mid := (lo + hi) / 2
		if utils.CompareKeys(t.index[mid].key, key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, false
	}
	return t.index[lo-1].offset, true
}

// RangeScan returns all records with lo <= key <= hi in key order. A range
// disjoint from [min_key, max_key] yields nothing without touching the file.
// Decode errors end the scan cleanly with what was read so far.
func (t *Table) RangeScan(lo, hi []byte) ([]Entry, error) {
	if t.file == nil {
		return nil, os.ErrInvalid
	}

	if utils.CompareKeys(lo, []byte(t.meta.MaxKey)) > 0 ||
		utils.CompareKeys(hi, []byte(t.meta.MinKey)) < 0 {
		return nil, nil
	}

	var out []Entry
	r := bufio.NewReaderSize(io.NewSectionReader(t.file, HeaderSize, t.meta.IndexOffset-HeaderSize), 64*1024)
	for {
		key, value, err := readRecord(r)
		if err != nil {
			return out, nil
		}
		if utils.CompareKeys(key, hi) > 0 {
			return out, nil
		}
		if utils.CompareKeys(key, lo) >= 0 {
			out = append(out, Entry{Key: key, Value: value})
		}
	}
}

// readRecord decodes one length-prefixed record. io.EOF at a record
// boundary means the section ended; anything partial or oversized is
// io.ErrUnexpectedEOF.
func readRecord(r *bufio.Reader) (key, value []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, io.ErrUnexpectedEOF
	}
	klen := binary.BigEndian.Uint32(lenBuf[:])
	if klen > maxKeySize {
		return nil, nil, io.ErrUnexpectedEOF
	}
	key = make([]byte, klen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, io.ErrUnexpectedEOF
	}

	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, io.ErrUnexpectedEOF
	}
	vlen := binary.BigEndian.Uint32(lenBuf[:])
	if vlen > maxValueSize {
		return nil, nil, io.ErrUnexpectedEOF
	}
	value = make([]byte, vlen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return key, value, nil
}

// Level is the table's level as persisted in its metadata.
func (t *Table) Level() int {
	return t.meta.Level
}

// Sequence is the table's creation sequence number.
func (t *Table) Sequence() uint64 {
	return t.meta.Sequence
}

// MinKey is the smallest key in the table.
func (t *Table) MinKey() []byte {
	return []byte(t.meta.MinKey)
}

// MaxKey is the largest key in the table.
func (t *Table) MaxKey() []byte {
	return []byte(t.meta.MaxKey)
}

// Path is the location of the table file.
func (t *Table) Path() string {
	return t.path
}

// Close releases the file handle and drops the in-memory index and filter.
func (t *Table) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.meta = nil
	t.index = nil
	t.filter = nil
	return err
}

// Remove closes the table and unlinks its file.
func (t *Table) Remove() error {
	if err := t.Close(); err != nil {
		return err
	}
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sstable: remove: %w", err)
	}
	return nil
}
