package sstable

import (
	"bufio"
	"io"
	"os"
)

// Iterator walks a table's data section in file order, which is key order.
// A damaged record ends the iteration the same way the section ending does.
type Iterator struct {
	r   *bufio.Reader
	key []byte
	val []byte
	eof bool
}

// NewIterator positions a fresh iterator before the first record; call Next
// once to load it.
func (t *Table) NewIterator() *Iterator {
	if t.file == nil {
		return &Iterator{eof: true}
	}
	section := io.NewSectionReader(t.file, HeaderSize, t.meta.IndexOffset-HeaderSize)
	return &Iterator{r: bufio.NewReaderSize(section, 64*1024)}
}

func (it *Iterator) Valid() bool {
	return !it.eof && it.key != nil
}

func (it *Iterator) Key() []byte {
	return it.key
}

func (it *Iterator) Value() []byte {
	return it.val
}

// Next advances to the following record. The end of the data section, or a
// record that fails to decode, exhausts the iterator without an error.
func (it *Iterator) Next() error {
	if it.eof {
		return nil
	}
	if it.r == nil {
		return os.ErrInvalid
	}

	key, value, err := readRecord(it.r)
	if err != nil {
		it.eof = true
		it.key, it.val = nil, nil
		return nil
	}

	it.key = key
	it.val = value
	return nil
}
