package sstable

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// Magic marks the first four bytes of every table file.
	Magic = "LSMT"
	// Version is the only supported file format version.
	Version uint32 = 1
	// HeaderSize is the fixed header region: magic, version, then the JSON
	// metadata NUL-padded to this boundary. The data section starts here.
	HeaderSize = 4096
	// IndexInterval is the sparse index stride: every Nth record gets an
	// index line.
	IndexInterval = 128
)

// Metadata is the JSON document stored in the header region. Offsets are
// absolute file positions; min/max keys are under the engine key order.
type Metadata struct {
	Level       int    `json:"level"`
	Sequence    uint64 `json:"sequence"`
	DataSize    int64  `json:"data_size"`
	MinKey      string `json:"min_key"`
	MaxKey      string `json:"max_key"`
	IndexOffset int64  `json:"index_offset"`
	BloomOffset int64  `json:"bloom_offset"`
}

// encode serializes the metadata into a NUL-padded block of HeaderSize-8
// bytes, ready to be written at offset 8 (after magic and version) so that
// it fills the rest of the header. Metadata that does not fit
// the reserved region is an error.
func (m *Metadata) encode() ([]byte, error) {
	doc, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("sstable: marshal metadata: %w", err)
	}
	if len(doc) > HeaderSize-8 {
		return nil, fmt.Errorf("sstable: metadata too large for header: %d bytes", len(doc))
	}

	block := make([]byte, HeaderSize-8)
	copy(block, doc)
	return block, nil
}

// decodeMetadata parses the NUL-padded JSON region of a header.
func decodeMetadata(region []byte) (*Metadata, error) {
	end := bytes.IndexByte(region, 0)
	if end == -1 {
		end = len(region)
	}
	doc := region[:end]
	if len(doc) == 0 {
		return nil, fmt.Errorf("sstable: empty metadata")
	}

	var m Metadata
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("sstable: parse metadata: %w", err)
	}
	return &m, nil
}
