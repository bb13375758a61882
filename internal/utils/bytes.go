package utils

// CopyBytes returns a defensive copy so callers can't mutate data that the
// store still references (memtable nodes, returned values). nil stays nil.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
