package utils

import (
	"testing"
)

func TestCopyBytes(t *testing.T) {
	original := []byte("test data")
	copied := CopyBytes(original)

	if string(copied) != string(original) {
		t.Errorf("Expected %s, got %s", string(original), string(copied))
	}

	// Mutating either side must not leak into the other
	copied[0] = 'X'
	if original[0] == 'X' {
		t.Error("CopyBytes should create a new slice, not share the underlying array")
	}
	original[1] = 'Y'
	if copied[1] == 'Y' {
		t.Error("Modifying the original should not affect the copy")
	}
}

func TestCopyBytesNil(t *testing.T) {
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should return nil")
	}
}

func TestCopyBytesEmpty(t *testing.T) {
	copied := CopyBytes([]byte{})
	if copied == nil || len(copied) != 0 {
		t.Errorf("Expected non-nil empty slice, got %v", copied)
	}
}
