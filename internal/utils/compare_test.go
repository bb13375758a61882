package utils

import "testing"

func TestCompareKeysLengthFirst(t *testing.T) {
	// "a" < "z" < "aa": length dominates, bytes break ties
	cases := []struct {
		a, b string
		want int
	}{
		{"a", "z", -1},
		{"z", "aa", -1},
		{"aa", "a", 1},
		{"aa", "ab", -1},
		{"ab", "aa", 1},
		{"abc", "abc", 0},
		{"", "a", -1},
		{"", "", 0},
	}

	for _, c := range cases {
		got := CompareKeys([]byte(c.a), []byte(c.b))
		if got != c.want {
			t.Errorf("CompareKeys(%q, %q): expected %d, got %d", c.a, c.b, c.want, got)
		}
	}
}

func TestCompareKeysAntisymmetric(t *testing.T) {
	keys := []string{"", "a", "b", "aa", "ab", "ba", "abc", "key1", "key10"}
	for _, a := range keys {
		for _, b := range keys {
			ab := CompareKeys([]byte(a), []byte(b))
			ba := CompareKeys([]byte(b), []byte(a))
			if ab != -ba {
				t.Errorf("CompareKeys(%q, %q)=%d but CompareKeys(%q, %q)=%d", a, b, ab, b, a, ba)
			}
		}
	}
}
