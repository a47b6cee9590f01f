package contenthash

import "testing"

func TestComputeIsStableAcrossLineEndings(t *testing.T) {
	a := Compute([]byte("hello\nworld"))
	b := Compute([]byte("hello\r\nworld"))
	if a != b {
		t.Fatalf("hash not stable across CRLF/LF: %s != %s", a, b)
	}
}

func TestComputeDiffersForDifferentContent(t *testing.T) {
	a := Compute([]byte("hello world"))
	b := Compute([]byte("hello world!"))
	if a == b {
		t.Fatalf("distinct content hashed to the same digest")
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	content := []byte("the quick brown fox")
	if Compute(content) != Compute(content) {
		t.Fatalf("hash is not deterministic")
	}
}
