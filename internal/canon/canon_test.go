package canon

import "testing"

func TestWriterDeterministic(t *testing.T) {
	build := func() []byte {
		w := NewWriter()
		w.String("hello")
		w.ByteSlice([]byte{1, 2, 3})
		w.Int32(-7)
		w.Uint64(42)
		w.Uint128(9001)
		w.ListLen(3)
		return w.Bytes()
	}

	a := build()
	b := build()
	if len(a) != len(b) {
		t.Fatalf("encodings differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("encodings diverge at byte %d", i)
		}
	}
}

func TestWriterDistinguishesFieldBoundaries(t *testing.T) {
	w1 := NewWriter()
	w1.String("ab")
	w1.String("c")

	w2 := NewWriter()
	w2.String("a")
	w2.String("bc")

	if string(w1.Bytes()) == string(w2.Bytes()) {
		t.Fatal("length-prefixing should prevent \"ab\"+\"c\" from colliding with \"a\"+\"bc\"")
	}
}

func TestUint128HighBytesZero(t *testing.T) {
	w := NewWriter()
	w.Uint128(1)
	b := w.Bytes()
	if len(b) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b))
	}
	for i := 0; i < 8; i++ {
		if b[i] != 0 {
			t.Fatalf("expected high byte %d to be zero, got %d", i, b[i])
		}
	}
	if b[15] != 1 {
		t.Fatalf("expected low byte to be 1, got %d", b[15])
	}
}
