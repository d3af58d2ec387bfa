package merkle

import (
	"bytes"
	"testing"
)

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected an error building a tree over zero elements")
	}
}

func TestNewIsDeterministic(t *testing.T) {
	data := [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	t1, err := New(data)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := New(data)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(t1.RootHash(), t2.RootHash()) {
		t.Fatal("identical input should produce identical root hashes")
	}
}

func TestNewOddCountDuplicatesLast(t *testing.T) {
	odd := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	evenWithDup := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("c")}

	oddTree, err := New(odd)
	if err != nil {
		t.Fatal(err)
	}
	evenTree, err := New(evenWithDup)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(oddTree.RootHash(), evenTree.RootHash()) {
		t.Fatal("an odd leaf count should duplicate the last leaf, matching the explicit even-with-dup input")
	}
}

func TestDifferentOrderDifferentRoot(t *testing.T) {
	a, err := New([][]byte{[]byte("a"), []byte("b")})
	if err != nil {
		t.Fatal(err)
	}
	b, err := New([][]byte{[]byte("b"), []byte("a")})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.RootHash(), b.RootHash()) {
		t.Fatal("swapping leaf order should change the root hash")
	}
}
