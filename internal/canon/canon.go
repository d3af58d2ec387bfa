// Package canon is the deterministic binary encoding shared by the tx and
// block packages for everything that feeds a hash: transaction ids, block
// hashes, and the per-input signing message. Unlike encoding/gob, which is
// free to change its wire shape across field additions or even struct
// versions, this encoder pins field order, integer width, and
// length-prefixing once and for all: field order matches declaration order,
// integer widths are u128 for the timestamp and i32 for nonce/value/vout,
// strings are length-prefixed UTF-8, and lists are length-prefixed. Nothing
// here is ever fed through gob.
package canon

import (
	"encoding/binary"
)

// Writer accumulates a canonical encoding. Every method that writes
// variable-size data appends a length prefix ahead of it so the stream is unambiguous
// to decode, though this module only ever needs to encode (the hash input
// is never decoded back).
type Writer struct {
	buf []byte
}

// NewWriter returns an empty canonical writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// String writes a length-prefixed UTF-8 string: a 4-byte big-endian length
// followed by the raw bytes.
func (w *Writer) String(s string) {
	w.lenPrefixed([]byte(s))
}

// ByteSlice appends a length-prefixed byte slice.
func (w *Writer) ByteSlice(b []byte) {
	w.lenPrefixed(b)
}

func (w *Writer) lenPrefixed(b []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	w.buf = append(w.buf, length[:]...)
	w.buf = append(w.buf, b...)
}

// Int32 appends a 4-byte big-endian signed integer.
func (w *Writer) Int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// Uint64 appends an 8-byte big-endian unsigned integer.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint128 appends a 16-byte big-endian unsigned integer, pinning the
// timestamp field's width even though Go has no native 128-bit integer
// type. The high 8 bytes are always zero: nothing in this system produces
// a timestamp needing more than 64 bits.
func (w *Writer) Uint128(low uint64) {
	var b [16]byte
	binary.BigEndian.PutUint64(b[8:], low)
	w.buf = append(w.buf, b[:]...)
}

// ListLen appends a 4-byte big-endian count ahead of a variable-length list.
func (w *Writer) ListLen(n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	w.buf = append(w.buf, b[:]...)
}
