// Package crc implements the masked CRC32C checksum used by TFRecord-style
// record files.
//
// The raw checksum is a reflected CRC-32 over the Castagnoli polynomial with
// the usual 0xFFFFFFFF pre- and post-conditioning. Before it is written to a
// record the value is masked: rotated right by 15 bits and offset by a fixed
// constant, so that the checksum of data which itself contains checksums does
// not collide with the data's own checksum.
//
//	masked = ((crc >> 15) | (crc << 17)) + 0xA282EAD8
//
// All functions are pure and safe for concurrent use.
package crc

import (
	"encoding/binary"
	"hash"
)

const (
	// Size is the serialized size of a checksum in bytes.
	Size = 4

	// MaskDelta is added to the rotated checksum when masking.
	MaskDelta uint32 = 0xA282EAD8

	maskRotation = 15
)

// Table returns a copy of the lookup table.
func Table() [256]uint32 {
	return table
}

// Update returns the result of adding the bytes in p to crc. The crc argument
// and the result are finalized values, so Update(Update(0, a), b) equals
// Checksum of a followed by b.
func Update(crc uint32, p []byte) uint32 {
	crc = ^crc
	for _, b := range p {
		crc = (crc >> 8) ^ table[byte(crc)^b]
	}
	return ^crc
}

// Checksum returns the unmasked CRC32C of p.
func Checksum(p []byte) uint32 {
	return Update(0, p)
}

// Mask applies the record-format mask to a raw checksum.
func Mask(crc uint32) uint32 {
	return (crc>>maskRotation | crc<<(32-maskRotation)) + MaskDelta
}

// Unmask reverses Mask.
func Unmask(masked uint32) uint32 {
	rot := masked - MaskDelta
	return rot>>(32-maskRotation) | rot<<maskRotation
}

// Masked returns the masked CRC32C of p.
func Masked(p []byte) uint32 {
	return Mask(Checksum(p))
}

// MaskedBytes returns the masked CRC32C of p serialized little-endian.
func MaskedBytes(p []byte) [Size]byte {
	var out [Size]byte
	binary.LittleEndian.PutUint32(out[:], Masked(p))
	return out
}

// digest is a streaming hash.Hash32 over the same table.
type digest struct {
	crc    uint32
	masked bool
}

var _ hash.Hash32 = (*digest)(nil)

// New returns a hash.Hash32 computing the unmasked CRC32C.
func New() hash.Hash32 {
	return &digest{}
}

// NewMasked returns a hash.Hash32 whose Sum32 is the masked CRC32C.
func NewMasked() hash.Hash32 {
	return &digest{masked: true}
}

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Reset() { d.crc = 0 }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

func (d *digest) Sum32() uint32 {
	if d.masked {
		return Mask(d.crc)
	}
	return d.crc
}

// Sum appends the big-endian checksum to b, matching hash/crc32.
func (d *digest) Sum(b []byte) []byte {
	s := d.Sum32()
	return append(b, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
