package codec

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/tfrecord/pkg/crc"
)

const (
	// LengthSize is the size of the length field.
	LengthSize = 8
	// HeaderSize covers the length field and its checksum.
	HeaderSize = LengthSize + crc.Size
	// FooterSize is the size of the trailing payload checksum.
	FooterSize = crc.Size
	// Overhead is the number of framing bytes added to every payload.
	Overhead = HeaderSize + FooterSize

	// DefaultMaxRecordSize is the largest payload length decoders accept
	// unless configured otherwise.
	DefaultMaxRecordSize uint64 = 1 << 30
)

const maxInt = int(^uint(0) >> 1)

// Record is one decoded framing. Payload aliases the buffer it was decoded
// from.
type Record struct {
	Length     uint64 // Payload length as stored
	LengthCRC  uint32 // Masked checksum of the length field
	Payload    []byte // Payload bytes
	PayloadCRC uint32 // Masked checksum of the payload
}

// NewRecord builds a record for payload with both checksums filled in.
func NewRecord(payload []byte) *Record {
	length := uint64(len(payload))
	return &Record{
		Length:     length,
		LengthCRC:  lengthChecksum(length),
		Payload:    payload,
		PayloadCRC: crc.Masked(payload),
	}
}

// Size returns the encoded size of the record.
func (r *Record) Size() int {
	return Overhead + len(r.Payload)
}

// Validate recomputes both checksums and compares them with the stored ones.
func (r *Record) Validate() error {
	if got := lengthChecksum(r.Length); got != r.LengthCRC {
		return errors.Wrapf(ErrChecksumMismatch, "length checksum: stored %#08x, computed %#08x", r.LengthCRC, got)
	}
	if uint64(len(r.Payload)) != r.Length {
		return errors.Newf("record length %d does not match payload size %d", r.Length, len(r.Payload))
	}
	if got := crc.Masked(r.Payload); got != r.PayloadCRC {
		return errors.Wrapf(ErrChecksumMismatch, "payload checksum: stored %#08x, computed %#08x", r.PayloadCRC, got)
	}
	return nil
}

// AppendTo appends the wire form of the record, using its stored checksums,
// to dst.
func (r *Record) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, r.Length)
	dst = binary.LittleEndian.AppendUint32(dst, r.LengthCRC)
	dst = append(dst, r.Payload...)
	return binary.LittleEndian.AppendUint32(dst, r.PayloadCRC)
}

// EncodedSize returns the wire size of a record carrying n payload bytes.
func EncodedSize(n int) int {
	return Overhead + n
}

// Encode frames payload as a single record.
func Encode(payload []byte) []byte {
	return AppendRecord(make([]byte, 0, EncodedSize(len(payload))), payload)
}

// AppendRecord appends the framed payload to dst and returns the extended
// slice.
func AppendRecord(dst, payload []byte) []byte {
	var lb [LengthSize]byte
	binary.LittleEndian.PutUint64(lb[:], uint64(len(payload)))

	dst = append(dst, lb[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, crc.Masked(lb[:]))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint32(dst, crc.Masked(payload))
}

// DecodeOne decodes the first record in buf without verifying checksums.
//
// It returns the payload and the number of bytes the record occupies. When
// buf does not hold a complete record, n is 0 and err is nil. A record that is
// fully present is returned whatever its length; ErrSizeOverflow is only
// returned when the record does not fit and its length is above
// DefaultMaxRecordSize, or when its size would not fit in an int.
func DecodeOne(buf []byte) (payload []byte, n int, err error) {
	rec, n, err := decode(buf, DefaultMaxRecordSize)
	if err != nil || n == 0 {
		return nil, 0, err
	}
	return rec.Payload, n, nil
}

// DecodeRecord is DecodeOne returning the full record, so the caller can
// Validate it.
func DecodeRecord(buf []byte) (*Record, int, error) {
	rec, n, err := decode(buf, DefaultMaxRecordSize)
	if err != nil || n == 0 {
		return nil, 0, err
	}
	return &rec, n, nil
}

// VerifyRecord strictly checks the first record in buf. An empty buffer
// returns ErrInsufficientData and a partial record ErrTruncatedStream.
func VerifyRecord(buf []byte) error {
	if len(buf) == 0 {
		return ErrInsufficientData
	}
	rec, n, err := decode(buf, DefaultMaxRecordSize)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrTruncatedStream, "%d bytes do not hold a complete record", len(buf))
	}
	return rec.Validate()
}

// ParseLength reads the length field at the start of hdr, rejecting values
// above limit or values whose record size would not fit in an int.
func ParseLength(hdr []byte, limit uint64) (uint64, error) {
	if len(hdr) < LengthSize {
		return 0, errors.Wrapf(ErrInsufficientData, "need %d bytes for length, have %d", LengthSize, len(hdr))
	}
	length := binary.LittleEndian.Uint64(hdr[:LengthSize])
	if length > limit || length > uint64(maxInt-Overhead) {
		return 0, errSizeOverflow(length, limit)
	}
	return length, nil
}

func errSizeOverflow(length, limit uint64) error {
	return errors.Wrapf(ErrSizeOverflow, "length %d, limit %d", length, limit)
}

// checkHeader compares the stored length checksum with the length field once
// buf holds a whole header. Shorter buffers pass.
func checkHeader(buf []byte) error {
	if len(buf) < HeaderSize {
		return nil
	}
	stored := binary.LittleEndian.Uint32(buf[LengthSize:HeaderSize])
	if got := crc.Masked(buf[:LengthSize]); got != stored {
		return errors.Wrapf(ErrChecksumMismatch, "length checksum: stored %#08x, computed %#08x", stored, got)
	}
	return nil
}

// decode is the shared cursor-free core of every decoder. n == 0 with a nil
// error means buf holds no complete record. limit only rejects records that
// are not fully in buf: a complete record costs no further allocation.
func decode(buf []byte, limit uint64) (Record, int, error) {
	if len(buf) < LengthSize {
		return Record{}, 0, nil
	}
	length := binary.LittleEndian.Uint64(buf[:LengthSize])
	if length > uint64(maxInt-Overhead) {
		return Record{}, 0, errSizeOverflow(length, limit)
	}

	total := Overhead + int(length)
	if len(buf) < total {
		if length > limit {
			return Record{}, 0, errSizeOverflow(length, limit)
		}
		return Record{}, 0, nil
	}

	end := HeaderSize + int(length)
	return Record{
		Length:     length,
		LengthCRC:  binary.LittleEndian.Uint32(buf[LengthSize:HeaderSize]),
		Payload:    buf[HeaderSize:end:end],
		PayloadCRC: binary.LittleEndian.Uint32(buf[end:total]),
	}, total, nil
}

// decodeLimited is decode with limit applied to every record, for readers
// that size buffers from the length field.
func decodeLimited(buf []byte, limit uint64) (Record, int, error) {
	if len(buf) >= LengthSize {
		if _, err := ParseLength(buf, limit); err != nil {
			return Record{}, 0, err
		}
	}
	return decode(buf, limit)
}

func lengthChecksum(length uint64) uint32 {
	var lb [LengthSize]byte
	binary.LittleEndian.PutUint64(lb[:], length)
	return crc.Masked(lb[:])
}
