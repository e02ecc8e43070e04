package codec

import (
	"bufio"

	"github.com/cockroachdb/errors"
)

// Scanner walks the records of a complete, borrowed buffer with an offset
// cursor. The buffer is never copied or re-sliced between records.
type Scanner struct {
	buf    []byte
	opts   options
	off    int // start of the next record
	recOff int // start of the current record
	rec    Record
	count  int
	err    error
}

// NewScanner returns a Scanner over buf. Checksums are verified unless
// WithVerify(false) is given.
func NewScanner(buf []byte, opts ...Option) *Scanner {
	return &Scanner{buf: buf, opts: buildOptions(opts)}
}

// Next advances to the next record. It returns false at the end of the
// buffer or on the first error; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.err != nil || s.off >= len(s.buf) {
		return false
	}

	if s.opts.verify {
		if err := checkHeader(s.buf[s.off:]); err != nil {
			s.err = errors.Wrapf(err, "record %d at offset %d", s.count, s.off)
			return false
		}
	}

	rec, n, err := decodeLimited(s.buf[s.off:], s.opts.maxRecordSize)
	if err != nil {
		s.err = errors.Wrapf(err, "record %d at offset %d", s.count, s.off)
		return false
	}
	if n == 0 {
		s.err = errors.Wrapf(ErrTruncatedStream, "%d trailing bytes at offset %d", len(s.buf)-s.off, s.off)
		return false
	}
	if s.opts.verify {
		if err := rec.Validate(); err != nil {
			s.err = errors.Wrapf(err, "record %d at offset %d", s.count, s.off)
			return false
		}
	}

	s.rec = rec
	s.recOff = s.off
	s.off += n
	s.count++
	return true
}

// Record returns the current record.
func (s *Scanner) Record() *Record {
	return &s.rec
}

// Payload returns the current record's payload.
func (s *Scanner) Payload() []byte {
	return s.rec.Payload
}

// Offset returns the byte offset of the current record.
func (s *Scanner) Offset() int {
	return s.recOff
}

// Consumed returns the number of bytes covered by the records returned so
// far. After a truncation error it is the last clean record boundary.
func (s *Scanner) Consumed() int {
	return s.off
}

// Count returns the number of records returned so far.
func (s *Scanner) Count() int {
	return s.count
}

// Err returns the error that stopped the scan, or nil at a clean end.
func (s *Scanner) Err() error {
	return s.err
}

// DecodeAll returns every payload in buf in stream order without verifying
// checksums. It stops quietly at the first incomplete or implausible record.
// Like DecodeOne it accepts any record that is fully present in buf.
func DecodeAll(buf []byte) [][]byte {
	records := make([][]byte, 0)
	for off := 0; off < len(buf); {
		rec, n, err := decode(buf[off:], DefaultMaxRecordSize)
		if err != nil || n == 0 {
			break
		}
		records = append(records, rec.Payload)
		off += n
	}
	return records
}

// DecodeAllStrict treats buf as a complete stream. It verifies every record
// and returns the payloads decoded before the first failure together with
// ErrTruncatedStream, ErrSizeOverflow or ErrChecksumMismatch.
func DecodeAllStrict(buf []byte, opts ...Option) ([][]byte, error) {
	records := make([][]byte, 0)
	s := NewScanner(buf, opts...)
	for s.Next() {
		records = append(records, s.Payload())
	}
	return records, s.Err()
}

// SplitFunc returns a bufio.SplitFunc yielding one payload per record. At EOF
// any leftover bytes produce ErrTruncatedStream. The scanner's buffer must be
// large enough for the biggest record plus Overhead; see bufio.Scanner.Buffer.
func SplitFunc(opts ...Option) bufio.SplitFunc {
	o := buildOptions(opts)
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		if o.verify {
			if err := checkHeader(data); err != nil {
				return 0, nil, err
			}
		}

		rec, n, err := decodeLimited(data, o.maxRecordSize)
		if err != nil {
			return 0, nil, err
		}
		if n == 0 {
			if atEOF {
				return 0, nil, errors.Wrapf(ErrTruncatedStream, "%d trailing bytes", len(data))
			}
			return 0, nil, nil
		}
		if o.verify {
			if err := rec.Validate(); err != nil {
				return 0, nil, err
			}
		}
		return n, rec.Payload, nil
	}
}

// SplitRecords is a verifying bufio.SplitFunc with default limits.
var SplitRecords = SplitFunc()
