// Package codec frames opaque payloads as TFRecord-compatible records and
// parses record streams back into payloads.
//
// # Record Format
//
// Each record is laid out as:
//
//	[Length(8)][LengthCRC(4)][Payload(Length)][PayloadCRC(4)]
//
// Fields:
//   - Length: payload length as an unsigned 64-bit integer (little-endian)
//   - LengthCRC: masked CRC32C of the 8 Length bytes (little-endian)
//   - Payload: the payload bytes, copied verbatim
//   - PayloadCRC: masked CRC32C of the payload (little-endian)
//
// The total record size is 16 bytes of overhead plus the payload length. A
// stream is a plain concatenation of records with no header, footer or
// separator. See package crc for the masking scheme.
//
// # Decoding Modes
//
// DecodeOne and DecodeAll are permissive: they trust the length field and do
// not look at either checksum. A buffer that ends before a complete record
// yields "no record" rather than an error, which is what a caller reading a
// stream that is still growing wants.
//
// RecordCodec, Scanner and DecodeAllStrict verify checksums by default and
// treat the buffer as complete, so leftover bytes are reported as
// ErrTruncatedStream.
//
// Every decoder rejects length fields larger than the configured maximum
// (DefaultMaxRecordSize unless overridden) with ErrSizeOverflow before any
// slicing or allocation takes place.
//
// # Usage
//
//	encoded := codec.Encode([]byte("payload"))
//
//	payload, n, err := codec.DecodeOne(encoded)
//	if err != nil {
//	    return err // length field is implausible
//	}
//	if n == 0 {
//	    // need more bytes
//	}
//
//	// Strict iteration over a complete buffer
//	s := codec.NewScanner(stream)
//	for s.Next() {
//	    handle(s.Payload())
//	}
//	if err := s.Err(); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// All package functions and RecordCodec methods are safe for concurrent use.
// A Scanner belongs to a single goroutine. Decoded payloads alias the input
// buffer; copy them if the buffer is reused.
package codec
