package codec

import "github.com/cockroachdb/errors"

var (
	// ErrInsufficientData means the buffer does not yet hold a complete
	// record. More bytes may still arrive.
	ErrInsufficientData = errors.New("insufficient data for record")

	// ErrTruncatedStream means the caller declared the input complete but
	// bytes remain that do not form a whole record.
	ErrTruncatedStream = errors.New("truncated record stream")

	// ErrChecksumMismatch means a stored checksum disagrees with the one
	// recomputed from the record.
	ErrChecksumMismatch = errors.New("record checksum mismatch")

	// ErrSizeOverflow means a length field is larger than the decoder is
	// willing to accept.
	ErrSizeOverflow = errors.New("record length exceeds limit")
)

// ErrorKind names the codec failure behind err: "checksum_mismatch",
// "truncated_stream", "size_overflow" or "insufficient_data". It returns ""
// for errors from outside the codec.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrTruncatedStream):
		return "truncated_stream"
	case errors.Is(err, ErrSizeOverflow):
		return "size_overflow"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	default:
		return ""
	}
}
