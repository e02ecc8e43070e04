package codec

import "github.com/cockroachdb/errors"

type options struct {
	verify        bool
	maxRecordSize uint64
}

func defaultOptions() options {
	return options{
		verify:        true,
		maxRecordSize: DefaultMaxRecordSize,
	}
}

// Option configures a RecordCodec, Scanner or split function.
type Option func(*options)

// WithVerify turns checksum verification on or off. It is on by default.
func WithVerify(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

// WithMaxRecordSize sets the largest payload length accepted. Zero keeps the
// default.
func WithMaxRecordSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecordSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RecordCodec encodes and decodes single records under a fixed policy.
// It is immutable and safe for concurrent use.
type RecordCodec struct {
	opts options
}

// NewRecordCodec creates a codec. Without options it verifies checksums and
// enforces DefaultMaxRecordSize.
func NewRecordCodec(opts ...Option) *RecordCodec {
	return &RecordCodec{opts: buildOptions(opts)}
}

// Verify reports whether Decode verifies checksums.
func (c *RecordCodec) Verify() bool {
	return c.opts.verify
}

// MaxRecordSize returns the largest payload length the codec accepts.
func (c *RecordCodec) MaxRecordSize() uint64 {
	return c.opts.maxRecordSize
}

// Encode frames payload, refusing payloads above the configured maximum.
func (c *RecordCodec) Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > c.opts.maxRecordSize {
		return nil, errors.Wrapf(ErrSizeOverflow, "payload of %d bytes, limit %d", len(payload), c.opts.maxRecordSize)
	}
	return Encode(payload), nil
}

// Decode decodes the first record in buf and returns it with the number of
// bytes consumed. An incomplete record returns ErrInsufficientData. With
// verification on, a bad length checksum is reported as soon as the header is
// available, before the length is trusted.
func (c *RecordCodec) Decode(buf []byte) (*Record, int, error) {
	if c.opts.verify {
		if _, err := c.ParseHeader(buf); err != nil && !errors.Is(err, ErrInsufficientData) {
			return nil, 0, err
		}
	}

	rec, n, err := decodeLimited(buf, c.opts.maxRecordSize)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, 0, errors.Wrapf(ErrInsufficientData, "have %d bytes", len(buf))
	}

	if c.opts.verify {
		if err := rec.Validate(); err != nil {
			return nil, 0, err
		}
	}
	return &rec, n, nil
}

// ParseHeader reads the length field from a record header. With verification
// on the header must be HeaderSize bytes and its checksum must match.
func (c *RecordCodec) ParseHeader(hdr []byte) (uint64, error) {
	if c.opts.verify {
		if len(hdr) < HeaderSize {
			return 0, errors.Wrapf(ErrInsufficientData, "need %d header bytes, have %d", HeaderSize, len(hdr))
		}
		if err := checkHeader(hdr); err != nil {
			return 0, err
		}
	}
	return ParseLength(hdr, c.opts.maxRecordSize)
}
