package store

import (
	"bufio"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ssargent/tfrecord/pkg/codec"
)

// Records above this size are checked against the file size before their
// buffer is allocated.
const largeRecordSize = 1 << 20

// LogReader provides sequential and random access to records in a file
type LogReader struct {
	file   *os.File
	reader *bufio.Reader
	codec  *codec.RecordCodec
	log    zerolog.Logger
	offset int64
	config LogReaderConfig
}

// NewLogReader opens the record file for reading
func NewLogReader(config LogReaderConfig) (*LogReader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}

	if config.StartOffset > 0 {
		if _, err := file.Seek(config.StartOffset, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return &LogReader{
		file:   file,
		reader: bufio.NewReaderSize(file, defaultBufferSize),
		codec:  codec.NewRecordCodec(config.codecOptions()...),
		log:    loggerOrNop(config.Logger).With().Str("file", config.FilePath).Logger(),
		offset: config.StartOffset,
		config: config,
	}, nil
}

// ReadNext reads the record at the current offset. It returns io.EOF when the
// file ends exactly on a record boundary and an error wrapping
// codec.ErrTruncatedStream when it ends inside a record. Checksum and length
// failures are also marked ErrCorruption. The offset only advances past
// records that were read successfully.
func (r *LogReader) ReadNext() (*codec.Record, error) {
	rec, n, err := r.readRecord(r.reader, r.offset)
	if err != nil {
		if err != io.EOF {
			if seekErr := r.Seek(r.offset); seekErr != nil {
				return nil, errors.CombineErrors(err, seekErr)
			}
		}
		return nil, err
	}
	r.offset += int64(n)
	return rec, nil
}

// ReadAt reads the record starting at offset without moving the sequential
// read position.
func (r *LogReader) ReadAt(offset int64) (*codec.Record, error) {
	section := io.NewSectionReader(r.file, offset, math.MaxInt64-offset)
	rec, _, err := r.readRecord(section, offset)
	return rec, err
}

func (r *LogReader) readRecord(src io.Reader, offset int64) (*codec.Record, int, error) {
	header := make([]byte, codec.HeaderSize)
	n, err := io.ReadFull(src, header)
	switch {
	case err == io.EOF:
		return nil, 0, io.EOF
	case err == io.ErrUnexpectedEOF:
		return nil, 0, errors.Wrapf(codec.ErrTruncatedStream, "offset %d: %d of %d header bytes", offset, n, codec.HeaderSize)
	case err != nil:
		return nil, 0, err
	}

	length, err := r.codec.ParseHeader(header)
	if err != nil {
		return nil, 0, r.corruption(err, offset)
	}

	total := codec.EncodedSize(int(length))
	if length > largeRecordSize {
		if err := r.checkAvailable(offset, int64(total)); err != nil {
			return nil, 0, err
		}
	}

	buf := make([]byte, total)
	copy(buf, header)
	if n, err := io.ReadFull(src, buf[codec.HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, errors.Wrapf(codec.ErrTruncatedStream, "offset %d: %d of %d record bytes",
				offset, codec.HeaderSize+n, total)
		}
		return nil, 0, err
	}

	rec, consumed, err := r.codec.Decode(buf)
	if err != nil {
		return nil, 0, r.corruption(err, offset)
	}
	return rec, consumed, nil
}

func (r *LogReader) checkAvailable(offset, total int64) error {
	stat, err := r.file.Stat()
	if err != nil {
		return err
	}
	if offset+total > stat.Size() {
		return errors.Wrapf(codec.ErrTruncatedStream, "offset %d: record of %d bytes exceeds file size %d",
			offset, total, stat.Size())
	}
	return nil
}

func (r *LogReader) corruption(err error, offset int64) error {
	err = errors.Wrapf(err, "record at offset %d", offset)
	if errors.Is(err, codec.ErrChecksumMismatch) || errors.Is(err, codec.ErrSizeOverflow) {
		r.log.Warn().Err(err).Int64("offset", offset).Msg("corrupt record")
		return errors.Mark(err, ErrCorruption)
	}
	return err
}

// Seek sets the sequential read offset
func (r *LogReader) Seek(offset int64) error {
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.reader.Reset(r.file)
	r.offset = offset
	return nil
}

// Offset returns the current read offset
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator starting at the current offset
func (r *LogReader) Iterator() RecordIterator {
	return &logRecordIterator{reader: r}
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}

// logRecordIterator implements RecordIterator for streaming access
type logRecordIterator struct {
	reader *LogReader
	record *codec.Record
	offset int64
	err    error
	done   bool
}

func (it *logRecordIterator) Next() bool {
	if it.done {
		return false
	}
	offset := it.reader.Offset()
	rec, err := it.reader.ReadNext()
	if err != nil {
		it.done = true
		it.record = nil
		if err != io.EOF {
			it.err = err
		}
		return false
	}
	it.record = rec
	it.offset = offset
	return true
}

func (it *logRecordIterator) Record() *codec.Record {
	return it.record
}

// Offset returns the file offset of the current record
func (it *logRecordIterator) Offset() int64 {
	return it.offset
}

// Err returns the error that stopped iteration, nil at a clean end of file
func (it *logRecordIterator) Err() error {
	return it.err
}

func (it *logRecordIterator) Close() error {
	// The reader is owned by the caller
	return nil
}
