package store

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ssargent/tfrecord/pkg/codec"
)

// StreamConfig holds configuration for a record stream
type StreamConfig struct {
	FilePath      string          // Path to the record file
	FsyncInterval time.Duration   // How often to fsync (0 = every write)
	BufferSize    int             // Write buffer size (0 = 64KiB)
	MaxRecordSize uint64          // Largest payload accepted (0 = codec default)
	SkipVerify    bool            // Do not verify checksums on read
	Logger        *zerolog.Logger // Optional logger
}

// StreamStats holds statistics about an open stream
type StreamStats struct {
	Records  int   `json:"records"`
	DataSize int64 `json:"data_size"`
}

// Stream is an indexed, append-only record file. Open repairs a torn tail,
// indexes the existing records and takes the writer lock.
type Stream struct {
	config StreamConfig
	writer *LogWriter
	reader *LogReader
	index  *OffsetIndex
	log    zerolog.Logger
	mutex  sync.Mutex
	isOpen bool
}

// Stream errors
var (
	ErrNotOpen        = errors.New("stream is not open")
	ErrRecordNotFound = errors.New("no record at offset")
)

// NewStream creates a stream for the given file. Call Open before use.
func NewStream(config StreamConfig) *Stream {
	return &Stream{
		config: config,
		index:  NewOffsetIndex(),
		log:    loggerOrNop(config.Logger).With().Str("stream", config.FilePath).Logger(),
	}
}

func (s *Stream) readerConfig() LogReaderConfig {
	return LogReaderConfig{
		FilePath:      s.config.FilePath,
		SkipVerify:    s.config.SkipVerify,
		MaxRecordSize: s.config.MaxRecordSize,
		Logger:        s.config.Logger,
	}
}

// Open recovers the file, builds the offset index and opens the stream for
// appends. Calling Open on an open stream returns an empty result.
func (s *Stream) Open() (*RecoveryResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return &RecoveryResult{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.config.FilePath), 0750); err != nil {
		return nil, err
	}

	result, err := Recover(s.readerConfig())
	if err != nil {
		return nil, err
	}

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      s.config.FilePath,
		FsyncInterval: s.config.FsyncInterval,
		BufferSize:    s.config.BufferSize,
		MaxRecordSize: s.config.MaxRecordSize,
		Logger:        s.config.Logger,
	})
	if err != nil {
		return nil, err
	}

	reader, err := NewLogReader(s.readerConfig())
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	if err := s.index.BuildFromLog(reader); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, err
	}

	s.writer = writer
	s.reader = reader
	s.isOpen = true

	s.log.Info().
		Int("records", s.index.Len()).
		Int64("size", writer.Size()).
		Bool("repaired", result.Truncated).
		Msg("stream opened")
	return result, nil
}

// Append writes payload as a new record and returns its index entry
func (s *Stream) Append(payload []byte) (IndexEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return IndexEntry{}, ErrNotOpen
	}

	offset, err := s.writer.Append(payload)
	if err != nil {
		return IndexEntry{}, err
	}
	return s.index.Append(offset, int64(codec.EncodedSize(len(payload)))), nil
}

// Read returns the record starting at offset. Offsets that do not start a
// known record return ErrRecordNotFound.
func (s *Stream) Read(offset int64) (*codec.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrNotOpen
	}

	if _, ok := s.index.Get(offset); !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "offset %d", offset)
	}

	// Buffered records are not visible to the reader yet.
	if err := s.writer.Flush(); err != nil {
		return nil, err
	}
	return s.reader.ReadAt(offset)
}

// At returns the record with the given ordinal
func (s *Stream) At(ordinal int64) (*codec.Record, error) {
	entry, ok := s.index.At(ordinal)
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "ordinal %d", ordinal)
	}
	return s.Read(entry.Offset)
}

// Entries returns up to limit index entries starting at offset from. A
// limit of zero or less returns every remaining entry.
func (s *Stream) Entries(from int64, limit int) []IndexEntry {
	entries := make([]IndexEntry, 0)
	s.index.Ascend(from, func(e IndexEntry) bool {
		entries = append(entries, e)
		return limit <= 0 || len(entries) < limit
	})
	return entries
}

// Sync flushes buffered records to disk
func (s *Stream) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return ErrNotOpen
	}
	return s.writer.Sync()
}

// Stats returns stream statistics
func (s *Stream) Stats() *StreamStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return &StreamStats{}
	}

	return &StreamStats{
		Records:  s.index.Len(),
		DataSize: s.writer.Size(),
	}
}

// Path returns the record file path
func (s *Stream) Path() string {
	return s.config.FilePath
}

// Close flushes and closes the stream
func (s *Stream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil
	}
	s.isOpen = false

	writerErr := s.writer.Close()
	readerErr := s.reader.Close()
	s.index.Clear()

	s.log.Info().Msg("stream closed")
	return errors.CombineErrors(writerErr, readerErr)
}
