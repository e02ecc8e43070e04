package store

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ssargent/tfrecord/pkg/codec"
)

const (
	defaultBufferSize = 64 * 1024
	lockSuffix        = ".lock"
)

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string          // Path to the record file
	FsyncInterval time.Duration   // How often to fsync (0 = every write)
	BufferSize    int             // Write buffer size (0 = 64KiB)
	MaxRecordSize uint64          // Largest payload accepted (0 = codec default)
	Logger        *zerolog.Logger // Optional logger
}

// LogReaderConfig holds configuration for the log reader
type LogReaderConfig struct {
	FilePath      string          // Path to the record file
	StartOffset   int64           // Offset to start reading from
	SkipVerify    bool            // Do not verify checksums
	MaxRecordSize uint64          // Largest length field accepted (0 = codec default)
	Logger        *zerolog.Logger // Optional logger
}

func (c LogReaderConfig) codecOptions() []codec.Option {
	return []codec.Option{
		codec.WithVerify(!c.SkipVerify),
		codec.WithMaxRecordSize(c.MaxRecordSize),
	}
}

// RecordIterator provides streaming access to records
type RecordIterator interface {
	Next() bool
	Record() *codec.Record
	Offset() int64
	Err() error
	Close() error
}

// RecoveryResult describes a scan of a record file and any repair made
type RecoveryResult struct {
	RecordsValidated int64         `json:"records_validated"`
	PayloadBytes     int64         `json:"payload_bytes"`
	FileSizeBefore   int64         `json:"file_size_before"`
	FileSizeAfter    int64         `json:"file_size_after"`
	ValidSize        int64         `json:"valid_size"`
	BytesTruncated   int64         `json:"bytes_truncated"`
	Truncated        bool          `json:"truncated"`
	Cause            error         `json:"-"`
	RecoveryTime     time.Duration `json:"recovery_time"`
}

// Clean reports whether the file ended exactly on a record boundary.
func (r *RecoveryResult) Clean() bool {
	return r.Cause == nil
}

// Errors
var (
	ErrCorruption = errors.New("data corruption detected")
	ErrLocked     = errors.New("record file is locked by another writer")
	ErrClosed     = errors.New("record file is closed")
)

func loggerOrNop(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}
