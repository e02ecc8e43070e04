package store

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/tfrecord/pkg/codec"
)

// Check scans a record file from the start and reports how much of it is
// intact. It never modifies the file. A missing file is reported as empty.
func Check(config LogReaderConfig) (*RecoveryResult, error) {
	startTime := time.Now()

	fileInfo, err := os.Stat(config.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &RecoveryResult{RecoveryTime: time.Since(startTime)}, nil
		}
		return nil, err
	}

	config.StartOffset = 0
	reader, err := NewLogReader(config)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	result := &RecoveryResult{
		FileSizeBefore: fileInfo.Size(),
	}

	for {
		record, err := reader.ReadNext()
		if err != nil {
			if err != io.EOF {
				if !isRecordError(err) {
					return nil, err
				}
				result.Cause = err
			}
			break
		}
		result.RecordsValidated++
		result.PayloadBytes += int64(len(record.Payload))
	}

	result.ValidSize = reader.Offset()
	result.FileSizeAfter = result.FileSizeBefore
	result.RecoveryTime = time.Since(startTime)

	reader.log.Debug().
		Int64("records", result.RecordsValidated).
		Int64("valid_size", result.ValidSize).
		Bool("clean", result.Clean()).
		Msg("record file checked")
	return result, nil
}

// Recover checks a record file and truncates it to the end of the last intact
// record. It holds the file's writer lock while doing so, so it fails with
// ErrLocked when a writer has the file open.
func Recover(config LogReaderConfig) (*RecoveryResult, error) {
	lock, err := acquireLock(config.FilePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	startTime := time.Now()
	result, err := Check(config)
	if err != nil {
		return nil, err
	}
	if result.Clean() {
		result.RecoveryTime = time.Since(startTime)
		return result, nil
	}

	file, err := os.OpenFile(config.FilePath, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := file.Truncate(result.ValidSize); err != nil {
		return nil, errors.Wrapf(err, "truncate %s to %d", config.FilePath, result.ValidSize)
	}
	if err := file.Sync(); err != nil {
		return nil, err
	}

	result.Truncated = true
	result.FileSizeAfter = result.ValidSize
	result.BytesTruncated = result.FileSizeBefore - result.ValidSize
	result.RecoveryTime = time.Since(startTime)

	log := loggerOrNop(config.Logger)
	log.Warn().
		Str("file", config.FilePath).
		Err(result.Cause).
		Int64("records_kept", result.RecordsValidated).
		Int64("bytes_truncated", result.BytesTruncated).
		Msg("record file truncated to last valid record")
	return result, nil
}

// isRecordError reports whether err describes the file's contents rather than
// a failure to read it.
func isRecordError(err error) bool {
	return errors.Is(err, ErrCorruption) || errors.Is(err, codec.ErrTruncatedStream)
}
