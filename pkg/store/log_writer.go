package store

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/ssargent/tfrecord/pkg/codec"
)

// LogWriter handles append-only writes of records to a single file
type LogWriter struct {
	file       *os.File
	writer     *bufio.Writer
	lock       *flock.Flock
	codec      *codec.RecordCodec
	fsyncTimer *time.Timer
	config     LogWriterConfig
	log        zerolog.Logger
	mutex      sync.Mutex
	offset     int64 // Current write offset
	records    int64 // Records appended by this writer
	closed     bool
}

// NewLogWriter opens (or creates) the record file for appending. It holds an
// exclusive lock on the file until Close.
func NewLogWriter(config LogWriterConfig) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	lock, err := acquireLock(config.FilePath)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, err
	}

	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	writer := &LogWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
		lock:   lock,
		codec:  codec.NewRecordCodec(codec.WithMaxRecordSize(config.MaxRecordSize)),
		config: config,
		log:    loggerOrNop(config.Logger).With().Str("file", config.FilePath).Logger(),
		offset: stat.Size(),
	}

	if config.FsyncInterval > 0 {
		writer.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			writer.mutex.Lock()
			defer writer.mutex.Unlock()
			if writer.closed {
				return
			}
			if err := writer.sync(); err != nil {
				writer.log.Error().Err(err).Msg("background fsync failed")
			}
		})
	}

	writer.log.Debug().Int64("offset", writer.offset).Msg("record file opened for append")
	return writer, nil
}

// Append frames payload, appends it to the file and returns the offset at
// which the record starts.
func (w *LogWriter) Append(payload []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	data, err := w.codec.Encode(payload)
	if err != nil {
		return 0, err
	}

	n, err := w.writer.Write(data)
	if err != nil {
		return 0, errors.Wrapf(err, "append record at offset %d", w.offset)
	}

	recordOffset := w.offset
	w.offset += int64(n)
	w.records++

	if w.config.FsyncInterval == 0 {
		if err := w.sync(); err != nil {
			return 0, err
		}
	} else if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return recordOffset, nil
}

// Sync flushes buffered records and fsyncs the file
func (w *LogWriter) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.sync()
}

// Flush hands buffered records to the operating system without an fsync
func (w *LogWriter) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.writer.Flush()
}

// Truncate discards every record in the file, including buffered ones, while
// the writer still holds the lock
func (w *LogWriter) Truncate() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return ErrClosed
	}

	w.writer.Reset(w.file)
	if err := w.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate record file")
	}
	if err := w.file.Sync(); err != nil {
		return err
	}

	w.log.Debug().Int64("offset", w.offset).Msg("record file truncated")
	w.offset = 0
	w.records = 0
	return nil
}

func (w *LogWriter) sync() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close syncs outstanding data, closes the file and releases the lock
func (w *LogWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	syncErr := w.sync()
	closeErr := w.file.Close()
	unlockErr := w.lock.Unlock()

	w.log.Debug().Int64("offset", w.offset).Int64("records", w.records).Msg("record file closed")
	return errors.CombineErrors(syncErr, errors.CombineErrors(closeErr, unlockErr))
}

// Size returns the current size of the file including buffered records
func (w *LogWriter) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Records returns the number of records appended through this writer
func (w *LogWriter) Records() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.records
}

// Path returns the file path
func (w *LogWriter) Path() string {
	return w.config.FilePath
}
