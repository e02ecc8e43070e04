package storage

import (
	"bufio"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/tfrecord/pkg/codec"
)

// ErrNotFound is returned when no payload is staged under an id
var ErrNotFound = errors.New("staged payload not found")

// Storage stages payloads before they are framed into a record stream
type Storage interface {
	Create(data []byte) (*ksuid.KSUID, error)
	Read(id *ksuid.KSUID) ([]byte, error)
	Update(id *ksuid.KSUID, data []byte) error
	Delete(id *ksuid.KSUID) error
	List(limit int) ([]ksuid.KSUID, error)
	Count() (int, error)
	Export(w io.Writer) (int, error)
	Import(r io.Reader, opts ...codec.Option) (int, error)
	Clear() error
	Close() error
}

// DefaultStorage keeps staged payloads in pebble, keyed by KSUID so that
// iteration order is staging order.
type DefaultStorage struct {
	db    *pebble.DB
	mutex sync.Mutex
	last  ksuid.KSUID
}

func NewDefaultStorage(path string) (*DefaultStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open staging area %s", path)
	}
	s := &DefaultStorage{db: db}

	// Resume the id sequence after the newest staged payload.
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if iter.Last() {
		if id, err := ksuid.FromBytes(iter.Key()); err == nil {
			s.last = id
		}
	}
	if err := iter.Close(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// nextID returns an id greater than every id handed out before, even within
// the same second.
func (s *DefaultStorage) nextID() ksuid.KSUID {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := ksuid.New()
	if ksuid.Compare(id, s.last) <= 0 {
		id = s.last.Next()
	}
	s.last = id
	return id
}

func (s *DefaultStorage) Create(data []byte) (*ksuid.KSUID, error) {
	id := s.nextID()
	if err := s.db.Set(id.Bytes(), data, pebble.NoSync); err != nil {
		return nil, err
	}

	return &id, nil
}

func (s *DefaultStorage) Read(id *ksuid.KSUID) ([]byte, error) {
	data, closer, err := s.db.Get(id.Bytes())
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "%s", id)
		}
		return nil, err
	}
	defer closer.Close()

	// data is only valid until the closer runs.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *DefaultStorage) Update(id *ksuid.KSUID, data []byte) error {
	_, closer, err := s.db.Get(id.Bytes())
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "%s", id)
		}
		return err
	}
	_ = closer.Close()

	return s.db.Set(id.Bytes(), data, pebble.NoSync)
}

func (s *DefaultStorage) Delete(id *ksuid.KSUID) error {
	return s.db.Delete(id.Bytes(), pebble.NoSync)
}

// List returns up to limit staged ids, oldest first. A limit of zero or less
// lists every id.
func (s *DefaultStorage) List(limit int) ([]ksuid.KSUID, error) {
	ids := make([]ksuid.KSUID, 0)
	err := s.scan(func(key, _ []byte) (bool, error) {
		id, err := ksuid.FromBytes(key)
		if err != nil {
			return false, errors.Wrapf(err, "staged key %x", key)
		}
		ids = append(ids, id)
		return limit <= 0 || len(ids) < limit, nil
	})
	return ids, err
}

// Count returns the number of staged payloads
func (s *DefaultStorage) Count() (int, error) {
	count := 0
	err := s.scan(func(_, _ []byte) (bool, error) {
		count++
		return true, nil
	})
	return count, err
}

// Export writes every staged payload to w as a record stream, oldest first,
// and returns the number of records written.
func (s *DefaultStorage) Export(w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	var frame []byte
	count := 0

	err := s.scan(func(_, value []byte) (bool, error) {
		frame = codec.AppendRecord(frame[:0], value)
		if _, err := bw.Write(frame); err != nil {
			return false, err
		}
		count++
		return true, nil
	})
	if err != nil {
		return count, err
	}
	return count, bw.Flush()
}

// Import stages every record of the stream read from r and returns how many
// were staged. Checksums are verified unless codec.WithVerify(false) is
// passed. Records before a failure stay staged.
func (s *DefaultStorage) Import(r io.Reader, opts ...codec.Option) (int, error) {
	limit := codec.NewRecordCodec(opts...).MaxRecordSize()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), int(limit)+codec.Overhead)
	sc.Split(codec.SplitFunc(opts...))

	batch := s.db.NewBatch()
	defer batch.Close()

	count := 0
	for sc.Scan() {
		id := s.nextID()
		if err := batch.Set(id.Bytes(), sc.Bytes(), nil); err != nil {
			return 0, err
		}
		count++
	}
	scanErr := sc.Err()

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	if scanErr != nil {
		return count, errors.Wrapf(scanErr, "import stopped after %d records", count)
	}
	return count, nil
}

// Clear removes every staged payload
func (s *DefaultStorage) Clear() error {
	ids, err := s.List(0)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, id := range ids {
		if err := batch.Delete(id.Bytes(), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *DefaultStorage) Close() error {
	return s.db.Close()
}

func (s *DefaultStorage) scan(fn func(key, value []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}

	for valid := iter.First(); valid; valid = iter.Next() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			_ = iter.Close()
			return err
		}
		if !more {
			break
		}
	}
	return iter.Close()
}
