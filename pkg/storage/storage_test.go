package storage

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tfrecord/pkg/codec"
)

func newTestStorage(t *testing.T) *DefaultStorage {
	t.Helper()
	s, err := NewDefaultStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDefaultStorage_CRUD(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.Create([]byte("payload"))
	require.NoError(t, err)
	require.NotNil(t, id)

	data, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, s.Update(id, []byte("updated")))
	data, err = s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), data)

	require.NoError(t, s.Delete(id))
	_, err = s.Read(id)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestDefaultStorage_UpdateMissing(t *testing.T) {
	s := newTestStorage(t)

	id := ksuid.New()
	err := s.Update(&id, []byte("x"))
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDefaultStorage_IDsAreOrdered(t *testing.T) {
	s := newTestStorage(t)

	var created []ksuid.KSUID
	for i := 0; i < 50; i++ {
		id, err := s.Create([]byte{byte(i)})
		require.NoError(t, err)
		created = append(created, *id)
	}

	listed, err := s.List(0)
	require.NoError(t, err)
	assert.Equal(t, created, listed)

	firstTen, err := s.List(10)
	require.NoError(t, err)
	assert.Equal(t, created[:10], firstTen)
}

func TestDefaultStorage_ExportProducesRecordStream(t *testing.T) {
	s := newTestStorage(t)

	payloads := [][]byte{[]byte("alpha"), {}, []byte("gamma")}
	for _, p := range payloads {
		_, err := s.Create(p)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := s.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := codec.DecodeAllStrict(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, payloads, records)
}

func TestDefaultStorage_Import(t *testing.T) {
	s := newTestStorage(t)

	var stream []byte
	var payloads [][]byte
	for i := 0; i < 20; i++ {
		p := []byte(fmt.Sprintf("record-%02d", i))
		payloads = append(payloads, p)
		stream = codec.AppendRecord(stream, p)
	}

	n, err := s.Import(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	var out bytes.Buffer
	_, err = s.Export(&out)
	require.NoError(t, err)
	assert.Equal(t, stream, out.Bytes())

	ids, err := s.List(1)
	require.NoError(t, err)
	data, err := s.Read(&ids[0])
	require.NoError(t, err)
	assert.Equal(t, payloads[0], data)
}

func TestDefaultStorage_ImportStopsAtCorruption(t *testing.T) {
	s := newTestStorage(t)

	stream := codec.AppendRecord(nil, []byte("good"))
	stream = codec.AppendRecord(stream, []byte("bad"))
	stream[len(stream)-1] ^= 0xFF

	n, err := s.Import(bytes.NewReader(stream))
	assert.True(t, errors.Is(err, codec.ErrChecksumMismatch), "got %v", err)
	assert.Equal(t, 1, n)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.Clear())
	n, err = s.Import(bytes.NewReader(stream), codec.WithVerify(false))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDefaultStorage_ImportTruncatedStream(t *testing.T) {
	s := newTestStorage(t)

	stream := codec.AppendRecord(nil, []byte("whole"))
	stream = append(stream, codec.Encode([]byte("torn"))[:10]...)

	n, err := s.Import(bytes.NewReader(stream))
	assert.True(t, errors.Is(err, codec.ErrTruncatedStream), "got %v", err)
	assert.Equal(t, 1, n)
}

func TestDefaultStorage_Clear(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 5; i++ {
		_, err := s.Create([]byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, s.Clear())

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDefaultStorage_ReopenKeepsOrdering(t *testing.T) {
	dir := t.TempDir()

	s, err := NewDefaultStorage(dir)
	require.NoError(t, err)
	first, err := s.Create([]byte("before"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewDefaultStorage(dir)
	require.NoError(t, err)
	defer s.Close()

	second, err := s.Create([]byte("after"))
	require.NoError(t, err)
	assert.Equal(t, 1, ksuid.Compare(*second, *first))

	var out bytes.Buffer
	_, err = s.Export(&out)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("before"), []byte("after")}, codec.DecodeAll(out.Bytes()))
}
