package store

import (
	"sync"

	"github.com/google/btree"
)

const indexDegree = 32

// IndexEntry locates one record in a record file
type IndexEntry struct {
	Ordinal int64 `json:"ordinal"` // Position of the record in the file, from 0
	Offset  int64 `json:"offset"`  // Byte offset of the record header
	Size    int64 `json:"size"`    // Encoded size including framing
}

// End returns the offset just past the record
func (e IndexEntry) End() int64 {
	return e.Offset + e.Size
}

// OffsetIndex maps record offsets and ordinals to index entries. It is safe
// for concurrent use.
type OffsetIndex struct {
	byOffset  *btree.BTreeG[IndexEntry]
	byOrdinal *btree.BTreeG[IndexEntry]
	mutex     sync.RWMutex
}

// NewOffsetIndex creates an empty offset index
func NewOffsetIndex() *OffsetIndex {
	return &OffsetIndex{
		byOffset: btree.NewG(indexDegree, func(a, b IndexEntry) bool {
			return a.Offset < b.Offset
		}),
		byOrdinal: btree.NewG(indexDegree, func(a, b IndexEntry) bool {
			return a.Ordinal < b.Ordinal
		}),
	}
}

// Put adds or replaces the entry at entry.Offset
func (idx *OffsetIndex) Put(entry IndexEntry) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	if old, ok := idx.byOffset.ReplaceOrInsert(entry); ok {
		idx.byOrdinal.Delete(old)
	}
	idx.byOrdinal.ReplaceOrInsert(entry)
}

// Append records a new entry after the last one and returns it
func (idx *OffsetIndex) Append(offset, size int64) IndexEntry {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	entry := IndexEntry{Offset: offset, Size: size}
	if last, ok := idx.byOrdinal.Max(); ok {
		entry.Ordinal = last.Ordinal + 1
	}
	idx.byOffset.ReplaceOrInsert(entry)
	idx.byOrdinal.ReplaceOrInsert(entry)
	return entry
}

// Get returns the entry for the record starting at offset
func (idx *OffsetIndex) Get(offset int64) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.byOffset.Get(IndexEntry{Offset: offset})
}

// At returns the entry for the record with the given ordinal
func (idx *OffsetIndex) At(ordinal int64) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.byOrdinal.Get(IndexEntry{Ordinal: ordinal})
}

// Floor returns the record containing offset, if any
func (idx *OffsetIndex) Floor(offset int64) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	var found IndexEntry
	var ok bool
	idx.byOffset.DescendLessOrEqual(IndexEntry{Offset: offset}, func(e IndexEntry) bool {
		found, ok = e, offset < e.End()
		return false
	})
	return found, ok
}

// Ascend calls fn for each entry at or after offset, in file order, until fn
// returns false.
func (idx *OffsetIndex) Ascend(from int64, fn func(IndexEntry) bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	idx.byOffset.AscendGreaterOrEqual(IndexEntry{Offset: from}, fn)
}

// Last returns the entry with the highest offset
func (idx *OffsetIndex) Last() (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.byOffset.Max()
}

// Len returns the number of indexed records
func (idx *OffsetIndex) Len() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.byOffset.Len()
}

// Clear removes all entries
func (idx *OffsetIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()
	idx.byOffset.Clear(false)
	idx.byOrdinal.Clear(false)
}

// BuildFromLog scans a record file from the start and indexes every intact
// record. It returns the error that stopped the scan, if the file does not end
// on a record boundary; the entries read before it are kept.
func (idx *OffsetIndex) BuildFromLog(reader *LogReader) error {
	idx.Clear()

	if err := reader.Seek(0); err != nil {
		return err
	}

	iterator := reader.Iterator()
	defer iterator.Close()

	for iterator.Next() {
		record := iterator.Record()
		idx.Append(iterator.Offset(), int64(record.Size()))
	}
	return iterator.Err()
}
