package lsmkv

import (
	"os"
	"sort"
	"sync"
	"sync/atomic"
)

// SSTableReader is an immutable, opened-read-only on-disk table (C5). It
// is shared across the level shard that owns it, the background worker,
// and any in-flight compaction merge; refCount tracks how many of those
// still hold it so the backing file is only unlinked once nothing does.
type SSTableReader struct {
	path      string
	file      *os.File
	fileMu    sync.Mutex // guards seek+read pairs on the shared handle
	blockSize int

	blockIndex []indexBlock
	entryIndex []entryIndexRecord

	refCount     int32
	markedRemove int32
}

// OpenSSTableReader opens path read-only and parses its trailer, entry
// index and block index, per spec.md §4.6: trailing entry_index_count
// first, then entry-index, then block_index_count/size, then block-index.
func OpenSSTableReader(path string, blockSize int) (*SSTableReader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0444)
	if err != nil {
		return nil, wrapIo(err, "sstable reader: open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapIo(err, "sstable reader: stat %s", path)
	}
	size := info.Size()

	r := &SSTableReader{
		path:      path,
		file:      f,
		blockSize: blockSize,
		refCount:  1,
	}

	if err := r.loadTrailers(size); err != nil {
		f.Close()
		return nil, err
	}
	if len(r.blockIndex) < 1 {
		f.Close()
		return nil, wrapCorrupt("sstable reader: %s has no data blocks", path)
	}
	for i := 1; i < len(r.blockIndex); i++ {
		if r.blockIndex[i-1].firstKey.Compare(r.blockIndex[i].firstKey) >= 0 {
			f.Close()
			return nil, wrapCorrupt("sstable reader: %s block first-keys not strictly increasing", path)
		}
	}

	return r, nil
}

func (r *SSTableReader) loadTrailers(fileSize int64) error {
	trailer := make([]byte, uint32Size)

	if _, err := r.file.ReadAt(trailer, fileSize-int64(uint32Size)); err != nil {
		return wrapIo(err, "sstable reader: read entry index count")
	}
	entryIndexCount, err := getU32(trailer)
	if err != nil {
		return err
	}

	entryIndexBytes := int64(entryIndexCount) * (2 * int64(uint32Size))
	entryIndexStart := fileSize - int64(uint32Size) - entryIndexBytes
	if entryIndexStart < 0 {
		return wrapCorrupt("sstable reader: entry index count %d overruns file", entryIndexCount)
	}

	if entryIndexCount > 0 {
		buf := make([]byte, entryIndexBytes)
		if _, err := r.file.ReadAt(buf, entryIndexStart); err != nil {
			return wrapIo(err, "sstable reader: read entry index")
		}
		r.entryIndex = make([]entryIndexRecord, entryIndexCount)
		for i := range r.entryIndex {
			off, err := getU32(buf[i*2*uint32Size:])
			if err != nil {
				return err
			}
			sz, err := getU32(buf[i*2*uint32Size+uint32Size:])
			if err != nil {
				return err
			}
			r.entryIndex[i] = entryIndexRecord{offset: off, size: sz}
		}
	}

	header := make([]byte, 2*uint32Size)
	headerOffset := entryIndexStart - 2*int64(uint32Size)
	if headerOffset < 0 {
		return wrapCorrupt("sstable reader: block index header overruns file")
	}
	if _, err := r.file.ReadAt(header, headerOffset); err != nil {
		return wrapIo(err, "sstable reader: read block index header")
	}
	blockIndexSize, err := getU32(header)
	if err != nil {
		return err
	}
	blockIndexCount, err := getU32(header[uint32Size:])
	if err != nil {
		return err
	}

	blockIndexStart := headerOffset - int64(blockIndexSize)
	if blockIndexStart < 0 {
		return wrapCorrupt("sstable reader: block index size %d overruns file", blockIndexSize)
	}
	raw := make([]byte, blockIndexSize)
	if _, err := r.file.ReadAt(raw, blockIndexStart); err != nil {
		return wrapIo(err, "sstable reader: read block index")
	}

	r.blockIndex = make([]indexBlock, 0, blockIndexCount)
	pos := 0
	for i := uint32(0); i < blockIndexCount; i++ {
		if pos+3*uint32Size > len(raw) {
			return wrapCorrupt("sstable reader: truncated block index record %d", i)
		}
		blockOffset, err := getU32(raw[pos:])
		if err != nil {
			return err
		}
		blockSz, err := getU32(raw[pos+uint32Size:])
		if err != nil {
			return err
		}
		keyLen, err := getU32(raw[pos+2*uint32Size:])
		if err != nil {
			return err
		}
		pos += 3 * uint32Size
		if pos+int(keyLen) > len(raw) {
			return wrapCorrupt("sstable reader: truncated first key in block index record %d", i)
		}
		key := make(Field, keyLen)
		copy(key, raw[pos:pos+int(keyLen)])
		pos += int(keyLen)

		r.blockIndex = append(r.blockIndex, indexBlock{
			blockOffset: blockOffset,
			blockSize:   blockSz,
			firstKey:    key,
		})
	}

	return nil
}

// Acquire bumps the reference count; callers that intend to hold the
// reader beyond the scope that handed it to them (e.g. a compaction
// merge) must Acquire before releasing whatever lock guaranteed it was
// alive, and Release when done.
func (r *SSTableReader) Acquire() {
	atomic.AddInt32(&r.refCount, 1)
}

// Release drops a reference. Once the count reaches zero and the reader
// has been MarkRemoved, the backing file is closed and unlinked.
func (r *SSTableReader) Release() {
	if atomic.AddInt32(&r.refCount, -1) == 0 {
		r.disposeIfMarked()
	}
}

// MarkRemoved releases the shard's own reference and flags the reader for
// deletion once every other holder has released it too.
func (r *SSTableReader) MarkRemoved() {
	atomic.StoreInt32(&r.markedRemove, 1)
	r.Release()
}

func (r *SSTableReader) disposeIfMarked() {
	if atomic.LoadInt32(&r.markedRemove) != 1 {
		return
	}
	r.file.Close()
	os.Remove(r.path)
}

// Path returns the backing file path.
func (r *SSTableReader) Path() string {
	return r.path
}

// CountEntries returns the total number of entries stored in the file.
func (r *SSTableReader) CountEntries() int {
	return len(r.entryIndex)
}

// findBlock returns the index of the rightmost block whose first key is
// <= key, or -1 if key is smaller than every block's first key.
func (r *SSTableReader) findBlock(key Field) int {
	idx := sort.Search(len(r.blockIndex), func(i int) bool {
		return r.blockIndex[i].firstKey.Compare(key) > 0
	})
	return idx - 1
}

// Read performs a point lookup: binary search over block first-keys,
// load the candidate block, binary search within it.
func (r *SSTableReader) Read(key Field) (Field, bool, error) {
	i := r.findBlock(key)
	if i < 0 {
		return nil, false, nil
	}
	block, err := r.loadBlock(i)
	if err != nil {
		return nil, false, err
	}
	v, ok := block.getByKey(key)
	return v, ok, nil
}

func (r *SSTableReader) loadBlock(i int) (*dataBlock, error) {
	ib := r.blockIndex[i]
	r.fileMu.Lock()
	defer r.fileMu.Unlock()
	return loadDataBlock(r.file, int64(ib.blockOffset), int(ib.blockSize))
}

// sstableIterator yields the reader's entries in file order (== ascending
// key order), one data block at a time. This is the input to k-way merge
// compaction (C8).
type sstableIterator struct {
	reader   *SSTableReader
	blockIdx int
	block    *dataBlock
	entryIdx int
	err      error
}

// BlockIter returns an iterator over the reader's entries in file order.
func (r *SSTableReader) BlockIter() *sstableIterator {
	return &sstableIterator{reader: r}
}

// Next returns the next entry, or ok=false when the table is exhausted or
// an error was encountered (check Err in that case).
func (it *sstableIterator) Next() (Entry, bool) {
	if it.err != nil {
		return Entry{}, false
	}
	for {
		if it.block == nil {
			if it.blockIdx >= len(it.reader.blockIndex) {
				return Entry{}, false
			}
			block, err := it.reader.loadBlock(it.blockIdx)
			if err != nil {
				it.err = err
				return Entry{}, false
			}
			it.block = block
			it.entryIdx = 0
		}
		if it.entryIdx < len(it.block.entries) {
			e := it.block.entries[it.entryIdx]
			it.entryIdx++
			return e, true
		}
		it.block = nil
		it.blockIdx++
	}
}

// Err returns the first I/O or corruption error encountered by Next, if any.
func (it *sstableIterator) Err() error {
	return it.err
}
