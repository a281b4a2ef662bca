package lsmkv

import "io"

// defaultDataBlockSize is the fallback fixed SSTable block size (C4) when
// Config.DataBlockSize is left at zero.
const defaultDataBlockSize = 8 * 1024

// dataBlockMeta is the trailing metadata tail of a data block: a packed
// array of entry offsets (insertion order = ascending key order) followed
// by the entry count, both little-endian u32.
type dataBlockMeta struct {
	offsets []uint32
}

func (m *dataBlockMeta) size() int {
	return uint32Size + uint32Size*len(m.offsets)
}

func (m *dataBlockMeta) sizeWithEntry() int {
	return m.size() + uint32Size
}

func (m *dataBlockMeta) append(offset uint32) {
	m.offsets = append(m.offsets, offset)
}

func (m *dataBlockMeta) reset() {
	m.offsets = m.offsets[:0]
}

func (m *dataBlockMeta) serializeTo(buf []byte) error {
	offset := 0
	for _, o := range m.offsets {
		if err := putU32(buf[offset:], o); err != nil {
			return err
		}
		offset += uint32Size
	}
	return putU32(buf[offset:], uint32(len(m.offsets)))
}

// dataBlockBuffer is the writer side of a data block (C4): a fixed
// maxSize-byte buffer, a monotonically increasing write cursor, and the
// metadata tail being accumulated for it.
type dataBlockBuffer struct {
	data    []byte
	maxSize int
	curPos  int
	meta    dataBlockMeta
}

func newDataBlockBuffer(maxSize int) *dataBlockBuffer {
	return &dataBlockBuffer{
		data:    make([]byte, maxSize),
		maxSize: maxSize,
	}
}

func (b *dataBlockBuffer) empty() bool {
	return b.curPos == 0
}

// possibleAppend implements the admission predicate from spec.md §3:
// cur_pos + entry_size < B - (meta_size + 4).
func (b *dataBlockBuffer) possibleAppend(e Entry) bool {
	return b.curPos+e.EncodedSize() < b.maxSize-b.meta.sizeWithEntry()
}

// append serializes e at the write cursor and returns the bytes written,
// or 0 (no error) if the block has no room for it.
func (b *dataBlockBuffer) append(e Entry) (int, error) {
	if !b.possibleAppend(e) {
		return 0, nil
	}
	n, err := e.SerializeTo(b.data[b.curPos:])
	if err != nil {
		return 0, err
	}
	b.meta.append(uint32(b.curPos))
	b.curPos += n
	return n, nil
}

// flushTo writes the full maxSize-byte buffer to w, with the metadata
// tail serialized in place at maxSize - meta.size(). Bytes between
// curPos and the tail are left zeroed (the buffer is always freshly
// allocated or reset before reuse).
func (b *dataBlockBuffer) flushTo(w io.Writer) error {
	offset := b.maxSize - b.meta.size()
	if err := b.meta.serializeTo(b.data[offset:]); err != nil {
		return err
	}
	if _, err := w.Write(b.data); err != nil {
		return wrapIo(err, "data block: flush")
	}
	return nil
}

// reset clears the buffer and metadata for the next block.
func (b *dataBlockBuffer) reset() {
	b.data = make([]byte, b.maxSize)
	b.curPos = 0
	b.meta.reset()
}

// dataBlock is the reader side of a data block: the materialized,
// already key-ordered entries of one on-disk block.
type dataBlock struct {
	entries []Entry
}

// blockReaderAt is the subset of *os.File used to load a block; readers
// may share one handle under a lock or clone per goroutine, per spec.md §4.6.
type blockReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// loadDataBlock reads blockSize bytes at offset and parses it into an
// ordered slice of entries. The alignment requested by
// Config.DataBlockAlign is a hint for O_DIRECT-style I/O on platforms
// that support it; on the page-cache path taken here it has no effect on
// the bytes read, only (outside this implementation) on performance.
func loadDataBlock(r blockReaderAt, offset int64, blockSize int) (*dataBlock, error) {
	buf := make([]byte, blockSize)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, wrapIo(err, "data block: read at offset %d", offset)
	}

	count, err := getU32(buf[blockSize-uint32Size:])
	if err != nil {
		return nil, err
	}

	offsetsStart := blockSize - uint32Size - int(count)*uint32Size
	if offsetsStart < 0 || count == 0 {
		return nil, wrapCorrupt("data block: invalid entry count %d for block size %d", count, blockSize)
	}

	entries := make([]Entry, 0, count)
	for i := 0; i < int(count); i++ {
		entryOffset, err := getU32(buf[offsetsStart+i*uint32Size:])
		if err != nil {
			return nil, err
		}
		if int(entryOffset) >= offsetsStart {
			return nil, wrapCorrupt("data block: entry offset %d overruns metadata tail at %d", entryOffset, offsetsStart)
		}
		e, err := EntryFrom(buf[entryOffset:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return &dataBlock{entries: entries}, nil
}

// getByKey binary-searches the materialized entries for key.
func (d *dataBlock) getByKey(key Field) (Field, bool) {
	lo, hi := 0, len(d.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch d.entries[mid].Key.Compare(key) {
		case 0:
			return d.entries[mid].Value, true
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return nil, false
}

// iter yields the block's entries in key order, stopping early if fn
// returns false.
func (d *dataBlock) iter(fn func(Entry) bool) {
	for _, e := range d.entries {
		if !fn(e) {
			return
		}
	}
}
