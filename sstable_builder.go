package lsmkv

import (
	"io"
	"os"
)

// SSTableBuilder streams sorted entries into a new on-disk SSTable,
// computing the block-index and entry-index as it goes (C6).
// Entries must be fed in strictly ascending key order.
type SSTableBuilder struct {
	path       string
	file       *os.File
	blockSize  int
	fileOffset uint32
	cur        *dataBlockBuffer
	blockIndex []indexBlock
	entryIndex []entryIndexRecord
}

// NewSSTableBuilder creates the backing file at path and a builder ready
// to accept entries, using blockSize-byte data blocks.
func NewSSTableBuilder(path string, blockSize int) (*SSTableBuilder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, wrapIo(err, "sstable builder: create %s", path)
	}
	return &SSTableBuilder{
		path:      path,
		file:      f,
		blockSize: blockSize,
		cur:       newDataBlockBuffer(blockSize),
	}, nil
}

// AppendEntry appends e to the current data block, flushing and starting
// a new block first if it doesn't fit. Fails with ErrEntryTooLarge if the
// entry still doesn't fit in a freshly reset block.
func (b *SSTableBuilder) AppendEntry(e Entry) error {
	return b.appendEntry(e, false)
}

func (b *SSTableBuilder) appendEntry(e Entry, retried bool) error {
	wasEmpty := b.cur.empty()
	posBefore := uint32(b.cur.curPos)

	n, err := b.cur.append(e)
	if err != nil {
		return err
	}
	if n == 0 {
		if retried {
			return ErrEntryTooLarge
		}
		if err := b.flushCurrentBlock(); err != nil {
			return err
		}
		return b.appendEntry(e, true)
	}

	if wasEmpty {
		b.blockIndex = append(b.blockIndex, indexBlock{
			blockOffset: b.fileOffset,
			blockSize:   uint32(b.blockSize),
			firstKey:    e.Key.clone(),
		})
	}
	b.entryIndex = append(b.entryIndex, entryIndexRecord{
		offset: b.fileOffset + posBefore,
		size:   uint32(n),
	})
	return nil
}

// flushCurrentBlock writes the in-progress block to disk, block-aligning
// fileOffset for the next one, and resets the buffer.
func (b *SSTableBuilder) flushCurrentBlock() error {
	if err := b.cur.flushTo(b.file); err != nil {
		return err
	}
	b.fileOffset += uint32(b.blockSize)
	b.cur.reset()
	return nil
}

// Build finalizes the file: flushes any pending block, writes the
// block-index and entry-index regions and their trailers, fsyncs the
// file and its parent directory, then opens and returns a reader over it.
func (b *SSTableBuilder) Build() (*SSTableReader, error) {
	if !b.cur.empty() {
		if err := b.flushCurrentBlock(); err != nil {
			return nil, err
		}
	}

	if err := b.writeBlockIndex(); err != nil {
		return nil, err
	}
	if err := b.writeEntryIndex(); err != nil {
		return nil, err
	}

	if err := b.file.Sync(); err != nil {
		return nil, wrapIo(err, "sstable builder: fsync %s", b.path)
	}
	if err := syncDir(segmentParentOf(b.path)); err != nil {
		return nil, err
	}
	if err := b.file.Close(); err != nil {
		return nil, wrapIo(err, "sstable builder: close %s", b.path)
	}

	return OpenSSTableReader(b.path, b.blockSize)
}

func (b *SSTableBuilder) writeBlockIndex() error {
	start := b.fileOffset
	for _, ib := range b.blockIndex {
		rec := make([]byte, 3*uint32Size+len(ib.firstKey))
		putU32(rec, ib.blockOffset)
		putU32(rec[uint32Size:], ib.blockSize)
		putU32(rec[2*uint32Size:], uint32(len(ib.firstKey)))
		copy(rec[3*uint32Size:], ib.firstKey)
		if _, err := b.file.Write(rec); err != nil {
			return wrapIo(err, "sstable builder: write block index")
		}
	}
	end, err := b.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIo(err, "sstable builder: seek after block index")
	}
	blockIndexSize := uint32(end) - start

	if err := b.writeU32(blockIndexSize); err != nil {
		return err
	}
	return b.writeU32(uint32(len(b.blockIndex)))
}

func (b *SSTableBuilder) writeEntryIndex() error {
	for _, er := range b.entryIndex {
		rec := make([]byte, 2*uint32Size)
		putU32(rec, er.offset)
		putU32(rec[uint32Size:], er.size)
		if _, err := b.file.Write(rec); err != nil {
			return wrapIo(err, "sstable builder: write entry index")
		}
	}
	return b.writeU32(uint32(len(b.entryIndex)))
}

func (b *SSTableBuilder) writeU32(v uint32) error {
	buf := make([]byte, uint32Size)
	putU32(buf, v)
	if _, err := b.file.Write(buf); err != nil {
		return wrapIo(err, "sstable builder: write trailer")
	}
	return nil
}

// Path returns the backing file path.
func (b *SSTableBuilder) Path() string {
	return b.path
}
