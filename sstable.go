package lsmkv

import (
	"fmt"
	"os"
	"path/filepath"
)

// indexBlock is one record of a SSTable's block-index region: the file
// offset and size of a data block, plus its first (smallest) key.
type indexBlock struct {
	blockOffset uint32
	blockSize   uint32
	firstKey    Field
}

// entryIndexRecord is one record of a SSTable's entry-index region: the
// file offset and encoded size of one stored entry. The reader loads it on
// open and CountEntries reports its length; the compaction iterator walks
// data blocks instead of this index.
type entryIndexRecord struct {
	offset uint32
	size   uint32
}

// segmentFileName returns the on-disk name for an SSTable at the given
// id/level, per spec.md §3: segment_{id:07}_{level}.bin.
func segmentFileName(id uint64, level uint8) string {
	return fmt.Sprintf("segment_%07d_%d.bin", id, level)
}

// segmentDir returns {storageRoot}/segment.
func segmentDir(storageRoot string) string {
	return filepath.Join(storageRoot, "segment")
}

// parseSegmentFileName extracts the level encoded in a segment filename,
// used when the façade rebuilds its shards directory from an existing
// storage root on open.
func parseSegmentFileName(name string) (id uint64, level uint8, ok bool) {
	var parsedID uint64
	var parsedLevel uint64
	n, err := fmt.Sscanf(name, "segment_%d_%d.bin", &parsedID, &parsedLevel)
	if err != nil || n != 2 {
		return 0, 0, false
	}
	return parsedID, uint8(parsedLevel), true
}

// segmentParentOf returns the directory containing path, for the
// parent-directory fsync that follows every segment file creation.
func segmentParentOf(path string) string {
	return filepath.Dir(path)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return wrapIo(err, "sstable: open dir %s for fsync", dir)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return wrapIo(err, "sstable: fsync dir %s", dir)
	}
	return nil
}
