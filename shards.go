package lsmkv

import "sync"

// ShardsDirectory owns every on-disk level of the store (C8): an ordered
// map from level to LevelShard, plus the single exclusive lock that
// guards level-to-level table movement during compaction.
type ShardsDirectory struct {
	mu                 sync.RWMutex
	levels             map[uint8]*LevelShard
	diskTablesPerLevel int
	maxLevel           uint8
	dataBlockSize      int
}

func newShardsDirectory(diskTablesPerLevel int, maxLevel uint8, dataBlockSize int) *ShardsDirectory {
	return &ShardsDirectory{
		levels:             make(map[uint8]*LevelShard),
		diskTablesPerLevel: diskTablesPerLevel,
		maxLevel:           maxLevel,
		dataBlockSize:      dataBlockSize,
	}
}

func (d *ShardsDirectory) shardFor(level uint8) *LevelShard {
	d.mu.RLock()
	shard, ok := d.levels[level]
	d.mu.RUnlock()
	if ok {
		return shard
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if shard, ok = d.levels[level]; ok {
		return shard
	}
	shard = newLevelShard()
	d.levels[level] = shard
	return shard
}

// Put appends reader to level's shard, creating the shard on first use.
func (d *ShardsDirectory) Put(level uint8, r *SSTableReader) {
	d.shardFor(level).push(r)
}

// Get looks up key across every level, ascending level order (lower
// levels hold the newest data since compaction only ever promotes
// upward), and within a level newest-table-first (a level can briefly
// hold more than one table for the same key between flushes and the
// compaction that merges them away).
func (d *ShardsDirectory) Get(key Field) (Field, bool, error) {
	d.mu.RLock()
	levels := make([]uint8, 0, len(d.levels))
	shards := make(map[uint8]*LevelShard, len(d.levels))
	for l, s := range d.levels {
		levels = append(levels, l)
		shards[l] = s
	}
	d.mu.RUnlock()

	sortLevels(levels)

	for _, l := range levels {
		shard := shards[l]
		var (
			value Field
			found bool
			rerr  error
		)
		shard.iterNewestFirst(func(t *SSTableReader) bool {
			v, ok, err := t.Read(key)
			if err != nil {
				rerr = err
				return false
			}
			if ok {
				value, found = v, true
				return false
			}
			return true
		})
		if rerr != nil {
			return nil, false, rerr
		}
		if found {
			return value, true, nil
		}
	}
	return nil, false, nil
}

func sortLevels(levels []uint8) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j-1] > levels[j]; j-- {
			levels[j-1], levels[j] = levels[j], levels[j-1]
		}
	}
}

// IsReadyToMerge reports whether level has accumulated the configured
// number of tables and should be compacted into the next level.
func (d *ShardsDirectory) IsReadyToMerge(level uint8) bool {
	d.mu.RLock()
	shard, ok := d.levels[level]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	return shard.len() >= d.diskTablesPerLevel
}

// mergeCursor tracks one input table's current unconsumed entry during
// a k-way merge.
type mergeCursor struct {
	reader *SSTableReader
	it     *sstableIterator
	cur    Entry
	ok     bool
	rank   int // position among a level's tables, oldest=0; higher = newer
}

// MergeLevel k-way merges every table currently in level into one new
// SSTable written at outPath, newest-input-wins on duplicate keys
// (spec.md §4.8). It does not mutate the directory; the caller is
// expected to follow up with RemoveLevelAndPut.
func (d *ShardsDirectory) MergeLevel(level uint8, outPath string) (*SSTableReader, error) {
	shard := d.shardFor(level)
	tables := shard.snapshot()
	defer func() {
		for _, t := range tables {
			t.Release()
		}
	}()

	cursors := make([]*mergeCursor, len(tables))
	for i, t := range tables {
		c := &mergeCursor{reader: t, it: t.BlockIter(), rank: i}
		c.cur, c.ok = c.it.Next()
		cursors[i] = c
	}

	builder, err := NewSSTableBuilder(outPath, d.dataBlockSize)
	if err != nil {
		return nil, err
	}

	for {
		winner := -1
		for i, c := range cursors {
			if !c.ok {
				continue
			}
			if winner == -1 {
				winner = i
				continue
			}
			cmp := c.cur.Key.Compare(cursors[winner].cur.Key)
			if cmp < 0 || (cmp == 0 && c.rank > cursors[winner].rank) {
				winner = i
			}
		}
		if winner == -1 {
			break
		}

		winKey := cursors[winner].cur.Key
		if err := builder.AppendEntry(cursors[winner].cur); err != nil {
			return nil, err
		}

		for _, c := range cursors {
			if c.ok && c.cur.Key.Compare(winKey) == 0 {
				c.cur, c.ok = c.it.Next()
			}
		}
	}

	for _, c := range cursors {
		if err := c.it.Err(); err != nil {
			return nil, err
		}
	}

	return builder.Build()
}

// RemoveLevelAndPut atomically clears srcLevel's shard and appends
// newReader to dstLevel's shard, under the directory's exclusive lock so
// no concurrent Get ever observes the old tables gone without the merged
// replacement already in place.
func (d *ShardsDirectory) RemoveLevelAndPut(srcLevel, dstLevel uint8, newReader *SSTableReader) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if src, ok := d.levels[srcLevel]; ok {
		src.clear()
	}
	dst, ok := d.levels[dstLevel]
	if !ok {
		dst = newLevelShard()
		d.levels[dstLevel] = dst
	}
	dst.push(newReader)
}

// MaxLevel returns the highest level compaction is allowed to promote
// into; at that level compaction re-merges in place (spec.md §9).
func (d *ShardsDirectory) MaxLevel() uint8 {
	return d.maxLevel
}
