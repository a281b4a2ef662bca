package lsmkv

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// workerPollInterval bounds how long the background worker sleeps between
// checks of need_flush/shutdown when nothing wakes it early (spec.md §4.10).
const workerPollInterval = 2 * time.Second

// Storage is the façade (C10): MemTable + ShardsDirectory + ID allocator,
// with one background worker doing all flush and compaction work, the way
// the teacher's Database pairs a MemTable with a compaction goroutine.
type Storage struct {
	root       string
	segmentDir string
	cfg        *Config
	logger     *logrus.Entry

	memMu  sync.RWMutex
	mem    *MemTable
	frozen []*MemTable // memtables mid-flush: swapped out, not yet in the shards directory

	shards *ShardsDirectory
	ids    *idAllocator

	needFlush int32
	shutdown  int32
	wake      chan struct{}
	done      chan struct{}
}

// Open creates or opens the store rooted at path, rebuilding the shards
// directory from whatever segment files are already there.
func Open(path string, opts ...Option) (*Storage, error) {
	cfg := generateConfig(opts...)

	if err := os.MkdirAll(segmentDir(path), 0700); err != nil {
		return nil, wrapIo(err, "storage: create segment dir under %s", path)
	}

	ids, err := openIDAllocator(path)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		root:       path,
		segmentDir: segmentDir(path),
		cfg:        cfg,
		logger:     cfg.Logger.WithField("session", uuid.New().String()),
		mem:        NewMemTable(cfg.MemTableSize),
		shards:     newShardsDirectory(cfg.DiskTablesLimitByLevel, cfg.MaxLevel, cfg.DataBlockSize),
		ids:        ids,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	if err := s.loadExistingSegments(); err != nil {
		return nil, err
	}

	s.logger.Infof("opened store at %s", path)
	go s.backgroundLoop()

	return s, nil
}

type segmentFile struct {
	id    uint64
	level uint8
	path  string
}

// loadExistingSegments scans segment/ for segment_{id}_{level}.bin files and
// pushes a reader for each into the appropriate level shard, oldest id
// first within a level, per spec.md §4.10 step 2.
func (s *Storage) loadExistingSegments() error {
	entries, err := os.ReadDir(s.segmentDir)
	if err != nil {
		return wrapIo(err, "storage: read segment dir %s", s.segmentDir)
	}

	byLevel := make(map[uint8][]segmentFile)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, level, ok := parseSegmentFileName(e.Name())
		if !ok {
			continue
		}
		byLevel[level] = append(byLevel[level], segmentFile{
			id:    id,
			level: level,
			path:  filepath.Join(s.segmentDir, e.Name()),
		})
	}

	levels := make([]uint8, 0, len(byLevel))
	for l := range byLevel {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	for _, level := range levels {
		files := byLevel[level]
		sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })
		for _, f := range files {
			reader, err := OpenSSTableReader(f.path, s.cfg.DataBlockSize)
			if err != nil {
				return err
			}
			s.shards.Put(level, reader)
		}
	}
	return nil
}

// Put appends entry to the MemTable, requesting a flush once it is full.
// A no-op after Close. Fails with ErrEntryTooLarge when the entry's
// encoding cannot fit in an empty data block.
func (s *Storage) Put(e Entry) error {
	if atomic.LoadInt32(&s.shutdown) == 1 {
		return nil
	}
	if e.EncodedSize() >= s.cfg.DataBlockSize-2*uint32Size {
		return ErrEntryTooLarge
	}

	s.memMu.Lock()
	s.mem.Append(e)
	full := s.mem.NeedFlush()
	s.memMu.Unlock()

	if full {
		s.requestFlush()
	}
	return nil
}

// Get looks up key in the MemTable (including any memtable currently
// being drained to disk by a flush in progress), falling back to the
// shards directory. Returns ok=false after Close.
func (s *Storage) Get(key Field) (Field, bool, error) {
	if atomic.LoadInt32(&s.shutdown) == 1 {
		return nil, false, nil
	}

	s.memMu.RLock()
	v, ok := s.mem.Get(key)
	if !ok {
		for i := len(s.frozen) - 1; i >= 0; i-- {
			if v, ok = s.frozen[i].Get(key); ok {
				break
			}
		}
	}
	s.memMu.RUnlock()
	if ok {
		return v, true, nil
	}

	return s.shards.Get(key)
}

// Close signals shutdown, wakes the background worker, and waits for its
// current flush+compaction cycle (if any) to finish before returning.
func (s *Storage) Close() error {
	atomic.StoreInt32(&s.shutdown, 1)
	s.requestFlush()
	<-s.done
	s.logger.Infof("closed store at %s", s.root)
	return nil
}

func (s *Storage) requestFlush() {
	atomic.StoreInt32(&s.needFlush, 1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Storage) backgroundLoop() {
	for {
		select {
		case <-s.wake:
		case <-time.After(workerPollInterval):
		}

		// Drain flush/compaction cycles immediately, without sleeping again,
		// until there is nothing left to do — so a shutdown observed right
		// after a flush completes doesn't wait out another poll interval.
		for {
			flush := atomic.LoadInt32(&s.needFlush) == 1
			shuttingDown := atomic.LoadInt32(&s.shutdown) == 1

			if shuttingDown && !flush {
				close(s.done)
				return
			}
			if !flush {
				break
			}

			if err := s.runFlushAndCompact(); err != nil {
				s.logger.Warnf("flush/compaction cycle failed: %v", err)
			}
			atomic.StoreInt32(&s.needFlush, 0)
		}
	}
}

// runFlushAndCompact performs one flush phase followed by one compaction
// pass over every level, per spec.md §4.10.
func (s *Storage) runFlushAndCompact() error {
	if err := s.flush(); err != nil {
		return err
	}
	return s.compact()
}

// flush briefly takes the MemTable lock only to freeze the current table
// and swap in a fresh one, then allocates a new segment ID (metadata),
// drains the frozen table to disk with no lock held at all, and finally
// publishes the result into the shards directory (shards) — never
// performing disk I/O while holding the MemTable lock. An empty MemTable
// is left alone and no ID is allocated for it.
func (s *Storage) flush() error {
	s.memMu.Lock()
	if s.mem.Len() == 0 {
		s.memMu.Unlock()
		return nil
	}
	frozen := s.mem
	s.mem = NewMemTable(s.cfg.MemTableSize)
	s.frozen = append(s.frozen, frozen)
	s.memMu.Unlock()

	id, err := s.ids.Next()
	if err != nil {
		return err
	}
	path := filepath.Join(s.segmentDir, segmentFileName(id, 1))

	builder, err := NewSSTableBuilder(path, s.cfg.DataBlockSize)
	if err != nil {
		return err
	}
	var buildErr error
	frozen.Iter(func(e Entry) bool {
		if err := builder.AppendEntry(e); err != nil {
			buildErr = err
			return false
		}
		return true
	})
	if buildErr != nil {
		return buildErr
	}

	reader, err := builder.Build()
	if err != nil {
		return err
	}

	s.shards.Put(1, reader)

	s.memMu.Lock()
	s.unfreeze(frozen)
	s.memMu.Unlock()

	s.logger.Infof("flushed memtable to %s", path)
	return nil
}

// unfreeze drops frozen from the frozen-memtable list once its contents
// are durably published in the shards directory. Called with memMu held.
func (s *Storage) unfreeze(frozen *MemTable) {
	for i, m := range s.frozen {
		if m == frozen {
			s.frozen = append(s.frozen[:i], s.frozen[i+1:]...)
			return
		}
	}
}

func (s *Storage) compact() error {
	for level := uint8(1); level <= s.cfg.MaxLevel; level++ {
		if !s.shards.IsReadyToMerge(level) {
			continue
		}

		target := level + 1
		if level >= s.cfg.MaxLevel {
			target = s.cfg.MaxLevel
		}

		id, err := s.ids.Next()
		if err != nil {
			return err
		}
		path := filepath.Join(s.segmentDir, segmentFileName(id, target))

		merged, err := s.shards.MergeLevel(level, path)
		if err != nil {
			return err
		}
		s.shards.RemoveLevelAndPut(level, target, merged)
		s.logger.Infof("compacted level %d into %s", level, path)
	}
	return nil
}
