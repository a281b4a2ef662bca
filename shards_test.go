package lsmkv

import (
	"fmt"
	"path/filepath"
	"testing"
)

func Test_ShardsDirectoryGetPrefersLowerLevel(t *testing.T) {
	dir := t.TempDir()
	sd := newShardsDirectory(4, 7, 256)

	old := buildTestSSTable(t, filepath.Join(dir, segmentFileName(1, 2)), 256, []Entry{
		{Key: Field("k"), Value: Field("old")},
	})
	fresh := buildTestSSTable(t, filepath.Join(dir, segmentFileName(2, 1)), 256, []Entry{
		{Key: Field("k"), Value: Field("new")},
	})

	sd.Put(2, old)
	sd.Put(1, fresh)

	v, ok, err := sd.Get(Field("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(v) != "new" {
		t.Errorf("got (%v, %v), want new (level 1 must win over level 2)", v, ok)
	}
}

func Test_ShardsDirectoryGetPrefersNewestWithinLevel(t *testing.T) {
	dir := t.TempDir()
	sd := newShardsDirectory(4, 7, 256)

	v1 := buildTestSSTable(t, filepath.Join(dir, segmentFileName(1, 1)), 256, []Entry{
		{Key: Field("k"), Value: Field("v1")},
	})
	v2 := buildTestSSTable(t, filepath.Join(dir, segmentFileName(2, 1)), 256, []Entry{
		{Key: Field("k"), Value: Field("v2")},
	})

	sd.Put(1, v1)
	sd.Put(1, v2)

	v, ok, err := sd.Get(Field("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(v) != "v2" {
		t.Errorf("got (%v, %v), want v2 (newest table within a level must win)", v, ok)
	}
}

func Test_ShardsDirectoryIsReadyToMerge(t *testing.T) {
	dir := t.TempDir()
	sd := newShardsDirectory(2, 7, 256)

	if sd.IsReadyToMerge(1) {
		t.Error("empty level should not be ready to merge")
	}

	sd.Put(1, buildTestSSTable(t, filepath.Join(dir, segmentFileName(1, 1)), 256, []Entry{
		{Key: Field("a"), Value: Field("1")},
	}))
	if sd.IsReadyToMerge(1) {
		t.Error("level below limit should not be ready to merge")
	}

	sd.Put(1, buildTestSSTable(t, filepath.Join(dir, segmentFileName(2, 1)), 256, []Entry{
		{Key: Field("b"), Value: Field("2")},
	}))
	if !sd.IsReadyToMerge(1) {
		t.Error("level at limit should be ready to merge")
	}
}

func Test_ShardsDirectoryMergeLevelNewestWins(t *testing.T) {
	dir := t.TempDir()
	sd := newShardsDirectory(2, 7, 256)

	older := buildTestSSTable(t, filepath.Join(dir, segmentFileName(1, 1)), 256, []Entry{
		{Key: Field("k1"), Value: Field("old")},
		{Key: Field("k2"), Value: Field("only-in-older")},
	})
	newer := buildTestSSTable(t, filepath.Join(dir, segmentFileName(2, 1)), 256, []Entry{
		{Key: Field("k1"), Value: Field("new")},
		{Key: Field("k3"), Value: Field("only-in-newer")},
	})
	sd.Put(1, older)
	sd.Put(1, newer)

	merged, err := sd.MergeLevel(1, filepath.Join(dir, segmentFileName(3, 2)))
	if err != nil {
		t.Fatalf("MergeLevel failed: %v", err)
	}

	cases := map[string]string{"k1": "new", "k2": "only-in-older", "k3": "only-in-newer"}
	for k, want := range cases {
		v, ok, err := merged.Read(Field(k))
		if err != nil {
			t.Fatalf("Read(%s) failed: %v", k, err)
		}
		if !ok || string(v) != want {
			t.Errorf("Read(%s): got (%v, %v), want %s", k, v, ok, want)
		}
	}
	if merged.CountEntries() != 3 {
		t.Errorf("got %d merged entries, want 3 (duplicate key collapsed)", merged.CountEntries())
	}
}

func Test_ShardsDirectoryRemoveLevelAndPutIsAtomicToReaders(t *testing.T) {
	dir := t.TempDir()
	sd := newShardsDirectory(2, 7, 256)

	a := buildTestSSTable(t, filepath.Join(dir, segmentFileName(1, 1)), 256, []Entry{
		{Key: Field("k"), Value: Field("v")},
	})
	sd.Put(1, a)

	merged, err := sd.MergeLevel(1, filepath.Join(dir, segmentFileName(2, 2)))
	if err != nil {
		t.Fatalf("MergeLevel failed: %v", err)
	}
	sd.RemoveLevelAndPut(1, 2, merged)

	if sd.shardFor(1).len() != 0 {
		t.Error("source level should be empty after RemoveLevelAndPut")
	}
	v, ok, err := sd.Get(Field("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(v) != "v" {
		t.Errorf("expected key to survive the level swap, got (%v, %v)", v, ok)
	}
}

func Test_ShardsDirectoryMergeLevelManyTables(t *testing.T) {
	dir := t.TempDir()
	sd := newShardsDirectory(5, 7, 128)

	for i := 0; i < 5; i++ {
		sd.Put(1, buildTestSSTable(t, filepath.Join(dir, segmentFileName(uint64(i+1), 1)), 128, []Entry{
			{Key: Field(fmt.Sprintf("key-%02d", i)), Value: Field(fmt.Sprintf("value-%02d", i))},
		}))
	}

	merged, err := sd.MergeLevel(1, filepath.Join(dir, segmentFileName(6, 2)))
	if err != nil {
		t.Fatalf("MergeLevel failed: %v", err)
	}
	if merged.CountEntries() != 5 {
		t.Fatalf("got %d entries, want 5", merged.CountEntries())
	}

	it := merged.BlockIter()
	prev := ""
	count := 0
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if prev != "" && string(e.Key) <= prev {
			t.Fatalf("merged output not strictly ascending at %s after %s", e.Key, prev)
		}
		prev = string(e.Key)
		count++
	}
	if count != 5 {
		t.Fatalf("iterator yielded %d entries, want 5", count)
	}
}
