package lsmkv

import (
	"fmt"
	"math/rand"
	"testing"
)

func Test_InsertOneWhenListIsEmpty(t *testing.T) {
	s := newSkipList()
	s.upsert(Field("hello"), Field("world"))

	n := s.search(Field("hello"))
	if n == nil || string(n.value) != "world" {
		t.Errorf("got %v instead", n)
	}
}

func Test_InOrderInsert(t *testing.T) {
	s := newSkipList()

	keys := makeKeyRange(10, false)
	for _, k := range keys {
		s.upsert(k, Field(fmt.Sprintf("value-%s", k)))
	}

	got := ascendKeys(s)
	assertKeysAscending(t, got)
	if len(got) != 10 {
		t.Fatalf("got %d keys, want 10", len(got))
	}
}

func Test_ReverseOrderInsert(t *testing.T) {
	s := newSkipList()

	keys := makeKeyRange(10, false)
	for i := len(keys) - 1; i >= 0; i-- {
		s.upsert(keys[i], Field(fmt.Sprintf("value-%s", keys[i])))
	}

	got := ascendKeys(s)
	assertKeysAscending(t, got)
}

func Test_RandomInsert(t *testing.T) {
	s := newSkipList()

	keys := makeKeyRange(20, true)
	for _, k := range keys {
		s.upsert(k, Field(fmt.Sprintf("value-%s", k)))
	}

	got := ascendKeys(s)
	assertKeysAscending(t, got)
	if len(got) != 20 {
		t.Fatalf("got %d keys, want 20", len(got))
	}
}

func Test_UpdateShouldUpdateExistingElement(t *testing.T) {
	s := newSkipList()
	keys := makeKeyRange(10, true)
	for _, k := range keys {
		s.upsert(k, Field(fmt.Sprintf("value-%s", k)))
	}

	oldNode := s.search(Field("key-005"))
	inserted := s.upsert(Field("key-005"), Field("updated"))
	newNode := s.search(Field("key-005"))

	if inserted {
		t.Error("upsert on existing key reported a new insertion")
	}
	if newNode != oldNode {
		t.Error("new node created instead of updating the existing one")
	}
	if string(newNode.value) != "updated" {
		t.Errorf("got %s instead", newNode.value)
	}
}

func Test_SearchExist(t *testing.T) {
	s := newSkipList()
	keys := makeKeyRange(10, true)
	for _, k := range keys {
		s.upsert(k, Field(fmt.Sprintf("value-%s", k)))
	}

	for _, k := range keys {
		n := s.search(k)
		if n == nil {
			t.Fatalf("key %s not found", k)
		}
		want := fmt.Sprintf("value-%s", k)
		if string(n.value) != want {
			t.Errorf("expected %s, got %s", want, n.value)
		}
	}
}

func Test_SearchNonExistInSingleElementList(t *testing.T) {
	s := newSkipList()
	s.upsert(Field("hello"), Field("world"))

	if n := s.search(Field("does-not-exist")); n != nil {
		t.Error("expected nil")
	}
}

func Test_SearchNonExistInMultiElementList(t *testing.T) {
	s := newSkipList()
	keys := makeKeyRange(10, true)
	for _, k := range keys {
		s.upsert(k, Field(fmt.Sprintf("value-%s", k)))
	}

	if n := s.search(Field("not-a-key")); n != nil {
		t.Error("expected nil")
	}
}

func Test_SkipListTracksSize(t *testing.T) {
	s := newSkipList()
	keys := makeKeyRange(10, true)
	for _, k := range keys {
		s.upsert(k, Field(fmt.Sprintf("value-%s", k)))
	}

	if s.size != 10 {
		t.Errorf("size is incorrect - got: %d", s.size)
	}

	s.upsert(keys[0], Field("overwritten"))
	if s.size != 10 {
		t.Errorf("overwrite should not grow size, got: %d", s.size)
	}
}

func Test_SkipListClear(t *testing.T) {
	s := newSkipList()
	keys := makeKeyRange(5, false)
	for _, k := range keys {
		s.upsert(k, Field("v"))
	}

	s.clear()
	if s.size != 0 {
		t.Errorf("expected size 0 after clear, got %d", s.size)
	}
	if s.search(keys[0]) != nil {
		t.Error("expected no keys to remain after clear")
	}
}

func makeKeyRange(n int, shuffle bool) []Field {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if shuffle {
		rand.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	keys := make([]Field, n)
	for i, v := range idx {
		keys[i] = Field(fmt.Sprintf("key-%03d", v))
	}
	return keys
}

func ascendKeys(s *skipList) []Field {
	var keys []Field
	s.ascend(func(key, _ Field) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func assertKeysAscending(t *testing.T, keys []Field) {
	t.Helper()
	for i := 1; i < len(keys); i++ {
		if keys[i-1].Compare(keys[i]) >= 0 {
			t.Fatalf("keys not strictly ascending at index %d: %s >= %s", i, keys[i-1], keys[i])
		}
	}
}
