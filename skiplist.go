package lsmkv

import "math/rand"

// node is one node of the ordered set backing the MemTable. forwardNodeAtLevel
// tracks, for each level the node participates in, the next node at that
// level — ascending key order at level 0 gives ascend its traversal order
// for free.
type node struct {
	key                Field
	value              Field
	forwardNodeAtLevel map[int]*node
}

func newNode(key, value Field) *node {
	return &node{
		key:                key,
		value:              value,
		forwardNodeAtLevel: make(map[int]*node),
	}
}

// skipList is an ordered set of entries keyed by Field, used by the
// MemTable (C3) for append/get/iterate in expected O(log n) time.
type skipList struct {
	head   *node
	height int     // how many levels are there
	size   int     // how many nodes are there
	prob   float32 // probability used to decide up to what level a new node reaches
	rng    *rand.Rand
}

func newSkipList() *skipList {
	return &skipList{
		head:   newNode(nil, nil),
		height: 1,
		size:   0,
		prob:   0.25,
		rng:    rand.New(rand.NewSource(1)),
	}
}

func (s *skipList) randomLevel() int {
	lvl := 0
	for s.rng.Float32() > s.prob {
		lvl++
	}
	return lvl
}

// search returns the node holding key, or nil if absent.
func (s *skipList) search(key Field) *node {
	curNode := s.head
	for curLevel := s.height - 1; curLevel >= 0; curLevel-- {
		for {
			nextNode, found := curNode.forwardNodeAtLevel[curLevel]
			if !found || nextNode.key.Compare(key) > 0 {
				break
			}
			if nextNode.key.Compare(key) == 0 {
				return nextNode
			}
			curNode = nextNode
		}
	}
	return nil
}

// upsert inserts a new node for key, or overwrites the value of an existing
// one. Returns true when a new key was inserted, false on overwrite - the
// MemTable uses this to decide whether current_size grows.
func (s *skipList) upsert(key, value Field) bool {
	curNode := s.head
	updateAnchors := make([]*node, s.height, s.height)

	for curLevel := s.height - 1; curLevel >= 0; curLevel-- {
		for {
			nextNode, found := curNode.forwardNodeAtLevel[curLevel]
			if !found || nextNode.key.Compare(key) > 0 {
				break
			}
			if nextNode.key.Compare(key) == 0 {
				nextNode.value = value
				return false
			}
			curNode = nextNode
		}
		updateAnchors[curLevel] = curNode
	}

	s.insertNewNode(newNode(key, value), updateAnchors)
	return true
}

func (s *skipList) insertNewNode(newNode *node, updateAnchors []*node) {
	lvl := s.randomLevel()
	// if the generated level reaches beyond current height, grow one level
	// at a time and anchor the new levels at head
	if lvl >= s.height {
		for i := s.height; i <= lvl; i++ {
			updateAnchors = append(updateAnchors, s.head)
		}
		s.height = lvl + 1
	}
	for level := 0; level <= lvl; level++ {
		anchorNode := updateAnchors[level]
		oldNext := anchorNode.forwardNodeAtLevel[level]
		anchorNode.forwardNodeAtLevel[level] = newNode
		if oldNext != nil {
			newNode.forwardNodeAtLevel[level] = oldNext
		}
	}
	s.size++
}

// clear empties the set.
func (s *skipList) clear() {
	s.head = newNode(nil, nil)
	s.height = 1
	s.size = 0
}

// ascend calls fn for every node in ascending key order, stopping early if
// fn returns false.
func (s *skipList) ascend(fn func(key, value Field) bool) {
	for curNode := s.head.forwardNodeAtLevel[0]; curNode != nil; curNode = curNode.forwardNodeAtLevel[0] {
		if !fn(curNode.key, curNode.value) {
			return
		}
	}
}
