package memtable

import (
	"math/rand"

	"github.com/devrev/pairdb/chainstore/internal/keys"
)

const (
	MaxLevel    = 16
	Probability = 0.5
)

// SkipListNode represents a node in the skip list
type SkipListNode struct {
	Key     []byte
	Value   interface{}
	Forward []*SkipListNode
}

// Next returns the following node in key order
func (n *SkipListNode) Next() *SkipListNode {
	return n.Forward[0]
}

// SkipList is an ordered map from raw keys to values under a Comparator
type SkipList struct {
	Head  *SkipListNode
	Level int
	Size  int
	cmp   keys.Comparator
}

// NewSkipList creates a new skip list
func NewSkipList(cmp keys.Comparator) *SkipList {
	head := &SkipListNode{
		Forward: make([]*SkipListNode, MaxLevel),
	}
	return &SkipList{
		Head:  head,
		Level: 0,
		cmp:   cmp,
	}
}

// randomLevel generates a random level for a new node
func (sl *SkipList) randomLevel() int {
	level := 0
	for rand.Float64() < Probability && level < MaxLevel-1 {
		level++
	}
	return level
}

// before fills update with the last node at every level whose key is < key
// and returns the level-0 predecessor
func (sl *SkipList) before(key []byte, update []*SkipListNode) *SkipListNode {
	current := sl.Head
	for i := sl.Level; i >= 0; i-- {
		for current.Forward[i] != nil && sl.cmp.Compare(current.Forward[i].Key, key) < 0 {
			current = current.Forward[i]
		}
		if update != nil {
			update[i] = current
		}
	}
	return current
}

// Insert adds or updates a key-value pair
func (sl *SkipList) Insert(key []byte, value interface{}) {
	update := make([]*SkipListNode, MaxLevel)
	current := sl.before(key, update).Forward[0]

	if current != nil && sl.cmp.Compare(current.Key, key) == 0 {
		current.Value = value
		return
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.Level {
		for i := sl.Level + 1; i <= newLevel; i++ {
			update[i] = sl.Head
		}
		sl.Level = newLevel
	}

	newNode := &SkipListNode{
		Key:     key,
		Value:   value,
		Forward: make([]*SkipListNode, newLevel+1),
	}

	for i := 0; i <= newLevel; i++ {
		newNode.Forward[i] = update[i].Forward[i]
		update[i].Forward[i] = newNode
	}

	sl.Size++
}

// Search finds a value by key
func (sl *SkipList) Search(key []byte) (interface{}, bool) {
	current := sl.before(key, nil).Forward[0]
	if current != nil && sl.cmp.Compare(current.Key, key) == 0 {
		return current.Value, true
	}
	return nil, false
}

// Delete removes a key from the skip list
func (sl *SkipList) Delete(key []byte) bool {
	update := make([]*SkipListNode, MaxLevel)
	current := sl.before(key, update).Forward[0]
	if current == nil || sl.cmp.Compare(current.Key, key) != 0 {
		return false
	}

	for i := 0; i <= sl.Level; i++ {
		if update[i].Forward[i] != current {
			break
		}
		update[i].Forward[i] = current.Forward[i]
	}

	for sl.Level > 0 && sl.Head.Forward[sl.Level] == nil {
		sl.Level--
	}

	sl.Size--
	return true
}

// Len returns the number of elements in the skip list
func (sl *SkipList) Len() int {
	return sl.Size
}

// First returns the smallest node, or nil
func (sl *SkipList) First() *SkipListNode {
	return sl.Head.Forward[0]
}

// Last returns the largest node, or nil
func (sl *SkipList) Last() *SkipListNode {
	current := sl.Head
	for i := sl.Level; i >= 0; i-- {
		for current.Forward[i] != nil {
			current = current.Forward[i]
		}
	}
	if current == sl.Head {
		return nil
	}
	return current
}

// SeekGE returns the first node with key >= key
func (sl *SkipList) SeekGE(key []byte) *SkipListNode {
	return sl.before(key, nil).Forward[0]
}

// SeekGT returns the first node with key > key
func (sl *SkipList) SeekGT(key []byte) *SkipListNode {
	n := sl.SeekGE(key)
	if n != nil && sl.cmp.Compare(n.Key, key) == 0 {
		n = n.Forward[0]
	}
	return n
}

// SeekLT returns the last node with key < key
func (sl *SkipList) SeekLT(key []byte) *SkipListNode {
	n := sl.before(key, nil)
	if n == sl.Head {
		return nil
	}
	return n
}

// SeekLE returns the last node with key <= key
func (sl *SkipList) SeekLE(key []byte) *SkipListNode {
	if n := sl.SeekGE(key); n != nil && sl.cmp.Compare(n.Key, key) == 0 {
		return n
	}
	return sl.SeekLT(key)
}
