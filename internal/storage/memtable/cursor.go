package memtable

// Cursor walks the distinct keys of a memtable in either direction and
// exposes the newest version of each key visible under a version ceiling.
// Keys without a visible version are skipped.
type Cursor struct {
	m          *MemTable
	maxVersion uint32
	node       *SkipListNode
	entry      *Entry
}

// NewCursor returns an unpositioned cursor
func (m *MemTable) NewCursor(maxVersion uint32) *Cursor {
	return &Cursor{m: m, maxVersion: maxVersion}
}

// Valid reports whether the cursor sits on a visible entry
func (c *Cursor) Valid() bool {
	return c.entry != nil
}

// Entry returns the current entry
func (c *Cursor) Entry() *Entry {
	return c.entry
}

func (c *Cursor) visible(n *SkipListNode) *Entry {
	e := n.Value.(*Entry)
	if e.Version <= c.maxVersion {
		return e
	}
	found, _ := c.m.GetAt(n.Key, c.maxVersion)
	return found
}

func (c *Cursor) forward(n *SkipListNode) bool {
	for ; n != nil; n = n.Next() {
		if e := c.visible(n); e != nil {
			c.node, c.entry = n, e
			return true
		}
	}
	c.node, c.entry = nil, nil
	return false
}

func (c *Cursor) backward(n *SkipListNode) bool {
	for n != nil {
		if e := c.visible(n); e != nil {
			c.node, c.entry = n, e
			return true
		}
		n = c.m.index.SeekLT(n.Key)
	}
	c.node, c.entry = nil, nil
	return false
}

// First moves to the smallest key
func (c *Cursor) First() bool { return c.forward(c.m.index.First()) }

// Last moves to the largest key
func (c *Cursor) Last() bool { return c.backward(c.m.index.Last()) }

// SeekGE moves to the first key >= key
func (c *Cursor) SeekGE(key []byte) bool { return c.forward(c.m.index.SeekGE(key)) }

// SeekGT moves to the first key > key
func (c *Cursor) SeekGT(key []byte) bool { return c.forward(c.m.index.SeekGT(key)) }

// SeekLE moves to the last key <= key
func (c *Cursor) SeekLE(key []byte) bool { return c.backward(c.m.index.SeekLE(key)) }

// SeekLT moves to the last key < key
func (c *Cursor) SeekLT(key []byte) bool { return c.backward(c.m.index.SeekLT(key)) }

// Next moves to the following key
func (c *Cursor) Next() bool {
	if c.node == nil {
		return false
	}
	return c.forward(c.node.Next())
}

// Prev moves to the preceding key
func (c *Cursor) Prev() bool {
	if c.node == nil {
		return false
	}
	return c.backward(c.m.index.SeekLT(c.node.Key))
}
