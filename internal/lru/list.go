package lru

// nilIndex 表示「沒有節點」，作用等同 nil 指標
const nilIndex int32 = -1

// node 是 arena 中的一個槽位。
//
// 槽位在 free 中時 prev/next 無意義，key/value 已歸零。
type node[K comparable, V any] struct {
	key   K
	value V
	prev  int32
	next  int32
}

// pushFront 將槽位 i 接到鏈表頭部（最近使用）。
func (c *Cache[K, V]) pushFront(i int32) {
	n := &c.nodes[i]
	n.prev = nilIndex
	n.next = c.head

	if c.head != nilIndex {
		c.nodes[c.head].prev = i
	}
	c.head = i

	if c.tail == nilIndex {
		c.tail = i
	}
}

// unlink 將槽位 i 從鏈表中拆下，不釋放槽位。
func (c *Cache[K, V]) unlink(i int32) {
	n := &c.nodes[i]

	if n.prev != nilIndex {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}

	if n.next != nilIndex {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}

	n.prev = nilIndex
	n.next = nilIndex
}

// moveToFront 將槽位 i 標記為最近使用。
func (c *Cache[K, V]) moveToFront(i int32) {
	if c.head == i {
		return
	}
	c.unlink(i)
	c.pushFront(i)
}

// alloc 取得一個槽位：優先使用 free，否則在 arena 尾端追加。
func (c *Cache[K, V]) alloc(key K, value V) int32 {
	if n := len(c.free); n > 0 {
		i := c.free[n-1]
		c.free = c.free[:n-1]
		c.nodes[i].key = key
		c.nodes[i].value = value
		return i
	}

	c.nodes = append(c.nodes, node[K, V]{
		key:   key,
		value: value,
		prev:  nilIndex,
		next:  nilIndex,
	})
	return int32(len(c.nodes) - 1)
}

// release 歸零槽位內容（讓 GC 回收 key/value 參照）並放回 free。
func (c *Cache[K, V]) release(i int32) {
	var zero node[K, V]
	zero.prev = nilIndex
	zero.next = nilIndex
	c.nodes[i] = zero
	c.free = append(c.free, i)
}
