// Package container provides the generic containers shared by the
// resource and descriptor caching layers.
//
// The central type is Map, a chained hash table with explicit node
// handles. Unlike the built-in map it permits duplicate keys, hands out
// stable node handles that survive rehashing, and supports relocating
// individual nodes between maps without copying their payload.
package container

import "hash/fnv"

// loadFactor is the maximum load after any insert.
// Must be reasonably above 0.5 so growth and shrink cannot thrash.
const loadFactor = 0.75

// minCapacity is the bucket count of a map after its first insert.
const minCapacity = 4

// Node is a single entry of a Map. Nodes are allocated by Insert and
// remain valid, with a stable address, until passed to Erase or moved
// to another map. Key must not be mutated while the node is linked;
// Value may be mutated freely.
type Node[K, V any] struct {
	next *Node[K, V]
	hash uint64

	Key   K
	Value V
}

// Hash returns the stored hash of the node's key.
func (n *Node[K, V]) Hash() uint64 { return n.hash }

// Map is a chained hash table with a caller-supplied hash function and
// equality comparator. The zero bucket state is valid; storage is
// allocated on first insert and released again when the map empties.
//
// Duplicate keys may coexist; use NextEqual to visit all nodes sharing
// a key. Map is not safe for concurrent use: callers that share a map
// across goroutines guard it with their own lock.
type Map[K, V any] struct {
	size    int
	buckets []*Node[K, V]

	hash  func(K) uint64
	equal func(K, K) bool
}

// NewMap creates an empty map using the given hash function and
// equality comparator. Both must be non-nil and consistent: equal keys
// must produce equal hashes.
func NewMap[K, V any](hash func(K) uint64, equal func(K, K) bool) *Map[K, V] {
	if hash == nil || equal == nil {
		panic("container: NewMap requires a hash function and comparator")
	}
	return &Map[K, V]{hash: hash, equal: equal}
}

// Len returns the number of nodes in the map.
func (m *Map[K, V]) Len() int { return m.size }

// Cap returns the current bucket count, zero when the map is empty and
// unallocated. Non-zero capacities are always powers of two >= 4.
func (m *Map[K, V]) Cap() int { return len(m.buckets) }

// bucket returns the bucket index for a hash under the current capacity.
func (m *Map[K, V]) bucket(hash uint64) int {
	return int(hash & uint64(len(m.buckets)-1))
}

// rehash relinks every node into a new bucket array of the given
// capacity. Nodes keep their stored hash; only the bucket assignment
// changes.
func (m *Map[K, V]) rehash(capacity int) {
	buckets := make([]*Node[K, V], capacity)
	for _, n := range m.buckets {
		for n != nil {
			next := n.next
			i := n.hash & uint64(capacity-1)
			n.next = buckets[i]
			buckets[i] = n
			n = next
		}
	}
	m.buckets = buckets
}

// grow ensures the capacity can hold minNodes at the configured load
// factor, doubling from a minimum of 4.
func (m *Map[K, V]) grow(minNodes int) {
	if float64(minNodes) <= float64(len(m.buckets))*loadFactor {
		return
	}
	capacity := minCapacity
	if len(m.buckets) > 0 {
		capacity = len(m.buckets) << 1
	}
	for float64(minNodes) > float64(capacity)*loadFactor {
		capacity <<= 1
	}
	m.rehash(capacity)
}

// shrink halves the capacity when the map got sparse enough that
// halving cannot immediately trigger a grow. The trigger is
// size < capacity/8; the new capacity keeps size >= capacity/4.
// An empty map releases its storage entirely.
func (m *Map[K, V]) shrink() {
	if m.size == 0 {
		m.Clear()
		return
	}
	capacity := len(m.buckets)
	if m.size >= capacity>>3 {
		return
	}
	for capacity > minCapacity && m.size < capacity>>2 {
		capacity >>= 1
	}
	if capacity != len(m.buckets) {
		m.rehash(capacity)
	}
}

// Reserve grows the map so it can hold at least n nodes without
// further rehashing.
func (m *Map[K, V]) Reserve(n int) {
	m.grow(n)
}

// Shrink releases excess capacity, as after Erase.
func (m *Map[K, V]) Shrink() {
	m.shrink()
}

// Clear removes all nodes and releases the bucket storage.
// Previously returned node handles become invalid.
func (m *Map[K, V]) Clear() {
	m.size = 0
	m.buckets = nil
}

// Insert adds a new node for key, growing the table as necessary.
// It does not reject duplicates; an equal key may already be present.
func (m *Map[K, V]) Insert(key K, value V) *Node[K, V] {
	return m.InsertHash(key, value, m.hash(key))
}

// InsertHash is Insert with a pre-computed hash of key.
func (m *Map[K, V]) InsertHash(key K, value V, hash uint64) *Node[K, V] {
	m.grow(m.size + 1)
	m.size++

	n := &Node[K, V]{hash: hash, Key: key, Value: value}
	i := m.bucket(hash)
	n.next = m.buckets[i]
	m.buckets[i] = n
	return n
}

// Search returns the first node matching key, or nil.
// With duplicate keys the match within a bucket is the most recently
// inserted one; continue with NextEqual for the rest.
func (m *Map[K, V]) Search(key K) *Node[K, V] {
	return m.SearchHash(key, m.hash(key))
}

// SearchHash is Search with a pre-computed hash of key.
func (m *Map[K, V]) SearchHash(key K, hash uint64) *Node[K, V] {
	if len(m.buckets) == 0 {
		return nil
	}
	for n := m.buckets[m.bucket(hash)]; n != nil; n = n.next {
		// Compare raw hashes first, keys only on a hash match.
		if n.hash == hash && m.equal(key, n.Key) {
			return n
		}
	}
	return nil
}

// First returns a node of the first non-empty bucket, or nil.
// Together with Next it visits every node exactly once, in an
// unspecified order. A rehash may reorder the walk.
func (m *Map[K, V]) First() *Node[K, V] {
	for _, n := range m.buckets {
		if n != nil {
			return n
		}
	}
	return nil
}

// Next returns the node following n in bucket order, or nil when n was
// the last. n must be linked in this map.
func (m *Map[K, V]) Next(n *Node[K, V]) *Node[K, V] {
	if n.next != nil {
		return n.next
	}
	for i := m.bucket(n.hash) + 1; i < len(m.buckets); i++ {
		if m.buckets[i] != nil {
			return m.buckets[i]
		}
	}
	return nil
}

// NextEqual returns the next node in n's bucket whose key is equal to
// n's key, or nil. Equal keys hash equally, so only one bucket needs
// walking.
func (m *Map[K, V]) NextEqual(n *Node[K, V]) *Node[K, V] {
	for c := n.next; c != nil; c = c.next {
		if c.hash == n.hash && m.equal(c.Key, n.Key) {
			return c
		}
	}
	return nil
}

// unlink removes n from its bucket chain without touching size.
// Returns false if n is not linked in this map.
func (m *Map[K, V]) unlink(n *Node[K, V]) bool {
	if len(m.buckets) == 0 {
		return false
	}
	i := m.bucket(n.hash)
	if m.buckets[i] == n {
		m.buckets[i] = n.next
		return true
	}
	for b := m.buckets[i]; b != nil; b = b.next {
		if b.next == n {
			b.next = n.next
			return true
		}
	}
	return false
}

// Erase removes n from the map and releases excess capacity.
// n must have been returned by this map and not erased before.
func (m *Map[K, V]) Erase(n *Node[K, V]) {
	m.FastErase(n)
	m.shrink()
}

// FastErase is Erase without the shrink check. Use when many nodes
// are erased in a row, with one Shrink call at the end.
func (m *Map[K, V]) FastErase(n *Node[K, V]) {
	if m.unlink(n) {
		n.next = nil
		m.size--
	}
}

// Move relocates n from m to dst, which must be a map of the same node
// type. The node itself is reused, not copied. If rekey is non-nil the
// node's key is replaced first. The node is always rehashed with dst's
// hash function so differing hashers between the maps stay consistent.
// The source map shrinks afterwards, releasing storage if it emptied.
func (m *Map[K, V]) Move(dst *Map[K, V], n *Node[K, V], rekey *K) {
	m.FastMove(dst, n, rekey)
	m.shrink()
}

// MoveHash is Move with a pre-computed hash for the node's (possibly
// new) key under dst's hash function.
func (m *Map[K, V]) MoveHash(dst *Map[K, V], n *Node[K, V], rekey *K, hash uint64) {
	m.fastMove(dst, n, rekey, &hash)
	m.shrink()
}

// FastMove is Move without the source shrink check.
func (m *Map[K, V]) FastMove(dst *Map[K, V], n *Node[K, V], rekey *K) {
	m.fastMove(dst, n, rekey, nil)
}

// FastMoveHash is MoveHash without the source shrink check.
func (m *Map[K, V]) FastMoveHash(dst *Map[K, V], n *Node[K, V], rekey *K, hash uint64) {
	m.fastMove(dst, n, rekey, &hash)
}

func (m *Map[K, V]) fastMove(dst *Map[K, V], n *Node[K, V], rekey *K, hash *uint64) {
	if dst == m && rekey == nil && hash == nil {
		return
	}
	if !m.unlink(n) {
		return
	}
	m.size--

	if rekey != nil {
		n.Key = *rekey
	}
	if hash != nil {
		n.hash = *hash
	} else {
		n.hash = dst.hash(n.Key)
	}

	dst.grow(dst.size + 1)
	dst.size++
	i := dst.bucket(n.hash)
	n.next = dst.buckets[i]
	dst.buckets[i] = n
}

// Merge moves every node of src into m, leaving src empty with its
// storage released. Nodes are rehashed with m's hash function.
func (m *Map[K, V]) Merge(src *Map[K, V]) {
	if src == m {
		return
	}
	m.grow(m.size + src.size)
	for _, n := range src.buckets {
		for n != nil {
			next := n.next
			n.hash = m.hash(n.Key)
			i := m.bucket(n.hash)
			n.next = m.buckets[i]
			m.buckets[i] = n
			n = next
		}
	}
	m.size += src.size
	src.size = 0
	src.buckets = nil
}

// BytesHash is an FNV-1a hash over a byte-slice key, suitable as a
// Map hash function together with BytesEqual.
func BytesHash(key []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(key) // fnv.Write never returns an error
	return h.Sum64()
}

// BytesEqual reports byte-wise equality of two keys.
func BytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StringHash is an FNV-1a hash over a string key.
func StringHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// StringEqual reports equality of two string keys.
func StringEqual(a, b string) bool { return a == b }

// Uint64Hash returns the key itself (identity hash).
func Uint64Hash(u uint64) uint64 { return u }

// Uint64Equal reports equality of two uint64 keys.
func Uint64Equal(a, b uint64) bool { return a == b }
