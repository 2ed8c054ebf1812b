// Package hashtable implements a small bucketed hash table, adapted
// from the teacher's sharded-lock design. Used by the VFS layer as a
// vnode cache keyed by (filesystem id, inode number).
package hashtable

import deadlock "github.com/sasha-s/go-deadlock"

type elem[K comparable, V any] struct {
	key  K
	val  V
	next *elem[K, V]
}

type bucket[K comparable, V any] struct {
	deadlock.RWMutex
	first *elem[K, V]
}

func (b *bucket[K, V]) len() int {
	b.RLock()
	defer b.RUnlock()
	n := 0
	for e := b.first; e != nil; e = e.next {
		n++
	}
	return n
}

// Hashtable_t maps keys to values, sharding locking by bucket so that
// lookups and inserts to different buckets never contend.
type Hashtable_t[K comparable, V any] struct {
	table []*bucket[K, V]
	hashf func(K) uint32
}

// MkHash allocates a new Hashtable_t with size buckets, hashing keys
// with hashf.
func MkHash[K comparable, V any](size int, hashf func(K) uint32) *Hashtable_t[K, V] {
	ht := &Hashtable_t[K, V]{
		table: make([]*bucket[K, V], size),
		hashf: hashf,
	}
	for i := range ht.table {
		ht.table[i] = &bucket[K, V]{}
	}
	return ht
}

func (ht *Hashtable_t[K, V]) bucketFor(key K) *bucket[K, V] {
	h := ht.hashf(key)
	return ht.table[int(h)%len(ht.table)]
}

// Size returns the total number of elements stored in the table.
func (ht *Hashtable_t[K, V]) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

// Get looks up key and returns its value.
func (ht *Hashtable_t[K, V]) Get(key K) (V, bool) {
	b := ht.bucketFor(key)
	b.RLock()
	defer b.RUnlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Set inserts key/value, returning false without modifying the table
// if key was already present.
func (ht *Hashtable_t[K, V]) Set(key K, val V) bool {
	b := ht.bucketFor(key)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return false
		}
	}
	b.first = &elem[K, V]{key: key, val: val, next: b.first}
	return true
}

// Del removes key from the table, if present.
func (ht *Hashtable_t[K, V]) Del(key K) {
	b := ht.bucketFor(key)
	b.Lock()
	defer b.Unlock()
	var last *elem[K, V]
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			if last == nil {
				b.first = e.next
			} else {
				last.next = e.next
			}
			return
		}
		last = e
	}
}
