package vfs

import (
	"github.com/sharduld1908/weenix-go/hashtable"
)

type cacheKey struct {
	fsid string
	ino  uint
}

func hashCacheKey(k cacheKey) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(k.fsid); i++ {
		h = (h ^ uint32(k.fsid[i])) * 16777619
	}
	h ^= uint32(k.ino) * 2654435761
	return h
}

// vcache maps (filesystem instance id, inode number) to a live vnode,
// letting a filesystem's lookup return the same in-memory vnode for
// an inode that is already resident instead of constructing a
// duplicate.
var vcache = hashtable.MkHash[cacheKey, *Vnode](1024, hashCacheKey)

// CacheLookup returns the resident vnode for (fsid, ino), bumping its
// refcount, if one is cached.
func CacheLookup(fsid string, ino uint) (*Vnode, bool) {
	v, ok := vcache.Get(cacheKey{fsid, ino})
	if ok {
		v.Ref()
	}
	return v, ok
}

// CacheInsert records v as the resident vnode for (fsid, ino).
func CacheInsert(fsid string, ino uint, v *Vnode) {
	vcache.Set(cacheKey{fsid, ino}, v)
}

// CacheEvict removes the cache entry for (fsid, ino), used by a
// filesystem's onZero callback once a vnode's refcount reaches zero.
func CacheEvict(fsid string, ino uint) {
	vcache.Del(cacheKey{fsid, ino})
}
