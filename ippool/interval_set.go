// Package ippool finds free addresses inside the pools configured on a
// router. Allocated addresses are kept as ranges of consecutive IPs in a
// B-tree, so Add, Remove and NextFree run in O(log n) even for large pools.
package ippool

import (
	"github.com/google/btree"
)

// span is a run of consecutive allocated addresses [lo, hi], stored in
// host byte order.
type span struct {
	lo, hi uint32
}

func (a span) Less(b btree.Item) bool {
	return a.lo < b.(span).lo
}

// AddressSet is the set of currently allocated addresses.
type AddressSet struct {
	tree *btree.BTree
}

func NewAddressSet() *AddressSet {
	return &AddressSet{tree: btree.New(2)}
}

// Add marks one address as allocated, merging with neighbouring spans so
// adjacent addresses always collapse into one item.
func (s *AddressSet) Add(ip uint32) {
	iv := span{ip, ip}

	var prev *span
	s.tree.DescendLessOrEqual(iv, func(it btree.Item) bool {
		p := it.(span)
		if p.hi+1 >= ip {
			prev = &p
		}
		return false
	})

	if prev != nil {
		if ip <= prev.hi {
			return // already allocated
		}
		s.tree.Delete(*prev)
		prev.hi = ip
		// the span to the right may now touch us
		var next *span
		s.tree.AscendGreaterOrEqual(*prev, func(it btree.Item) bool {
			n := it.(span)
			if prev.hi+1 >= n.lo {
				next = &n
			}
			return false
		})
		if next != nil {
			s.tree.Delete(*next)
			if next.hi > prev.hi {
				prev.hi = next.hi
			}
		}
		s.tree.ReplaceOrInsert(*prev)
		return
	}

	var next *span
	s.tree.AscendGreaterOrEqual(iv, func(it btree.Item) bool {
		n := it.(span)
		if n.lo <= ip+1 {
			next = &n
		}
		return false
	})
	if next != nil {
		s.tree.Delete(*next)
		if ip < next.lo {
			next.lo = ip
		}
		s.tree.ReplaceOrInsert(*next)
		return
	}
	s.tree.ReplaceOrInsert(iv)
}

// Remove frees one address, splitting its span when it sat in the middle.
func (s *AddressSet) Remove(ip uint32) {
	iv := span{ip, ip}
	var target *span
	s.tree.DescendLessOrEqual(iv, func(it btree.Item) bool {
		p := it.(span)
		if p.lo <= ip && ip <= p.hi {
			target = &p
		}
		return false
	})
	if target == nil {
		return
	}
	s.tree.Delete(*target)
	if target.lo < ip {
		s.tree.ReplaceOrInsert(span{target.lo, ip - 1})
	}
	if ip < target.hi {
		s.tree.ReplaceOrInsert(span{ip + 1, target.hi})
	}
}

// Contains reports whether the address is allocated.
func (s *AddressSet) Contains(ip uint32) bool {
	iv := span{ip, ip}
	found := false
	s.tree.DescendLessOrEqual(iv, func(it btree.Item) bool {
		p := it.(span)
		found = p.lo <= ip && ip <= p.hi
		return false
	})
	return found
}

// NextFree returns the smallest unallocated address >= from.
func (s *AddressSet) NextFree(from uint32) uint32 {
	iv := span{from, from}
	res := from
	s.tree.DescendLessOrEqual(iv, func(it btree.Item) bool {
		p := it.(span)
		if p.lo <= from && from <= p.hi {
			res = p.hi + 1
		}
		return false
	})
	return res
}
