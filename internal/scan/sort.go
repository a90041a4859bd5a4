package scan

import (
	"cmp"
	"sort"
	"strings"
)

// SortDirection selects ascending or descending result order.
type SortDirection int

const (
	SortAscending SortDirection = iota + 1
	SortDescending
)

// SortMethod selects the key extents are ordered by. Inode-keyed methods
// compare every extent through its owning inode, so all of an inode's
// extents stay together under them.
type SortMethod int

const (
	SortByExtentOffset SortMethod = iota + 1
	SortByExtentLength
	SortByInodeExtentCount
	SortByInodeLinkCount
	SortByInodeNumber
	SortByFileSize
	SortByFileName
)

func (g *Graph) owner(e *Extent) *Inode {
	return g.inodes[e.Ino]
}

// compare returns the three-way ordering of a and b under method.
func (g *Graph) compare(a, b *Extent, method SortMethod) int {
	switch method {
	case SortByExtentOffset:
		return cmp.Compare(a.Off, b.Off)
	case SortByExtentLength:
		return cmp.Compare(a.Len, b.Len)
	case SortByInodeExtentCount:
		return cmp.Compare(len(g.owner(a).Extents), len(g.owner(b).Extents))
	case SortByInodeLinkCount:
		return cmp.Compare(len(g.owner(a).Names), len(g.owner(b).Names))
	case SortByInodeNumber:
		return cmp.Compare(a.Ino, b.Ino)
	case SortByFileSize:
		return cmp.Compare(g.owner(a).Stat.Size, g.owner(b).Stat.Size)
	case SortByFileName:
		return strings.Compare(g.owner(a).CanonicalName(), g.owner(b).CanonicalName())
	}
	return 0
}

// SortedExtents returns every extent in the graph ordered by method and
// direction. Descending order is the exact reverse of ascending: the
// three-way comparison is negated, never reimplemented per method.
//
// The snapshot is pre-ordered by physical offset, the graph's unique key,
// so ties under the requested method resolve the same way on every call.
func (g *Graph) SortedExtents(method SortMethod, direction SortDirection) []*Extent {
	exts := make([]*Extent, 0, len(g.extents))
	for _, e := range g.extents {
		exts = append(exts, e)
	}
	sort.Slice(exts, func(i, j int) bool {
		return exts[i].Off < exts[j].Off
	})

	sort.SliceStable(exts, func(i, j int) bool {
		c := g.compare(exts[i], exts[j], method)
		if direction == SortDescending {
			c = -c
		}
		return c < 0
	})

	return exts
}
