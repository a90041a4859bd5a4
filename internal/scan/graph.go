package scan

import (
	"sort"

	"golang.org/x/sys/unix"

	"github.com/aaronmdjones/filemap/internal/fiemap"
)

// Inode flag bits set by the classifier (and one by the reporter).
const (
	// InodeFragmented is set when any extent starts past the end of the
	// one before it
	InodeFragmented uint32 = 1 << iota
	// InodeUnordered is set when any extent starts before the one before
	// it; always accompanied by InodeFragmented
	InodeUnordered
	// InodeUnaligned is set when any extent offset or length is not a
	// multiple of the filesystem block size
	InodeUnaligned
	// InodePrinted marks inodes whose names have already been listed in
	// the report
	InodePrinted
)

// Extent is one physical extent recorded in the graph. Extents are keyed by
// Off across the whole graph: no two inodes may claim the same volume byte.
type Extent struct {
	Off   uint64 // physical offset in the volume, in bytes
	Len   uint64 // length in bytes
	Pos   uint64 // 1-based position within the owning inode's data
	Flags uint32 // kernel extent flags
	Ino   uint64 // owning inode number
}

// Inode aggregates everything known about one inode: the metadata snapshot
// from when it was first seen, its extents in logical order, and every path
// that refers to it.
type Inode struct {
	Ino     uint64
	Stat    unix.Stat_t
	Extents []*Extent
	Names   []string // kept sorted alphabetically
	Flags   uint32
}

// IsDir reports whether the inode is a directory.
func (ino *Inode) IsDir() bool {
	return ino.Stat.Mode&unix.S_IFMT == unix.S_IFDIR
}

// CanonicalName returns the alphabetically first path that refers to the
// inode. It is the name shown on extent rows and the key for name ordering.
func (ino *Inode) CanonicalName() string {
	return ino.Names[0]
}

// Graph holds every inode and extent found by a scan.
type Graph struct {
	inodes  map[uint64]*Inode
	extents map[uint64]*Extent

	blockSize   uint64
	integralBlk bool

	files uint64
	dirs  uint64
}

// NewGraph returns an empty graph. blockSize is the scan root's preferred
// I/O block size; extents are classified as aligned or not against it.
func NewGraph(blockSize uint64) *Graph {
	return &Graph{
		inodes:      make(map[uint64]*Inode),
		extents:     make(map[uint64]*Extent),
		blockSize:   blockSize,
		integralBlk: true,
	}
}

// BlockSize returns the block size the graph classifies against.
func (g *Graph) BlockSize() uint64 {
	return g.blockSize
}

// IntegralBlockSize reports whether every extent offset and length seen so
// far was a multiple of the block size.
func (g *Graph) IntegralBlockSize() bool {
	return g.integralBlk
}

// Lookup returns the inode with the given number, or nil. A hit means the
// caller found a hardlink and only a name needs recording.
func (g *Graph) Lookup(ino uint64) *Inode {
	return g.inodes[ino]
}

// Insert registers a new inode and its extents, classifying each adjacent
// extent pair as it goes. The extents must be in logical order, as the
// kernel returns them. An extent whose physical offset is already claimed
// by any inode yields ErrSharedExtent. A file with no extents is valid.
func (g *Graph) Insert(st *unix.Stat_t, exts []fiemap.Extent) (*Inode, error) {
	ino := &Inode{Ino: st.Ino, Stat: *st}

	// The inode enters the graph before its extents so that every
	// extent's owner is resolvable at all times.
	g.inodes[st.Ino] = ino

	for i, fe := range exts {
		if _, taken := g.extents[fe.Physical]; taken {
			return nil, ErrSharedExtent
		}

		ext := &Extent{
			Off:   fe.Physical,
			Len:   fe.Length,
			Pos:   uint64(i + 1),
			Flags: fe.Flags,
			Ino:   st.Ino,
		}

		if i > 0 {
			prev := exts[i-1]
			if fe.Physical > prev.Physical+prev.Length {
				ino.Flags |= InodeFragmented
			}
			if fe.Physical < prev.Physical {
				ino.Flags |= InodeFragmented | InodeUnordered
			}
		}
		if fe.Physical%g.blockSize != 0 || fe.Length%g.blockSize != 0 {
			ino.Flags |= InodeUnaligned
			g.integralBlk = false
		}

		g.extents[fe.Physical] = ext
		ino.Extents = append(ino.Extents, ext)
	}

	return ino, nil
}

// AddName records one more path that refers to ino, keeping Names sorted.
// Directory names are stored with a trailing slash unless the path is the
// filesystem root itself. Every call counts one file or directory.
func (g *Graph) AddName(ino *Inode, path string) {
	name := path
	if ino.IsDir() {
		g.dirs++
		if path != "/" {
			name = path + "/"
		}
	} else {
		g.files++
	}

	i := sort.SearchStrings(ino.Names, name)
	ino.Names = append(ino.Names, "")
	copy(ino.Names[i+1:], ino.Names[i:])
	ino.Names[i] = name
}
