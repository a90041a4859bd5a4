package scan

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/aaronmdjones/filemap/internal/fiemap"
	"github.com/aaronmdjones/filemap/internal/logging"
)

var logger = logging.GetLogger().WithPrefix("scan")

// StatusFunc receives one-line progress messages while a scan runs.
type StatusFunc func(format string, args ...interface{})

// Config controls what a Scanner visits and how.
type Config struct {
	// ScanDirectories queries each directory's own extents after its
	// children are done.
	ScanDirectories bool
	// SyncFiles flushes everything to storage before it is examined:
	// directories with fsync(2), files through the extent query itself.
	SyncFiles bool
	// Status, when non-nil, is called with progress messages.
	Status StatusFunc
}

// extentMapper is satisfied by fiemap.Mapper. Tests substitute their own.
type extentMapper interface {
	Map(fd int, sync bool) ([]fiemap.Extent, error)
}

// Scanner performs one depth-first scan of a tree, filling a Graph. It
// never leaves the filesystem the root is on, never follows symlinks, and
// stops at the first failure.
type Scanner struct {
	cfg    Config
	mapper extentMapper
	graph  *Graph
}

// New returns a Scanner with the given configuration.
func New(cfg Config) *Scanner {
	return &Scanner{
		cfg:    cfg,
		mapper: fiemap.NewMapper(),
	}
}

// Run scans the tree rooted at path and returns the populated graph. The
// root may be a directory or a single regular file; anything else is
// ErrNotFileOrDir. The root's block size becomes the graph's classification
// and display unit.
func (s *Scanner) Run(path string) (*Graph, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &Error{Op: OpOpen, Path: path, Err: err}
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, &Error{Op: OpFstat, Path: path, Err: err}
	}

	s.graph = NewGraph(uint64(st.Blksize))

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		err = s.scanDirectory(fd, &st, path)
	case unix.S_IFREG:
		err = s.scanExtents(fd, &st, path)
	default:
		err = fmt.Errorf("while scanning '%s': %w", path, ErrNotFileOrDir)
	}
	if err != nil {
		return nil, err
	}

	return s.graph, nil
}

// scanDirectory walks one directory. The descriptor is borrowed: the caller
// opened it and closes it on every path.
func (s *Scanner) scanDirectory(fd int, st *unix.Stat_t, path string) error {
	s.progress("scanning %s ...", path)

	if s.cfg.SyncFiles {
		if err := unix.Fsync(fd); err != nil {
			return &Error{Op: OpFsync, Path: path, Err: err}
		}
	}

	buf := make([]byte, 8192)
	var names []string
	for {
		s.progress("walking %s ...", path)

		n, err := unix.ReadDirent(fd, buf)
		if err != nil {
			return &Error{Op: OpReadDir, Path: path, Err: err}
		}
		if n == 0 {
			break
		}

		// ParseDirent omits "." and "..", which would otherwise loop.
		names = names[:0]
		_, _, names = unix.ParseDirent(buf[:n], -1, names)

		for _, name := range names {
			if err := s.scanEntry(fd, st, path, name); err != nil {
				return err
			}
		}
	}

	if s.cfg.ScanDirectories {
		return s.scanExtents(fd, st, path)
	}
	return nil
}

// scanEntry handles a single directory entry: stat it, filter it, open it,
// verify it again through the descriptor, then descend or map it.
func (s *Scanner) scanEntry(dirfd int, dirStat *unix.Stat_t, dirPath, name string) error {
	entpath := entryPath(dirPath, name)

	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &Error{Op: OpFstatat, Path: entpath, Err: err}
	}
	if !wantEntry(dirStat, &st) {
		logger.Debug("skipping %s", entpath)
		return nil
	}

	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return &Error{Op: OpOpenat, Path: entpath, Err: err}
	}

	// Stat again through the descriptor: the entry may have been swapped
	// out between fstatat and openat.
	st = unix.Stat_t{}
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return &Error{Op: OpFstat, Path: entpath, Err: err}
	}
	if st.Dev != dirStat.Dev {
		unix.Close(fd)
		return nil
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		err = s.scanDirectory(fd, &st, entpath)
	case unix.S_IFREG:
		err = s.scanExtents(fd, &st, entpath)
	default:
		err = nil
	}
	unix.Close(fd)
	return err
}

// scanExtents records the extents and the name of one file or directory.
// The descriptor is borrowed.
func (s *Scanner) scanExtents(fd int, st *unix.Stat_t, path string) error {
	s.progress("mapping %s ...", path)

	if ino := s.graph.Lookup(st.Ino); ino != nil {
		// A hardlink to an inode already mapped: record the name only.
		logger.Trace("hardlink: %s -> inode %d", path, st.Ino)
		s.graph.AddName(ino, path)
		return nil
	}

	exts, err := s.mapper.Map(fd, s.cfg.SyncFiles)
	if err != nil {
		return &Error{Op: OpFiemap, Path: path, Err: err}
	}

	ino, err := s.graph.Insert(st, exts)
	if err != nil {
		return fmt.Errorf("while scanning '%s': %w", path, err)
	}
	s.graph.AddName(ino, path)
	return nil
}

// wantEntry decides from the pre-open stat whether a directory entry gets
// opened at all: it must live on the same device as its parent and be a
// regular file or directory.
func wantEntry(parent, entry *unix.Stat_t) bool {
	if entry.Dev != parent.Dev {
		return false
	}
	switch entry.Mode & unix.S_IFMT {
	case unix.S_IFDIR, unix.S_IFREG:
		return true
	}
	return false
}

// entryPath joins a directory path and an entry name. Nothing is cleaned:
// the root path stays spelled the way the user gave it.
func entryPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func (s *Scanner) progress(format string, args ...interface{}) {
	if s.cfg.Status != nil {
		s.cfg.Status(format, args...)
	}
}
