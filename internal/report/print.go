package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/aaronmdjones/filemap/internal/fiemap"
	"github.com/aaronmdjones/filemap/internal/options"
	"github.com/aaronmdjones/filemap/internal/scan"
)

const (
	// rowFormat prints a mapped extent; the inode number is numeric so it
	// right-aligns the same way as the placeholder rows below.
	rowFormat = "%20s %20s %12s %12s %12d %12s %20s    %s\n"

	// strRowFormat prints the header and the rows whose cells are all
	// strings: hardlink placeholders and gap rows.
	strRowFormat = "%20s %20s %12s %12s %12s %12s %20s    %s\n"

	tableRuler = "-------------------- -------------------- ------------ ------------ ------------ ------------ --------------------    ------------\n\n"
)

// Printer renders the final report for a completed scan.
type Printer struct {
	w   io.Writer
	cfg *options.Config
}

// NewPrinter returns a Printer writing to w under the given options.
func NewPrinter(w io.Writer, cfg *options.Config) *Printer {
	return &Printer{w: w, cfg: cfg}
}

// Print writes the preamble and the extent table. extents must be the
// sorted extent list for g. A scan that mapped no extents prints nothing.
func (p *Printer) Print(g *scan.Graph, extents []*scan.Extent) {
	st := g.Stats()
	if st.Extents == 0 {
		return
	}

	if !p.cfg.SkipPreamble {
		p.preamble(g, st)
	}
	if p.cfg.FragmentedOnly && st.FragmentedInodes == 0 {
		return
	}

	fmt.Fprint(p.w, "\n")
	fmt.Fprintf(p.w, strRowFormat,
		"Extent Offset", "Extent Length", "Extent Count", "Extent Flags",
		"Inode Number", "Inode Flags", "File Size", "File Name(s)")
	fmt.Fprint(p.w, tableRuler)

	var prev *scan.Extent
	for _, ext := range extents {
		ino := g.Lookup(ext.Ino)
		if p.cfg.FragmentedOnly && ino.Flags&scan.InodeFragmented == 0 {
			continue
		}
		if p.cfg.PrintGaps && prev != nil && prev.Off+prev.Len < ext.Off {
			p.gapRow(g, prev.Off+prev.Len, ext.Off-(prev.Off+prev.Len))
		}
		p.extentRows(g, ino, ext)
		prev = ext
	}
}

func (p *Printer) preamble(g *scan.Graph, st scan.Stats) {
	// The unit lines describe table columns, so they are pointless when
	// the fragmented-only filter is about to suppress the table.
	if !(p.cfg.FragmentedOnly && st.FragmentedInodes == 0) {
		p.unitLine("Extent offsets are in ....... :", p.cfg.ReadableOffsets, g)
		p.unitLine("Extent lengths are in ....... :", p.cfg.ReadableLengths, g)
		if p.cfg.ReadableSizes {
			fmt.Fprint(p.w, "File sizes are in ........... : human-readable units\n")
		} else {
			fmt.Fprint(p.w, "File sizes are in ........... : bytes\n")
		}
	}

	if p.cfg.ScanDirectories {
		fmt.Fprintf(p.w, "Mapped ...................... : %d files & %d dirs (%d inodes) consisting of %d extents\n",
			st.Files, st.Dirs, st.Inodes, st.Extents)
	} else {
		fmt.Fprintf(p.w, "Mapped ...................... : %d files (%d inodes) consisting of %d extents\n",
			st.Files, st.Inodes, st.Extents)
	}

	if st.FragmentedInodes > 0 {
		fmt.Fprintf(p.w, "Fragmented inodes ........... : %d/%d (%.2f%%); average %.2f extents per fragmented inode\n",
			st.FragmentedInodes, st.Inodes, st.FragmentedPct, st.AvgFragExtents)
	}

	if p.cfg.FragmentedOnly {
		which := "files"
		if p.cfg.ScanDirectories {
			which = "files & dirs"
		}
		fmt.Fprint(p.w, "\n")
		if st.FragmentedInodes > 0 {
			fmt.Fprintf(p.w, "Requested to show only fragmented %s\n", which)
		} else {
			fmt.Fprintf(p.w, "Requested to show only fragmented %s; however, there are none\n", which)
		}
	}
}

func (p *Printer) unitLine(label string, readable bool, g *scan.Graph) {
	switch {
	case readable:
		fmt.Fprintf(p.w, "%s human-readable units\n", label)
	case g.IntegralBlockSize():
		fmt.Fprintf(p.w, "%s multiples of filesystem blocks (%d bytes)\n", label, g.BlockSize())
	default:
		fmt.Fprintf(p.w, "%s bytes\n", label)
	}
}

// extentRows prints one extent. The full row carries the inode's first
// name. The first time an inode appears, each additional name gets a
// "----" placeholder row; on later appearances a single "++++" row stands
// in for all of them.
func (p *Printer) extentRows(g *scan.Graph, ino *scan.Inode, ext *scan.Extent) {
	for i, name := range ino.Names {
		if i == 0 {
			fmt.Fprintf(p.w, rowFormat,
				p.quantityCell(ext.Off, p.cfg.ReadableOffsets, g),
				p.quantityCell(ext.Len, p.cfg.ReadableLengths, g),
				fmt.Sprintf("%d/%d", ext.Pos, len(ino.Extents)),
				extentFlags(ext, ino),
				ino.Ino,
				inodeFlags(ino),
				p.fileSizeCell(uint64(ino.Stat.Size)),
				name)
			continue
		}
		if ino.Flags&scan.InodePrinted == 0 {
			fmt.Fprintf(p.w, strRowFormat,
				"----", "----", "----", "----", "----", "----", "----", name)
		} else {
			fmt.Fprintf(p.w, strRowFormat,
				"++++", "++++", "++++", "++++", "++++", "++++", "++++", "++++")
			break
		}
	}
	ino.Flags |= scan.InodePrinted
}

// gapRow reports unmapped space between two neighbouring extents in the
// table. Only the offset, length, and name columns carry anything.
func (p *Printer) gapRow(g *scan.Graph, off, length uint64) {
	fmt.Fprintf(p.w, strRowFormat,
		p.quantityCell(off, p.cfg.ReadableOffsets, g),
		p.quantityCell(length, p.cfg.ReadableGaps, g),
		"", "", "", "", "",
		"(gap)")
}

// quantityCell renders a byte quantity for the offset, length, and gap
// columns: humanized when its toggle is on, in whole filesystem blocks when
// every extent was block-aligned, in raw bytes otherwise.
func (p *Printer) quantityCell(v uint64, readable bool, g *scan.Graph) string {
	if readable {
		return humanize.IBytes(v)
	}
	if g.IntegralBlockSize() {
		return strconv.FormatUint(v/g.BlockSize(), 10)
	}
	return strconv.FormatUint(v, 10)
}

// fileSizeCell renders the file size column, which is never block-scaled.
func (p *Printer) fileSizeCell(v uint64) string {
	if p.cfg.ReadableSizes {
		return humanize.IBytes(v)
	}
	return strconv.FormatUint(v, 10)
}

func inodeFlags(ino *scan.Inode) string {
	var b strings.Builder
	if ino.Flags&scan.InodeUnaligned != 0 {
		b.WriteByte('A')
	}
	if ino.IsDir() {
		b.WriteByte('D')
	}
	// An inode counts as not-contiguous if its extents are out of place or
	// if there is more than one of them.
	if ino.Flags&scan.InodeFragmented != 0 || len(ino.Extents) != 1 {
		b.WriteByte('F')
	}
	if len(ino.Names) > 1 {
		b.WriteByte('L')
	}
	if len(ino.Extents) > 1 {
		b.WriteByte('M')
	}
	if ino.Flags&scan.InodeUnordered != 0 {
		b.WriteByte('U')
	}
	return b.String()
}

func extentFlags(ext *scan.Extent, ino *scan.Inode) string {
	var b strings.Builder
	if ext.Flags&fiemap.FIEMAP_EXTENT_NOT_ALIGNED != 0 {
		b.WriteByte('A')
	}
	// The inode's data continues in a later extent.
	if len(ino.Extents) > 1 && ext.Pos != uint64(len(ino.Extents)) {
		b.WriteByte('C')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_DELALLOC != 0 {
		b.WriteByte('D')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_LAST != 0 {
		b.WriteByte('E')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_DATA_INLINE != 0 {
		b.WriteByte('I')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_MERGED != 0 {
		b.WriteByte('M')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_DATA_TAIL != 0 {
		b.WriteByte('T')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_UNKNOWN != 0 {
		b.WriteByte('U')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_UNWRITTEN != 0 {
		b.WriteByte('W')
	}
	if ext.Flags&fiemap.FIEMAP_EXTENT_ENCODED != 0 {
		b.WriteByte('X')
	}
	return b.String()
}
