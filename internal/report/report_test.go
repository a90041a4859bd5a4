package report

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/aaronmdjones/filemap/internal/fiemap"
	"github.com/aaronmdjones/filemap/internal/options"
	"github.com/aaronmdjones/filemap/internal/scan"
)

func regStat(ino uint64, size int64) *unix.Stat_t {
	return &unix.Stat_t{Ino: ino, Size: size, Mode: unix.S_IFREG | 0o644, Blksize: 4096}
}

func dirStat(ino uint64) *unix.Stat_t {
	return &unix.Stat_t{Ino: ino, Size: 4096, Mode: unix.S_IFDIR | 0o755, Blksize: 4096}
}

func mustInsert(t *testing.T, g *scan.Graph, st *unix.Stat_t, exts []fiemap.Extent, names ...string) *scan.Inode {
	t.Helper()
	ino, err := g.Insert(st, exts)
	if err != nil {
		t.Fatalf("Insert(ino %d): %v", st.Ino, err)
	}
	for _, name := range names {
		g.AddName(ino, name)
	}
	return ino
}

// tableGraph builds a two-inode fixture: a hardlinked contiguous file at
// block 2 and a fragmented file with extents at blocks 4 and 10.
func tableGraph(t *testing.T) (*scan.Graph, []*scan.Extent) {
	t.Helper()
	g := scan.NewGraph(4096)

	mustInsert(t, g, regStat(1, 4096), []fiemap.Extent{
		{Logical: 0, Physical: 8192, Length: 4096, Flags: fiemap.FIEMAP_EXTENT_LAST},
	}, "/data/one", "/data/two")

	mustInsert(t, g, regStat(2, 12288), []fiemap.Extent{
		{Logical: 0, Physical: 16384, Length: 4096},
		{Logical: 8192, Physical: 40960, Length: 4096, Flags: fiemap.FIEMAP_EXTENT_LAST},
	}, "/data/three")

	return g, g.SortedExtents(scan.SortByExtentOffset, scan.SortAscending)
}

func render(g *scan.Graph, exts []*scan.Extent, cfg *options.Config) string {
	var buf bytes.Buffer
	NewPrinter(&buf, cfg).Print(g, exts)
	return buf.String()
}

// dataRows returns the whitespace-split cells of every table row below the
// ruler. Empty cells vanish, so fixtures are built to keep every flag cell
// populated where this is used.
func dataRows(t *testing.T, out string) [][]string {
	t.Helper()
	lines := strings.Split(out, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "-----") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		t.Fatalf("no table ruler in output:\n%s", out)
	}
	var rows [][]string
	for _, line := range lines[start:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func linesWith(out, substr string) []string {
	var hits []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, substr) {
			hits = append(hits, line)
		}
	}
	return hits
}

func TestPrintTable(t *testing.T) {
	g, exts := tableGraph(t)
	out := render(g, exts, &options.Config{})

	for _, want := range []string{
		"Extent offsets are in ....... : multiples of filesystem blocks (4096 bytes)\n",
		"Extent lengths are in ....... : multiples of filesystem blocks (4096 bytes)\n",
		"File sizes are in ........... : bytes\n",
		"Mapped ...................... : 3 files (2 inodes) consisting of 3 extents\n",
		"Fragmented inodes ........... : 1/2 (50.00%); average 2.00 extents per fragmented inode\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("preamble missing %q in output:\n%s", want, out)
		}
	}

	if hdr := linesWith(out, "Extent Offset"); len(hdr) != 1 || !strings.Contains(hdr[0], "File Name(s)") {
		t.Errorf("bad header lines %q", hdr)
	}

	want := [][]string{
		{"2", "1", "1/1", "E", "1", "L", "4096", "/data/one"},
		{"----", "----", "----", "----", "----", "----", "----", "/data/two"},
		{"4", "1", "1/2", "C", "2", "FM", "12288", "/data/three"},
		{"10", "1", "2/2", "E", "2", "FM", "12288", "/data/three"},
	}
	if rows := dataRows(t, out); !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v\noutput:\n%s", rows, want, out)
	}
}

func TestPrintTableWithDirectories(t *testing.T) {
	g := scan.NewGraph(4096)
	mustInsert(t, g, dirStat(10), []fiemap.Extent{
		{Logical: 0, Physical: 4096, Length: 4096, Flags: fiemap.FIEMAP_EXTENT_LAST},
	}, "/tree")
	mustInsert(t, g, regStat(11, 4096), []fiemap.Extent{
		{Logical: 0, Physical: 12288, Length: 4096, Flags: fiemap.FIEMAP_EXTENT_LAST},
	}, "/tree/file")
	exts := g.SortedExtents(scan.SortByExtentOffset, scan.SortAscending)

	out := render(g, exts, &options.Config{ScanDirectories: true})

	if !strings.Contains(out, "Mapped ...................... : 1 files & 1 dirs (2 inodes) consisting of 2 extents\n") {
		t.Errorf("missing dirs variant of Mapped line:\n%s", out)
	}

	rows := dataRows(t, out)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2:\n%s", len(rows), out)
	}
	if rows[0][5] != "D" || rows[0][7] != "/tree/" {
		t.Errorf("dir row = %v, want D flag and trailing slash", rows[0])
	}
}

func TestPrintEmptyGraph(t *testing.T) {
	g := scan.NewGraph(4096)
	exts := g.SortedExtents(scan.SortByExtentOffset, scan.SortAscending)
	if out := render(g, exts, &options.Config{}); out != "" {
		t.Errorf("empty scan printed %q, want nothing", out)
	}
}

func TestPrintFragmentedOnly(t *testing.T) {
	g, exts := tableGraph(t)
	out := render(g, exts, &options.Config{FragmentedOnly: true})

	if !strings.Contains(out, "Requested to show only fragmented files\n") {
		t.Errorf("missing fragmented-only notice:\n%s", out)
	}
	if strings.Contains(out, "/data/one") {
		t.Errorf("contiguous inode leaked into fragmented-only output:\n%s", out)
	}
	if got := linesWith(out, "/data/three"); len(got) != 2 {
		t.Errorf("fragmented inode rows = %d, want 2:\n%s", len(got), out)
	}
}

func TestPrintFragmentedOnlyNoneFragmented(t *testing.T) {
	g := scan.NewGraph(4096)
	mustInsert(t, g, regStat(1, 4096), []fiemap.Extent{
		{Logical: 0, Physical: 8192, Length: 4096, Flags: fiemap.FIEMAP_EXTENT_LAST},
	}, "/data/one")
	exts := g.SortedExtents(scan.SortByExtentOffset, scan.SortAscending)

	out := render(g, exts, &options.Config{FragmentedOnly: true})

	if !strings.Contains(out, "Requested to show only fragmented files; however, there are none\n") {
		t.Errorf("missing there-are-none notice:\n%s", out)
	}
	if !strings.Contains(out, "Mapped ...................... : 1 files (1 inodes) consisting of 1 extents\n") {
		t.Errorf("missing Mapped line:\n%s", out)
	}
	// No table and no unit lines when nothing will be listed.
	if strings.Contains(out, "Extent Offset") || strings.Contains(out, "Extent offsets are in") {
		t.Errorf("table material printed despite empty selection:\n%s", out)
	}
}

func TestPrintSkipPreamble(t *testing.T) {
	g, exts := tableGraph(t)
	out := render(g, exts, &options.Config{SkipPreamble: true})

	if strings.Contains(out, "Mapped") || strings.Contains(out, "Extent offsets are in") {
		t.Errorf("preamble printed despite skip:\n%s", out)
	}
	if len(linesWith(out, "Extent Offset")) != 1 || len(linesWith(out, "/data/one")) != 1 {
		t.Errorf("table missing or duplicated:\n%s", out)
	}
}

func TestPrintReadableUnits(t *testing.T) {
	g, exts := tableGraph(t)
	out := render(g, exts, &options.Config{
		ReadableOffsets: true,
		ReadableLengths: true,
		ReadableSizes:   true,
	})

	for _, want := range []string{
		"Extent offsets are in ....... : human-readable units\n",
		"Extent lengths are in ....... : human-readable units\n",
		"File sizes are in ........... : human-readable units\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("preamble missing %q:\n%s", want, out)
		}
	}

	one := linesWith(out, "/data/one")
	if len(one) != 1 || !strings.Contains(one[0], "8.0 KiB") || !strings.Contains(one[0], "4.0 KiB") {
		t.Errorf("humanized row for /data/one = %q", one)
	}
	three := linesWith(out, "/data/three")
	if len(three) != 2 || !strings.Contains(three[0], "16 KiB") || !strings.Contains(three[0], "12 KiB") {
		t.Errorf("humanized rows for /data/three = %q", three)
	}
}

func TestPrintGaps(t *testing.T) {
	g, exts := tableGraph(t)

	if out := render(g, exts, &options.Config{}); len(linesWith(out, "(gap)")) != 0 {
		t.Errorf("gap rows printed without the gaps option:\n%s", out)
	}

	out := render(g, exts, &options.Config{PrintGaps: true})
	gaps := dataRows(t, out)
	var gapRows [][]string
	for _, row := range gaps {
		if row[len(row)-1] == "(gap)" {
			gapRows = append(gapRows, row)
		}
	}
	// Blocks 3..3 between inodes 1 and 2, blocks 5..9 inside inode 2.
	want := [][]string{
		{"3", "1", "(gap)"},
		{"5", "5", "(gap)"},
	}
	if !reflect.DeepEqual(gapRows, want) {
		t.Errorf("gap rows = %v, want %v\noutput:\n%s", gapRows, want, out)
	}
}

func TestPrintGapsReadable(t *testing.T) {
	g, exts := tableGraph(t)
	out := render(g, exts, &options.Config{PrintGaps: true, ReadableGaps: true})

	gaps := linesWith(out, "(gap)")
	if len(gaps) != 2 {
		t.Fatalf("gap rows = %d, want 2:\n%s", len(gaps), out)
	}
	// Gap lengths humanize while their offsets stay in blocks.
	if !strings.Contains(gaps[0], "4.0 KiB") || !strings.HasSuffix(strings.Fields(gaps[0])[0], "3") {
		t.Errorf("first gap row = %q", gaps[0])
	}
	if !strings.Contains(gaps[1], "20 KiB") {
		t.Errorf("second gap row = %q", gaps[1])
	}
}

func TestPrintRawBytesWhenUnaligned(t *testing.T) {
	g := scan.NewGraph(4096)
	mustInsert(t, g, regStat(1, 2048), []fiemap.Extent{
		{Logical: 0, Physical: 8192, Length: 2048,
			Flags: fiemap.FIEMAP_EXTENT_NOT_ALIGNED | fiemap.FIEMAP_EXTENT_LAST},
	}, "/f")
	exts := g.SortedExtents(scan.SortByExtentOffset, scan.SortAscending)

	out := render(g, exts, &options.Config{})

	if !strings.Contains(out, "Extent offsets are in ....... : bytes\n") {
		t.Errorf("unit line not in bytes despite unaligned extent:\n%s", out)
	}
	want := [][]string{{"8192", "2048", "1/1", "AE", "1", "A", "2048", "/f"}}
	if rows := dataRows(t, out); !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v\noutput:\n%s", rows, want, out)
	}
}

func TestPrintHardlinkContinuation(t *testing.T) {
	g := scan.NewGraph(4096)
	mustInsert(t, g, regStat(7, 8192), []fiemap.Extent{
		{Logical: 0, Physical: 4096, Length: 4096},
		{Logical: 4096, Physical: 40960, Length: 4096, Flags: fiemap.FIEMAP_EXTENT_LAST},
	}, "/a", "/b")
	exts := g.SortedExtents(scan.SortByExtentOffset, scan.SortAscending)

	out := render(g, exts, &options.Config{})

	want := [][]string{
		{"1", "1", "1/2", "C", "7", "FLM", "8192", "/a"},
		{"----", "----", "----", "----", "----", "----", "----", "/b"},
		{"10", "1", "2/2", "E", "7", "FLM", "8192", "/a"},
		{"++++", "++++", "++++", "++++", "++++", "++++", "++++", "++++"},
	}
	if rows := dataRows(t, out); !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v\noutput:\n%s", rows, want, out)
	}
}

func TestInodeFlagLetters(t *testing.T) {
	tests := []struct {
		name string
		ino  *scan.Inode
		want string
	}{
		{
			name: "everything",
			ino: &scan.Inode{
				Stat:    unix.Stat_t{Mode: unix.S_IFDIR},
				Flags:   scan.InodeUnaligned | scan.InodeFragmented | scan.InodeUnordered,
				Extents: make([]*scan.Extent, 2),
				Names:   []string{"/a/", "/b/"},
			},
			want: "ADFLMU",
		},
		{
			name: "plain file",
			ino: &scan.Inode{
				Stat:    unix.Stat_t{Mode: unix.S_IFREG},
				Extents: make([]*scan.Extent, 1),
				Names:   []string{"/f"},
			},
			want: "",
		},
		{
			name: "multiple extents imply not contiguous",
			ino: &scan.Inode{
				Stat:    unix.Stat_t{Mode: unix.S_IFREG},
				Extents: make([]*scan.Extent, 2),
				Names:   []string{"/f"},
			},
			want: "FM",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := inodeFlags(tc.ino); got != tc.want {
				t.Errorf("inodeFlags() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtentFlagLetters(t *testing.T) {
	two := &scan.Inode{Extents: make([]*scan.Extent, 2)}
	one := &scan.Inode{Extents: make([]*scan.Extent, 1)}

	allKernel := uint32(fiemap.FIEMAP_EXTENT_NOT_ALIGNED |
		fiemap.FIEMAP_EXTENT_DELALLOC |
		fiemap.FIEMAP_EXTENT_LAST |
		fiemap.FIEMAP_EXTENT_DATA_INLINE |
		fiemap.FIEMAP_EXTENT_MERGED |
		fiemap.FIEMAP_EXTENT_DATA_TAIL |
		fiemap.FIEMAP_EXTENT_UNKNOWN |
		fiemap.FIEMAP_EXTENT_UNWRITTEN |
		fiemap.FIEMAP_EXTENT_ENCODED)

	tests := []struct {
		name string
		ext  *scan.Extent
		ino  *scan.Inode
		want string
	}{
		{"everything", &scan.Extent{Flags: allKernel, Pos: 1}, two, "ACDEIMTUWX"},
		{"last extent has no continuation", &scan.Extent{Flags: fiemap.FIEMAP_EXTENT_LAST, Pos: 2}, two, "E"},
		{"middle extent continues", &scan.Extent{Pos: 1}, two, "C"},
		{"sole extent", &scan.Extent{Pos: 1}, one, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extentFlags(tc.ext, tc.ino); got != tc.want {
				t.Errorf("extentFlags() = %q, want %q", got, tc.want)
			}
		})
	}
}
