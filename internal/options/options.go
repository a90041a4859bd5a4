// Package options parses the command line into the configuration bundle the
// rest of the program consumes.
package options

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/aaronmdjones/filemap/internal/scan"
)

// Config is the parsed command line.
type Config struct {
	Direction scan.SortDirection
	Method    scan.SortMethod

	ScanDirectories bool
	FragmentedOnly  bool
	PrintGaps       bool
	Quiet           bool
	SkipPreamble    bool
	SyncFiles       bool

	ReadableOffsets bool
	ReadableLengths bool
	ReadableSizes   bool
	ReadableGaps    bool

	Path string
}

// Parse interprets argv-style arguments, without the program name. On any
// failure the usage text has already been written to out; the returned
// error picks the exit path, with flag.ErrHelp meaning -h was given.
func Parse(args []string, out io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("filemap", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usageText) }

	var (
		help = fs.BoolP("help", "h", false, "")

		ascending  = fs.BoolP("sort-ascending", "A", false, "")
		descending = fs.BoolP("sort-descending", "D", false, "")

		byOffset   = fs.BoolP("order-offset", "O", false, "")
		byLength   = fs.BoolP("order-length", "L", false, "")
		byCount    = fs.BoolP("order-count", "C", false, "")
		byLinks    = fs.BoolP("order-links", "H", false, "")
		byInum     = fs.BoolP("order-inum", "N", false, "")
		byFilesize = fs.BoolP("order-filesize", "S", false, "")
		byFilename = fs.BoolP("order-filename", "F", false, "")

		readableAll = fs.BoolP("readable-all", "r", false, "")
	)

	cfg := &Config{
		Direction: scan.SortAscending,
		Method:    scan.SortByExtentOffset,
	}
	fs.BoolVarP(&cfg.ScanDirectories, "scan-directories", "d", false, "")
	fs.BoolVarP(&cfg.FragmentedOnly, "fragmented-only", "f", false, "")
	fs.BoolVarP(&cfg.PrintGaps, "print-gaps", "g", false, "")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", false, "")
	fs.BoolVarP(&cfg.SkipPreamble, "skip-preamble", "x", false, "")
	fs.BoolVarP(&cfg.SyncFiles, "sync-files", "y", false, "")
	fs.BoolVarP(&cfg.ReadableOffsets, "readable-offsets", "o", false, "")
	fs.BoolVarP(&cfg.ReadableLengths, "readable-lengths", "l", false, "")
	fs.BoolVarP(&cfg.ReadableSizes, "readable-sizes", "s", false, "")
	fs.BoolVarP(&cfg.ReadableGaps, "readable-gaps", "t", false, "")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(out, err)
		fs.Usage()
		return nil, err
	}
	if *help {
		fs.Usage()
		return nil, flag.ErrHelp
	}

	fail := func(format string, args ...interface{}) (*Config, error) {
		fs.Usage()
		return nil, fmt.Errorf(format, args...)
	}

	// getopt-style last-one-wins would depend on argument order, which
	// pflag does not expose; conflicting selections are rejected instead.
	directions := 0
	if *ascending {
		cfg.Direction = scan.SortAscending
		directions++
	}
	if *descending {
		cfg.Direction = scan.SortDescending
		directions++
	}
	if directions > 1 {
		return fail("--sort-ascending and --sort-descending are mutually exclusive")
	}

	methods := 0
	for _, sel := range []struct {
		given  bool
		method scan.SortMethod
	}{
		{*byOffset, scan.SortByExtentOffset},
		{*byLength, scan.SortByExtentLength},
		{*byCount, scan.SortByInodeExtentCount},
		{*byLinks, scan.SortByInodeLinkCount},
		{*byInum, scan.SortByInodeNumber},
		{*byFilesize, scan.SortByFileSize},
		{*byFilename, scan.SortByFileName},
	} {
		if sel.given {
			cfg.Method = sel.method
			methods++
		}
	}
	if methods > 1 {
		return fail("only one ordering option may be given")
	}

	if *readableAll {
		cfg.ReadableOffsets = true
		cfg.ReadableLengths = true
		cfg.ReadableSizes = true
		cfg.ReadableGaps = true
	}

	if cfg.PrintGaps && cfg.Direction != scan.SortAscending {
		return fail("--print-gaps needs --sort-ascending")
	}
	if cfg.PrintGaps && cfg.Method != scan.SortByExtentOffset {
		return fail("--print-gaps needs --order-offset")
	}
	if cfg.PrintGaps && cfg.FragmentedOnly {
		return fail("--print-gaps and --fragmented-only are incompatible")
	}

	if fs.NArg() != 1 {
		return fail("exactly one path is required")
	}
	cfg.Path = fs.Arg(0)

	return cfg, nil
}

const usageText = `
  Usage: filemap -h
  Usage: filemap [-A | -D] [-O | -L | -C | -H | -N | -S | -F]
                 [-d -f -g -q -x -y] [[-o -l -s -t] | -r] <path>

    -h / --help               Show this help message and exit

    -A / --sort-ascending     Display extents in ascending order
    -D / --sort-descending    Display extents in descending order

    -O / --order-offset       Order extents by physical offset
    -L / --order-length       Order extents by physical length
    -C / --order-count        Order extents by number of extents
    -H / --order-links        Order extents by number of hardlinks
    -N / --order-inum         Order extents by inode number
    -S / --order-filesize     Order extents by file size
    -F / --order-filename     Order extents by file name

    -d / --scan-directories   Scan the extents that belong to
                              directories as well as regular files
    -f / --fragmented-only    Print fragmented files only
    -g / --print-gaps         Print the gaps between extents
                              Needs --sort-ascending --order-offset
                              Incompatible with --fragmented-only
    -q / --quiet              Don't print the action being performed
    -x / --skip-preamble      Skip the informational message lines
                              printed before the table of extents
    -y / --sync-files         Invoke fsync(2) on everything being
                              scanned before scanning it
    -o / --readable-offsets   Print human-readable extent offsets
    -l / --readable-lengths   Print human-readable extent lengths
    -s / --readable-sizes     Print human-readable file sizes
    -t / --readable-gaps      Print human-readable extent gaps
    -r / --readable-all       Short-hand for the above 4 options;
                              implies '-o -l -s -t'

  Notes:

    The default options are '--sort-ascending --order-offset', to
    display the list of extents in the order that they appear in the
    volume.

    For option '--order-filename', only the alphabetically-first
    file name for each inode (in the case of hardlinks) is considered
    when determining the order. The file names shown next to each
    extent in the results will also be sorted alphabetically.

    For the most comprehensive results, ensure <path> is the root of
    a filesystem that supports extents, and that you have permission
    to open (read-only) every file in that filesystem. You should also
    give the -d and -y options to map the extents that are assigned to
    directories and to ensure that everything being mapped has already
    been written out to the underlying storage.

`
