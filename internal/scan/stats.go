package scan

// Stats summarises a completed scan.
type Stats struct {
	Files   uint64 // file names mapped (hardlinks count once each)
	Dirs    uint64 // directory names mapped
	Inodes  uint64
	Extents uint64

	FragmentedInodes  uint64
	FragmentedExtents uint64  // extents across all fragmented inodes
	FragmentedPct     float64 // fragmented inodes as a share of all inodes
	AvgFragExtents    float64 // mean extents per fragmented inode
}

// Stats computes aggregate fragmentation figures for the scanned tree. The
// ratios are computed only when their denominators are nonzero.
func (g *Graph) Stats() Stats {
	st := Stats{
		Files:   g.files,
		Dirs:    g.dirs,
		Inodes:  uint64(len(g.inodes)),
		Extents: uint64(len(g.extents)),
	}

	for _, ino := range g.inodes {
		if ino.Flags&InodeFragmented == 0 {
			continue
		}
		st.FragmentedInodes++
		st.FragmentedExtents += uint64(len(ino.Extents))
	}

	if st.Inodes > 0 {
		st.FragmentedPct = 100 * float64(st.FragmentedInodes) / float64(st.Inodes)
	}
	if st.FragmentedInodes > 0 {
		st.AvgFragExtents = float64(st.FragmentedExtents) / float64(st.FragmentedInodes)
	}

	return st
}
