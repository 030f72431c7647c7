package til

// ---------------------------------------------------------------------------
// Arena
// ---------------------------------------------------------------------------

const arenaSlabSize = 64 * 1024

// Arena is a monotonic allocation region. Nodes built through a Builder and
// strings copied in with InternString live until the arena is released as a
// unit; there is no per-node destruction.
type Arena struct {
	slab      []byte
	slabs     [][]byte
	nodeCount int
	byteCount int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// AllocString returns an n-byte buffer inside the arena. The bytecode
// reader uses this to give decoded strings arena lifetime.
func (a *Arena) AllocString(n int) []byte {
	if n > len(a.slab) {
		size := arenaSlabSize
		if n > size {
			size = n
		}
		a.slab = make([]byte, size)
		a.slabs = append(a.slabs, a.slab)
	}
	buf := a.slab[:n:n]
	a.slab = a.slab[n:]
	a.byteCount += n
	return buf
}

// InternString copies s into the arena and returns the copy.
func (a *Arena) InternString(s string) string {
	if s == "" {
		return ""
	}
	buf := a.AllocString(len(s))
	copy(buf, s)
	return string(buf)
}

// note records one node allocation for accounting.
func (a *Arena) note() {
	a.nodeCount++
}

// NumNodes returns the number of nodes allocated from the arena.
func (a *Arena) NumNodes() int { return a.nodeCount }
