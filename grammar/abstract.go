package grammar

// ---------------------------------------------------------------------------
// AbstractStack
// ---------------------------------------------------------------------------

// InvalidIndex is returned by IndexOf when a name is not on the stack.
const InvalidIndex = 0xFFFF

// AbstractStack mimics the ResultStack during validation. Instead of parse
// results it holds the names that results will be bound to, so the
// validator can resolve named references to stack indices and compute frame
// sizes before any input is parsed.
type AbstractStack struct {
	names      []string
	blockStart int
}

// IndexOf finds the stack index for name, computed with respect to the
// current frame. Returns InvalidIndex if the name is not bound.
func (s *AbstractStack) IndexOf(name string) int {
	if name == "" {
		return InvalidIndex
	}
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return InvalidIndex
}

// Size returns the size of the current frame.
func (s *AbstractStack) Size() int { return len(s.names) }

// LocalSize returns the stack size of the local block.
func (s *AbstractStack) LocalSize() int { return len(s.names) - s.blockStart }

// Rewind shrinks the local block back to lsize slots.
func (s *AbstractStack) Rewind(lsize int) {
	for s.LocalSize() > lsize {
		s.names = s.names[:len(s.names)-1]
	}
}

// EnterBlock starts a new local block and returns the previous block start
// for ExitBlock.
func (s *AbstractStack) EnterBlock() int {
	saved := s.blockStart
	s.blockStart = len(s.names)
	return saved
}

// ExitBlock restores the block start saved by EnterBlock.
func (s *AbstractStack) ExitBlock(saved int) {
	if saved > len(s.names) {
		panic("grammar: exitBlock beyond stack")
	}
	s.blockStart = saved
}

// Push binds a new name (possibly empty for anonymous results) on top.
func (s *AbstractStack) Push(name string) {
	s.names = append(s.names, name)
}

// Pop removes the top name.
func (s *AbstractStack) Pop() {
	if s.LocalSize() == 0 {
		panic("grammar: pop on empty local block")
	}
	s.names = s.names[:len(s.names)-1]
}

// Snapshot copies the stack contents so a validator can explore one option
// branch and then put the names back for the other.
func (s *AbstractStack) Snapshot() []string {
	return append([]string(nil), s.names...)
}

// Restore replaces the stack contents with a snapshot. The block start is
// unchanged.
func (s *AbstractStack) Restore(names []string) {
	s.names = append(s.names[:0], names...)
}

// SetTopName renames the top slot.
func (s *AbstractStack) SetTopName(name string) {
	s.names[len(s.names)-1] = name
}

// Clear resets the stack for the next definition.
func (s *AbstractStack) Clear() {
	s.names = s.names[:0]
	s.blockStart = 0
}
