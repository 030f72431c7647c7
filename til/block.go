package til

import "fmt"

// ---------------------------------------------------------------------------
// BasicBlock and SCFG
// ---------------------------------------------------------------------------

// InvalidBlockID marks a block that has not been numbered.
const InvalidBlockID = ^uint32(0)

// BasicBlock is a node of the control-flow graph: phi arguments, interior
// instructions in evaluation order, and exactly one terminator.
// Predecessors are back-edges into the same CFG; the serializer refers to
// blocks by ID, never by pointer.
type BasicBlock struct {
	id           uint32
	firstInstrID uint32
	cfg          *SCFG

	Args   []*Phi
	Instrs []Instruction
	Term   Terminator
	Preds  []*BasicBlock
}

// NewBasicBlock creates an unnumbered block with no arguments.
func NewBasicBlock() *BasicBlock {
	return &BasicBlock{id: InvalidBlockID}
}

func (b *BasicBlock) Opcode() Opcode { return OpBasicBlock }

// BlockID returns the block's ID (InvalidBlockID before numbering).
func (b *BasicBlock) BlockID() uint32 { return b.id }

// SetBlockID assigns the block's ID.
func (b *BasicBlock) SetBlockID(id uint32) { b.id = id }

// FirstInstrID returns the ID of the block's first argument or instruction.
func (b *BasicBlock) FirstInstrID() uint32 { return b.firstInstrID }

// CFG returns the graph the block belongs to, or nil.
func (b *BasicBlock) CFG() *SCFG { return b.cfg }

// NumArguments returns the number of phi arguments.
func (b *BasicBlock) NumArguments() int { return len(b.Args) }

// AddArgument appends a phi argument, sizing its value list to the current
// predecessor count.
func (b *BasicBlock) AddArgument(phi *Phi) {
	phi.SetBlock(b)
	for len(phi.Values) < len(b.Preds) {
		phi.Values = append(phi.Values, nil)
	}
	b.Args = append(b.Args, phi)
}

// AddInstruction appends an interior instruction.
func (b *BasicBlock) AddInstruction(e Instruction) {
	e.SetBlock(b)
	b.Instrs = append(b.Instrs, e)
}

// AddPredecessor records pred as a new incoming edge and returns its slot
// index. Every phi argument grows one value slot for the edge.
func (b *BasicBlock) AddPredecessor(pred *BasicBlock) int {
	idx := len(b.Preds)
	b.Preds = append(b.Preds, pred)
	for _, phi := range b.Args {
		phi.Values = append(phi.Values, nil)
	}
	return idx
}

// SCFG is a control-flow graph in single-static-assignment form. It owns
// its blocks; entry and exit are created with the graph, and the exit block
// has one phi argument returned by its terminator.
type SCFG struct {
	arena *Arena

	Blocks []*BasicBlock
	entry  *BasicBlock
	exit   *BasicBlock

	numInstrs uint32
	normal    bool
}

// NewSCFG creates a graph with fresh entry and exit blocks. The exit block
// carries one phi argument and a Return of that phi.
func NewSCFG(arena *Arena) *SCFG {
	c := &SCFG{arena: arena}
	c.entry = NewBasicBlock()
	c.exit = NewBasicBlock()
	phi := &Phi{}
	arena.note()
	c.exit.AddArgument(phi)
	c.exit.Term = &Return{Value: phi}
	c.Add(c.entry)
	c.Add(c.exit)
	return c
}

func (c *SCFG) Opcode() Opcode { return OpSCFG }

// Entry returns the entry block.
func (c *SCFG) Entry() *BasicBlock { return c.entry }

// Exit returns the exit block.
func (c *SCFG) Exit() *BasicBlock { return c.exit }

// Arena returns the arena the graph allocates from.
func (c *SCFG) Arena() *Arena { return c.arena }

// NumBlocks returns the number of blocks.
func (c *SCFG) NumBlocks() int { return len(c.Blocks) }

// NumInstructions returns the dense instruction count computed by
// ComputeNormalForm.
func (c *SCFG) NumInstructions() uint32 { return c.numInstrs }

// IsNormal reports whether ComputeNormalForm has run.
func (c *SCFG) IsNormal() bool { return c.normal }

// MarkNormal records a dense instruction count on a graph reconstructed
// with block and instruction IDs already assigned, as the bytecode reader
// does when restoring a serialized normal-form CFG.
func (c *SCFG) MarkNormal(numInstrs uint32) {
	c.numInstrs = numInstrs
	c.normal = true
}

// Add appends a block to the graph with a provisional ID.
func (c *SCFG) Add(b *BasicBlock) {
	if b.cfg == c {
		return
	}
	b.cfg = c
	b.id = uint32(len(c.Blocks))
	c.Blocks = append(c.Blocks, b)
}

// ComputeNormalForm renumbers blocks in reverse-postorder from the entry,
// assigns each block a contiguous firstInstrID so that argument and
// instruction IDs form one dense sequence across the CFG, and re-verifies
// block invariants: one terminator per block, at least one predecessor on
// every non-entry block. Unreachable blocks are removed.
func (c *SCFG) ComputeNormalForm() error {
	for _, b := range c.Blocks {
		if b.Term == nil {
			return fmt.Errorf("til: block %d has no terminator", b.id)
		}
	}

	// Reverse-postorder walk over terminator successors.
	visited := make(map[*BasicBlock]bool, len(c.Blocks))
	post := make([]*BasicBlock, 0, len(c.Blocks))
	var dfs func(b *BasicBlock)
	dfs = func(b *BasicBlock) {
		visited[b] = true
		for _, s := range b.Term.Successors() {
			if s != nil && !visited[s] {
				dfs(s)
			}
		}
		post = append(post, b)
	}
	dfs(c.entry)

	order := make([]*BasicBlock, 0, len(post))
	for i := len(post) - 1; i >= 0; i-- {
		order = append(order, post[i])
	}
	c.Blocks = order

	var n uint32
	for i, b := range c.Blocks {
		b.id = uint32(i)
		b.firstInstrID = n
		for _, a := range b.Args {
			a.SetInstrID(n)
			n++
		}
		for _, e := range b.Instrs {
			e.SetInstrID(n)
			n++
		}
	}
	c.numInstrs = n

	for _, b := range c.Blocks {
		if b != c.entry && len(b.Preds) == 0 {
			return fmt.Errorf("til: block %d is not the entry and has no predecessors", b.id)
		}
		for _, a := range b.Args {
			if len(a.Values) != len(b.Preds) {
				return fmt.Errorf("til: block %d phi has %d values for %d predecessors",
					b.id, len(a.Values), len(b.Preds))
			}
		}
	}

	c.normal = true
	return nil
}
