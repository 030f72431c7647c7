package bytecode

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/weft/til"
)

var logger = commonlog.GetLogger("weft.bytecode")

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader rebuilds TIL trees from a post-order bytecode stream through a
// til.Builder. Graph structure is restored through a reconstruction stack
// plus block- and instruction-ID arrays: block targets may be referenced
// before they are defined, in which case a stub block is allocated and its
// argument count verified at definition time.
//
// The error flag is sticky: the first failure is recorded, later
// operations become no-ops where safe, and Read returns nil.
type Reader struct {
	s *StreamReader
	b *til.Builder

	stack []til.SExpr

	blocks       []*til.BasicBlock
	instrs       []til.Instruction
	vars         []*til.VarDecl
	cfgStackSize int
	cfgNumInstrs uint32
	curInstrID   uint32
	curArg       int

	err error
}

// NewReader creates a bytecode reader rebuilding nodes through builder.
// Strings decoded from the stream are copied into the builder's arena.
func NewReader(s *StreamReader, builder *til.Builder) *Reader {
	s.StringAlloc = builder.Arena().AllocString
	return &Reader{s: s, b: builder}
}

// Err returns the recorded failure, if any.
func (r *Reader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.s.Err()
}

func (r *Reader) ok() bool { return r.err == nil && r.s.Err() == nil }

// fail records the first failure and sets the sticky flag.
func (r *Reader) fail(msg string) {
	if r.err == nil {
		r.err = fmt.Errorf("bytecode: %s", msg)
		logger.Errorf("read: %s", msg)
	}
}

// Read decodes the whole stream and returns the single reconstructed
// expression, or nil on any failure. Leftover or missing stack values at
// the end of input are failures, as is a CFG that is still open.
func (r *Reader) Read() til.SExpr {
	for !r.s.Empty() && r.ok() {
		r.readSExpr()
	}
	if !r.ok() {
		return nil
	}
	if r.b.CurrentCFG() != nil {
		r.fail("end of stream inside an unfinished CFG")
		return nil
	}
	if len(r.stack) == 0 {
		r.fail("empty stack at end of stream")
		return nil
	}
	if len(r.stack) > 1 {
		r.fail(fmt.Sprintf("%d values left on stack at end of stream", len(r.stack)))
		return nil
	}
	return r.stack[0]
}

// ---- stack helpers --------------------------------------------------------

func (r *Reader) push(e til.SExpr) {
	r.stack = append(r.stack, e)
}

// arg returns the i-th value from the top of the stack.
func (r *Reader) arg(i int) til.SExpr {
	if i < 0 || i >= len(r.stack) {
		r.fail("reconstruction stack underflow")
		return nil
	}
	return r.stack[len(r.stack)-1-i]
}

func (r *Reader) drop(n int) {
	if n > len(r.stack) {
		r.fail("reconstruction stack underflow")
		r.stack = r.stack[:0]
		return
	}
	r.stack = r.stack[:len(r.stack)-n]
}

// lastArgs returns the top n values, bottom-most first.
func (r *Reader) lastArgs(n int) []til.SExpr {
	if n > len(r.stack) {
		r.fail("reconstruction stack underflow")
		return nil
	}
	args := make([]til.SExpr, n)
	copy(args, r.stack[len(r.stack)-n:])
	return args
}

// argInstr returns arg(i) as an instruction, failing otherwise.
func (r *Reader) argInstr(i int) til.Instruction {
	e := r.arg(i)
	if e == nil {
		return nil
	}
	in, ok := e.(til.Instruction)
	if !ok {
		r.fail("expected instruction")
		return nil
	}
	return in
}

func (r *Reader) argVarDecl(i int) *til.VarDecl {
	e := r.arg(i)
	if e == nil {
		return nil
	}
	vd, ok := e.(*til.VarDecl)
	if !ok {
		r.fail("expected variable declaration")
		return nil
	}
	return vd
}

// ---- resolution -----------------------------------------------------------

func (r *Reader) getVarDecl(idx uint32) *til.VarDecl {
	if int(idx) >= len(r.vars) {
		r.fail("invalid variable ID")
		return nil
	}
	return r.vars[idx]
}

// getBlock resolves a block ID, lazily allocating a stub with nargs phi
// arguments on first reference and verifying the argument count on later
// ones.
func (r *Reader) getBlock(id uint32, nargs int) *til.BasicBlock {
	if id == til.InvalidBlockID {
		return nil
	}
	if int(id) >= len(r.blocks) {
		r.fail("invalid block ID")
		return nil
	}
	bb := r.blocks[id]
	if bb == nil {
		bb = r.b.NewBlock(nargs)
		r.blocks[id] = bb
	} else if bb.NumArguments() != nargs {
		r.fail("block has wrong number of arguments")
	}
	return bb
}

// ---- atom dispatch --------------------------------------------------------

func (r *Reader) readSExpr() {
	tag := r.s.ReadUInt8()
	if !r.ok() {
		return
	}
	switch {
	case tag < uint8(numPseudoOps):
		switch PseudoOp(tag) {
		case PsNull:
			r.push(nil)
		case PsWeakInstrRef:
			r.readWeak()
		case PsBBArgument:
			r.readBBArgument()
		case PsBBInstruction:
			r.readBBInstruction()
		case PsEnterScope:
			r.enterScope()
		case PsExitScope:
			r.exitScope()
		case PsEnterBlock:
			r.enterBlock()
		case PsEnterCFG:
			r.enterCFG()
		case PsAnnotation:
			r.fail("annotations are not supported")
		}
	case isExprTag(tag):
		r.readByOpcode(tagOpcode(tag))
	default:
		r.fail(fmt.Sprintf("invalid opcode tag %d", tag))
	}
	r.s.EndAtom()
}

func (r *Reader) readByOpcode(op til.Opcode) {
	switch op {
	case til.OpVarDecl:
		r.readVarDecl()
	case til.OpFunction:
		e := r.b.NewFunction(r.argVarDecl(1), r.arg(0))
		r.drop(2)
		r.push(e)
	case til.OpCode:
		cc := til.CallingConvention(r.s.ReadUInt8())
		e := r.b.NewCode(r.arg(1), r.arg(0))
		e.CallConv = cc
		r.drop(2)
		r.push(e)
	case til.OpField:
		e := r.b.NewField(r.arg(1), r.arg(0))
		r.drop(2)
		r.push(e)
	case til.OpSlot:
		mods := r.s.ReadUInt16()
		name := r.s.ReadString()
		e := r.b.NewSlot(name, r.arg(0))
		e.Modifiers = mods
		r.drop(1)
		r.push(e)
	case til.OpRecord:
		r.readRecord()
	case til.OpArray:
		r.readArray()
	case til.OpScalarType:
		e := r.b.NewScalarType(til.BaseType(r.s.ReadUInt8()))
		r.push(e)
	case til.OpLiteral:
		r.readLiteral()
	case til.OpVariable:
		idx := r.s.ReadUInt32()
		vd := r.getVarDecl(idx)
		if vd == nil {
			r.push(nil)
			return
		}
		r.push(r.b.NewVariable(vd))
	case til.OpApply:
		kind := til.ApplyKind(r.s.ReadUInt8())
		e := r.b.NewApply(r.arg(1), r.arg(0), kind)
		r.drop(2)
		r.push(e)
	case til.OpProject:
		name := r.s.ReadString()
		e := r.b.NewProject(r.arg(0), name)
		r.drop(1)
		r.push(e)
	case til.OpCall:
		bt := til.BaseType(r.s.ReadUInt8())
		e := r.b.NewCall(r.arg(0))
		e.Bt = bt
		r.drop(1)
		r.push(e)
	case til.OpAlloc:
		kind := til.AllocKind(r.s.ReadUInt8())
		e := r.b.NewAlloc(r.arg(0), kind)
		r.drop(1)
		r.push(e)
	case til.OpLoad:
		bt := til.BaseType(r.s.ReadUInt8())
		e := r.b.NewLoad(r.arg(0))
		e.Bt = bt
		r.drop(1)
		r.push(e)
	case til.OpStore:
		e := r.b.NewStore(r.arg(1), r.arg(0))
		r.drop(2)
		r.push(e)
	case til.OpArrayIndex:
		e := r.b.NewArrayIndex(r.arg(1), r.arg(0))
		r.drop(2)
		r.push(e)
	case til.OpArrayAdd:
		e := r.b.NewArrayAdd(r.arg(1), r.arg(0))
		r.drop(2)
		r.push(e)
	case til.OpUnaryOp:
		op := til.UnaryOpcode(r.s.ReadUInt8())
		bt := til.BaseType(r.s.ReadUInt8())
		e := r.b.NewUnaryOp(op, r.arg(0))
		e.Bt = bt
		r.drop(1)
		r.push(e)
	case til.OpBinaryOp:
		op := til.BinaryOpcode(r.s.ReadUInt8())
		bt := til.BaseType(r.s.ReadUInt8())
		e := r.b.NewBinaryOp(op, r.arg(1), r.arg(0))
		e.Bt = bt
		r.drop(2)
		r.push(e)
	case til.OpCast:
		op := til.CastOpcode(r.s.ReadUInt8())
		bt := til.BaseType(r.s.ReadUInt8())
		e := r.b.NewCast(op, r.arg(0))
		e.Bt = bt
		r.drop(1)
		r.push(e)
	case til.OpPhi:
		r.readPhi()
	case til.OpGoto:
		r.readGoto()
	case til.OpBranch:
		r.readBranch()
	case til.OpSwitch:
		r.readSwitch()
	case til.OpReturn:
		r.b.NewReturn(r.arg(0))
		r.drop(1)
	case til.OpUndefined:
		r.push(r.b.NewUndefined())
	case til.OpWildcard:
		r.push(r.b.NewWildcard())
	case til.OpIdentifier:
		r.push(r.b.NewIdentifier(r.s.ReadString()))
	case til.OpLet:
		vd := r.argVarDecl(1)
		e := r.b.NewLet(vd, r.arg(0))
		r.drop(2)
		r.push(e)
	case til.OpIfThenElse:
		e := r.b.NewIfThenElse(r.arg(2), r.arg(1), r.arg(0))
		r.drop(3)
		r.push(e)
	case til.OpBasicBlock:
		r.readBasicBlock()
	case til.OpSCFG:
		r.readSCFG()
	default:
		r.fail(fmt.Sprintf("invalid expression opcode %d", op))
	}
}

// ---- node readers with payloads -------------------------------------------

func (r *Reader) readVarDecl() {
	kind := til.VarKind(r.s.ReadUInt8())
	idx := r.s.ReadUInt32()
	name := r.s.ReadString()
	e := r.b.NewVarDecl(kind, name, r.arg(0))
	e.VarIdx = idx
	r.drop(1)
	r.push(e)
}

func (r *Reader) readRecord() {
	ns := int(r.s.ReadUInt32())
	if !r.ok() || ns > len(r.stack) {
		r.fail("record slot count exceeds stack")
		return
	}
	e := r.b.NewRecord(ns, r.arg(ns))
	for i := ns - 1; i >= 0; i-- {
		slot, ok := r.arg(i).(*til.Slot)
		if !ok {
			r.fail("expected slot")
			return
		}
		r.b.AddSlot(e, slot)
	}
	r.drop(ns + 1)
	r.push(e)
}

func (r *Reader) readArray() {
	ne := int(r.s.ReadUInt64())
	if !r.ok() || ne+2 > len(r.stack) {
		r.fail("array element count exceeds stack")
		return
	}
	elems := make([]til.SExpr, ne)
	for i := 0; i < ne; i++ {
		elems[i] = r.arg(ne - 1 - i)
	}
	e := r.b.NewArray(r.arg(ne+1), r.arg(ne), elems...)
	r.drop(ne + 2)
	r.push(e)
}

// readLiteral dispatches on the base-type byte. An unknown base type
// decodes as a void literal rather than an error, which keeps streams from
// newer writers readable.
func (r *Reader) readLiteral() {
	bt := til.BaseType(r.s.ReadUInt8())
	switch bt {
	case til.BtVoid:
		r.push(r.b.NewLiteralVoid())
	case til.BtBool:
		r.push(r.b.NewLiteralBool(r.s.ReadUInt8() != 0))
	case til.BtInt:
		r.push(r.b.NewLiteralInt(r.s.ReadInt64()))
	case til.BtFloat:
		r.push(r.b.NewLiteralFloat(r.s.ReadDouble()))
	case til.BtString:
		r.push(r.b.NewLiteralString(r.s.ReadString()))
	default:
		r.push(r.b.NewLiteralVoid())
	}
}

// ---- scopes ---------------------------------------------------------------

func (r *Reader) enterScope() {
	vd := r.argVarDecl(0)
	if vd == nil || int(vd.VarIdx) != len(r.vars) {
		r.fail("invalid variable declaration")
		return
	}
	r.vars = append(r.vars, vd)
}

func (r *Reader) exitScope() {
	if len(r.vars) == 0 {
		r.fail("scope exit without scope entry")
		return
	}
	r.vars = r.vars[:len(r.vars)-1]
}

// ---- CFG framing ----------------------------------------------------------

func (r *Reader) readWeak() {
	idx := r.s.ReadUInt32()
	if int(idx) >= len(r.instrs) {
		r.fail("invalid instruction ID")
		return
	}
	r.push(r.instrs[idx])
}

func (r *Reader) enterCFG() {
	nb := r.s.ReadUInt32()
	ni := r.s.ReadUInt32()
	eid := r.s.ReadUInt32()
	xid := r.s.ReadUInt32()
	if !r.ok() {
		return
	}
	if r.b.CurrentCFG() != nil {
		r.fail("nested CFG")
		return
	}
	cfg := r.b.BeginCFG(nil)
	r.blocks = make([]*til.BasicBlock, nb)
	r.instrs = make([]til.Instruction, ni)
	if int(eid) >= len(r.blocks) || int(xid) >= len(r.blocks) {
		r.fail("invalid entry or exit block ID")
		return
	}
	r.blocks[eid] = cfg.Entry()
	r.blocks[xid] = cfg.Exit()
	r.cfgStackSize = len(r.stack)
	r.cfgNumInstrs = ni
}

func (r *Reader) enterBlock() {
	if len(r.stack) != r.cfgStackSize {
		r.fail("corrupted stack at block entry")
		return
	}
	bid := r.s.ReadUInt32()
	first := r.s.ReadUInt32()
	nargs := r.s.ReadUInt32()
	if !r.ok() {
		return
	}
	bb := r.getBlock(bid, int(nargs))
	if bb == nil {
		return
	}
	r.b.BeginBlock(bb)
	r.curInstrID = first

	// Phi arguments already exist on the block; register their IDs.
	for _, a := range bb.Args {
		if int(r.curInstrID) >= len(r.instrs) {
			r.fail("instruction ID out of range")
			return
		}
		a.SetInstrID(r.curInstrID)
		r.instrs[r.curInstrID] = a
		r.curInstrID++
	}
	r.curArg = 0
}

// readPhi resolves to the current block argument; the values arrive later
// on the Goto atoms of the predecessor edges.
func (r *Reader) readPhi() {
	if bb := r.b.CurrentBB(); bb != nil && r.curArg < bb.NumArguments() {
		r.push(bb.Args[r.curArg])
		return
	}
	// All phi nodes should be block arguments.
	r.push(r.b.NewPhi(0))
}

func (r *Reader) readBBArgument() {
	r.curArg++
	r.drop(1) // the argument was registered at block entry
}

func (r *Reader) readBBInstruction() {
	if len(r.stack) <= r.cfgStackSize {
		r.fail("corrupted stack inside CFG")
		return
	}
	in := r.argInstr(0)
	if in == nil {
		return
	}
	if int(r.curInstrID) >= len(r.instrs) {
		r.fail("instruction ID out of range")
		return
	}
	if in.Block() == nil {
		// A named declaration standing in for the instruction it binds.
		bb := r.b.CurrentBB()
		if vd, ok := in.(*til.VarDecl); ok && bb != nil && len(bb.Instrs) > 0 &&
			til.SExpr(bb.Instrs[len(bb.Instrs)-1]) == vd.Definition {
			bb.Instrs[len(bb.Instrs)-1].SetBlock(nil)
			bb.Instrs[len(bb.Instrs)-1] = vd
			vd.SetBlock(bb)
		} else if bb != nil {
			bb.AddInstruction(in)
		}
	}
	in.SetInstrID(r.curInstrID)
	r.instrs[r.curInstrID] = in
	r.curInstrID++
	r.drop(1)
}

func (r *Reader) readGoto() {
	nargs := int(r.s.ReadUInt32())
	bid := r.s.ReadUInt32()
	if !r.ok() {
		return
	}
	if r.b.CurrentBB() == nil {
		r.fail("terminator outside block")
		return
	}
	bb := r.getBlock(bid, nargs)
	if bb == nil {
		return
	}
	args := r.lastArgs(nargs)
	if args == nil && nargs > 0 {
		return
	}
	r.b.NewGoto(bb, args)
	r.drop(nargs)
}

func (r *Reader) readBranch() {
	thenID := r.s.ReadUInt32()
	elseID := r.s.ReadUInt32()
	if !r.ok() {
		return
	}
	if r.b.CurrentBB() == nil {
		r.fail("terminator outside block")
		return
	}
	thenB := r.getBlock(thenID, 0)
	elseB := r.getBlock(elseID, 0)
	r.b.NewBranch(r.arg(0), thenB, elseB)
	r.drop(1)
}

func (r *Reader) readSwitch() {
	nc := int(r.s.ReadUInt32())
	if !r.ok() || nc+1 > len(r.stack) {
		r.fail("switch case count exceeds stack")
		return
	}
	if r.b.CurrentBB() == nil {
		r.fail("terminator outside block")
		return
	}
	sw := r.b.NewSwitch(r.arg(nc), nc)
	for i := 0; i < nc; i++ {
		r.s.EndAtom()
		bid := r.s.ReadUInt32()
		bb := r.getBlock(bid, 0)
		r.b.AddSwitchCase(sw, r.arg(nc-1-i), bb)
	}
	r.drop(nc + 1)
}

// readBasicBlock closes the current block.
func (r *Reader) readBasicBlock() {
	if len(r.stack) != r.cfgStackSize {
		r.fail("corrupted stack at block end")
		return
	}
	if bb := r.b.CurrentBB(); bb != nil {
		if bb.Term == nil {
			r.fail("block has no terminator")
			return
		}
		r.b.EndBlock(nil)
	}
}

// readSCFG closes the CFG: blocks are restored to their original IDs and
// order, and the finished graph is pushed.
func (r *Reader) readSCFG() {
	if len(r.stack) != r.cfgStackSize {
		r.fail("corrupted stack at CFG end")
		return
	}
	r.cfgStackSize = 0

	cfg := r.b.CurrentCFG()
	if cfg == nil {
		r.fail("SCFG close without EnterCFG")
		return
	}
	if cfg.NumBlocks() != len(r.blocks) {
		r.fail("failed to read all blocks")
		return
	}
	for i, bb := range r.blocks {
		if bb == nil {
			r.fail("failed to read all blocks")
			return
		}
		cfg.Blocks[i] = bb
		bb.SetBlockID(uint32(i))
	}
	cfg.MarkNormal(r.cfgNumInstrs)
	r.b.EndCFG()
	r.blocks = nil
	r.instrs = nil
	r.push(cfg)
}
