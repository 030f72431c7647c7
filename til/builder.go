package til

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder is the arena-backed node factory. While a CFG is under
// construction every non-trivial instruction node is appended to the
// current basic block as it is created, which is what both the reducer and
// the bytecode reader rely on.
type Builder struct {
	arena *Arena
	cfg   *SCFG
	bb    *BasicBlock
}

// NewBuilder creates a builder allocating from arena.
func NewBuilder(arena *Arena) *Builder {
	return &Builder{arena: arena}
}

// Arena returns the builder's arena.
func (b *Builder) Arena() *Arena { return b.arena }

// CurrentCFG returns the CFG under construction, or nil.
func (b *Builder) CurrentCFG() *SCFG { return b.cfg }

// CurrentBB returns the block under construction, or nil.
func (b *Builder) CurrentBB() *BasicBlock { return b.bb }

// BeginCFG starts assembling cfg, creating a fresh graph when nil.
func (b *Builder) BeginCFG(cfg *SCFG) *SCFG {
	if cfg == nil {
		cfg = NewSCFG(b.arena)
	}
	b.cfg = cfg
	return cfg
}

// BeginBlock makes bb the current block, adding it to the CFG if needed.
func (b *Builder) BeginBlock(bb *BasicBlock) {
	if b.cfg != nil && bb.cfg == nil {
		b.cfg.Add(bb)
	}
	b.bb = bb
}

// EndBlock finishes the current block. A non-nil term overrides a pending
// terminator; the block must end up terminated.
func (b *Builder) EndBlock(term Terminator) {
	if b.bb == nil {
		return
	}
	if term != nil {
		b.bb.Term = term
	}
	b.bb = nil
}

// EndCFG finishes and returns the CFG under construction.
func (b *Builder) EndCFG() *SCFG {
	cfg := b.cfg
	b.cfg = nil
	b.bb = nil
	return cfg
}

// NewBlock creates a block with nargs fresh phi arguments.
func (b *Builder) NewBlock(nargs int) *BasicBlock {
	bb := NewBasicBlock()
	for i := 0; i < nargs; i++ {
		phi := &Phi{}
		b.arena.note()
		bb.AddArgument(phi)
	}
	return bb
}

// place appends an instruction to the current block when one is open.
func (b *Builder) place(e Instruction) {
	if b.bb != nil && e.Block() == nil {
		b.bb.AddInstruction(e)
	}
	b.arena.note()
}

// AddInstruction places e in the current block if it is a non-trivial
// instruction that has not been placed yet. Returns e.
func (b *Builder) AddInstruction(e SExpr) SExpr {
	if IsTrivial(e) {
		return e
	}
	if in, ok := e.(Instruction); ok && in.Block() == nil && b.bb != nil {
		b.bb.AddInstruction(in)
	}
	return e
}

// ---- Node constructors ----------------------------------------------------

func (b *Builder) NewLiteralVoid() *Literal {
	b.arena.note()
	return &Literal{Bt: BtVoid}
}

func (b *Builder) NewLiteralBool(v bool) *Literal {
	b.arena.note()
	return &Literal{Bt: BtBool, BoolVal: v}
}

func (b *Builder) NewLiteralInt(v int64) *Literal {
	b.arena.note()
	return &Literal{Bt: BtInt, IntVal: v}
}

func (b *Builder) NewLiteralFloat(v float64) *Literal {
	b.arena.note()
	return &Literal{Bt: BtFloat, FloatVal: v}
}

func (b *Builder) NewLiteralString(v string) *Literal {
	b.arena.note()
	return &Literal{Bt: BtString, StrVal: b.arena.InternString(v)}
}

// NewVarDecl creates a variable declaration. Declarations are not placed
// automatically; scope entry decides whether a named declaration stands in
// for its definition in the instruction stream.
func (b *Builder) NewVarDecl(kind VarKind, name string, defn SExpr) *VarDecl {
	b.arena.note()
	return &VarDecl{Kind: kind, Name: b.arena.InternString(name), Definition: defn}
}

func (b *Builder) NewVariable(vd *VarDecl) *Variable {
	b.arena.note()
	return &Variable{Decl: vd}
}

func (b *Builder) NewFunction(param *VarDecl, body SExpr) *Function {
	b.arena.note()
	return &Function{Param: param, Body: body}
}

func (b *Builder) NewCode(returnType, body SExpr) *Code {
	b.arena.note()
	return &Code{ReturnType: returnType, Body: body}
}

func (b *Builder) NewField(rng, body SExpr) *Field {
	b.arena.note()
	return &Field{Range: rng, Body: body}
}

func (b *Builder) NewSlot(name string, defn SExpr) *Slot {
	b.arena.note()
	return &Slot{Name: b.arena.InternString(name), Definition: defn}
}

// NewRecord creates a record with capacity for nSlots slots.
func (b *Builder) NewRecord(nSlots int, parent SExpr) *Record {
	b.arena.note()
	return &Record{Slots: make([]*Slot, 0, nSlots), Parent: parent}
}

// AddSlot appends a slot to a record under construction.
func (b *Builder) AddSlot(r *Record, s *Slot) {
	r.Slots = append(r.Slots, s)
}

// NewArray creates an array value with the given element type and size.
func (b *Builder) NewArray(elemType, size SExpr, elems ...SExpr) *Array {
	b.arena.note()
	return &Array{ElemType: elemType, Size: size, Elements: elems}
}

func (b *Builder) NewScalarType(bt BaseType) *ScalarType {
	b.arena.note()
	return &ScalarType{Bt: bt}
}

func (b *Builder) NewApply(fn, arg SExpr, kind ApplyKind) *Apply {
	e := &Apply{Fn: fn, Arg: arg, Kind: kind}
	b.place(e)
	return e
}

func (b *Builder) NewProject(rec SExpr, slotName string) *Project {
	e := &Project{Rec: rec, SlotName: b.arena.InternString(slotName)}
	b.place(e)
	return e
}

func (b *Builder) NewCall(target SExpr) *Call {
	e := &Call{Target: target}
	b.place(e)
	return e
}

func (b *Builder) NewAlloc(init SExpr, kind AllocKind) *Alloc {
	e := &Alloc{Init: init, Kind: kind}
	b.place(e)
	return e
}

func (b *Builder) NewLoad(ptr SExpr) *Load {
	e := &Load{Ptr: ptr}
	b.place(e)
	return e
}

func (b *Builder) NewStore(dest, source SExpr) *Store {
	e := &Store{Dest: dest, Source: source}
	b.place(e)
	return e
}

func (b *Builder) NewArrayIndex(arr, index SExpr) *ArrayIndex {
	e := &ArrayIndex{Arr: arr, Index: index}
	b.place(e)
	return e
}

func (b *Builder) NewArrayAdd(arr, index SExpr) *ArrayAdd {
	e := &ArrayAdd{Arr: arr, Index: index}
	b.place(e)
	return e
}

func (b *Builder) NewUnaryOp(op UnaryOpcode, expr SExpr) *UnaryOp {
	e := &UnaryOp{Op: op, Expr: expr}
	b.place(e)
	return e
}

func (b *Builder) NewBinaryOp(op BinaryOpcode, l, r SExpr) *BinaryOp {
	e := &BinaryOp{Op: op, L: l, R: r}
	b.place(e)
	return e
}

func (b *Builder) NewCast(op CastOpcode, expr SExpr) *Cast {
	e := &Cast{Op: op, Expr: expr}
	b.place(e)
	return e
}

// NewPhi creates a free-standing phi with nValues empty value slots. Phis
// normally enter a CFG as block arguments, not through this path.
func (b *Builder) NewPhi(nValues int) *Phi {
	b.arena.note()
	return &Phi{Values: make([]SExpr, nValues)}
}

func (b *Builder) NewIdentifier(name string) *Identifier {
	b.arena.note()
	return &Identifier{Name: b.arena.InternString(name)}
}

func (b *Builder) NewLet(vd *VarDecl, body SExpr) *Let {
	b.arena.note()
	return &Let{Decl: vd, Body: body}
}

func (b *Builder) NewIfThenElse(cond, thenE, elseE SExpr) *IfThenElse {
	b.arena.note()
	return &IfThenElse{Cond: cond, Then: thenE, Else: elseE}
}

func (b *Builder) NewUndefined() *Undefined {
	b.arena.note()
	return &Undefined{}
}

func (b *Builder) NewWildcard() *Wildcard {
	b.arena.note()
	return &Wildcard{}
}

// ---- Terminator constructors ----------------------------------------------

// NewGoto terminates the current block with a jump to target, filling
// target's phi slots for the new predecessor edge with args. The number of
// args must match target's argument count.
func (b *Builder) NewGoto(target *BasicBlock, args []SExpr) *Goto {
	b.arena.note()
	g := &Goto{Target: target}
	if b.bb != nil {
		idx := target.AddPredecessor(b.bb)
		for i, a := range args {
			if i < len(target.Args) {
				target.Args[i].Values[idx] = a
			}
		}
		g.PhiIndex = uint32(idx)
		b.bb.Term = g
	}
	return g
}

// NewBranch terminates the current block with a conditional branch,
// recording the current block as a predecessor of both targets.
func (b *Builder) NewBranch(cond SExpr, thenB, elseB *BasicBlock) *Branch {
	b.arena.note()
	br := &Branch{Cond: cond, Then: thenB, Else: elseB}
	if b.bb != nil {
		thenB.AddPredecessor(b.bb)
		elseB.AddPredecessor(b.bb)
		b.bb.Term = br
	}
	return br
}

// NewSwitch terminates the current block with a switch of nCases cases,
// attached afterwards with AddSwitchCase.
func (b *Builder) NewSwitch(cond SExpr, nCases int) *Switch {
	b.arena.note()
	sw := &Switch{Cond: cond, Cases: make([]SwitchCase, 0, nCases)}
	if b.bb != nil {
		b.bb.Term = sw
	}
	return sw
}

// AddSwitchCase attaches one case to a switch terminator, recording the
// current block as a predecessor of the case block.
func (b *Builder) AddSwitchCase(sw *Switch, value SExpr, block *BasicBlock) {
	if b.bb != nil {
		block.AddPredecessor(b.bb)
	}
	sw.Cases = append(sw.Cases, SwitchCase{Value: value, Block: block})
}

// NewReturn terminates the current block with a return.
func (b *Builder) NewReturn(value SExpr) *Return {
	b.arena.note()
	ret := &Return{Value: value}
	if b.bb != nil {
		b.bb.Term = ret
	}
	return ret
}
