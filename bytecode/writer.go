package bytecode

import (
	"fmt"

	"github.com/chazu/weft/til"
)

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer serializes TIL trees in post-order: children are emitted before
// their parents, so the reader can rebuild each node from a reconstruction
// stack. Inside a CFG, instruction operands are emitted as weak references
// to their instruction IDs; the CFG must therefore be in normal form.
type Writer struct {
	s          *StreamWriter
	scopeDepth uint32
	err        error
}

// NewWriter creates a bytecode writer over s.
func NewWriter(s *StreamWriter) *Writer {
	return &Writer{s: s}
}

// Write serializes e and flushes the stream.
func (w *Writer) Write(e til.SExpr) error {
	w.writeExpr(e)
	w.s.Flush()
	if w.err != nil {
		return w.err
	}
	return w.s.Err()
}

func (w *Writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf("bytecode: "+format, args...)
	}
}

func (w *Writer) pseudo(op PseudoOp) {
	w.s.WriteUInt8(uint8(op))
}

func (w *Writer) opcode(op til.Opcode) {
	w.s.WriteUInt8(exprTag(op))
}

func (w *Writer) endAtom() {
	w.s.EndAtom()
}

// writeOperand emits a value position. Placed instructions are referenced
// weakly by ID; everything else is written in full.
func (w *Writer) writeOperand(e til.SExpr) {
	if e == nil {
		w.pseudo(PsNull)
		w.endAtom()
		return
	}
	if in, ok := e.(til.Instruction); ok && in.Block() != nil {
		w.pseudo(PsWeakInstrRef)
		w.s.WriteUInt32(in.InstrID())
		w.endAtom()
		return
	}
	w.writeExpr(e)
}

// writeScoped emits a VarDecl followed by an EnterScope marker, assigning
// the declaration's variable index from the current scope depth.
func (w *Writer) writeScoped(vd *til.VarDecl) {
	vd.VarIdx = w.scopeDepth
	w.scopeDepth++
	w.writeExpr(vd)
	w.pseudo(PsEnterScope)
	w.endAtom()
}

func (w *Writer) exitScope() {
	w.pseudo(PsExitScope)
	w.endAtom()
	w.scopeDepth--
}

// writeExpr emits e in full: operands first, then the node's own atom.
func (w *Writer) writeExpr(e til.SExpr) {
	switch e := e.(type) {
	case nil:
		w.pseudo(PsNull)

	case *til.Literal:
		w.opcode(til.OpLiteral)
		w.s.WriteUInt8(uint8(e.Bt))
		switch e.Bt {
		case til.BtVoid:
		case til.BtBool:
			if e.BoolVal {
				w.s.WriteUInt8(1)
			} else {
				w.s.WriteUInt8(0)
			}
		case til.BtInt:
			w.s.WriteInt64(e.IntVal)
		case til.BtFloat:
			w.s.WriteDouble(e.FloatVal)
		case til.BtString:
			w.s.WriteString(e.StrVal)
		default:
			w.fail("literal with unknown base type %d", e.Bt)
		}

	case *til.VarDecl:
		w.writeOperand(e.Definition)
		w.opcode(til.OpVarDecl)
		w.s.WriteUInt8(uint8(e.Kind))
		w.s.WriteUInt32(e.VarIdx)
		w.s.WriteString(e.Name)

	case *til.Variable:
		w.opcode(til.OpVariable)
		w.s.WriteUInt32(e.Decl.VarIdx)

	case *til.Function:
		w.writeScoped(e.Param)
		w.writeOperand(e.Body)
		w.opcode(til.OpFunction)
		w.endAtom()
		w.exitScope()
		return

	case *til.Let:
		w.writeScoped(e.Decl)
		w.writeOperand(e.Body)
		w.opcode(til.OpLet)
		w.endAtom()
		w.exitScope()
		return

	case *til.Code:
		w.writeOperand(e.ReturnType)
		w.writeOperand(e.Body)
		w.opcode(til.OpCode)
		w.s.WriteUInt8(uint8(e.CallConv))

	case *til.Field:
		w.writeOperand(e.Range)
		w.writeOperand(e.Body)
		w.opcode(til.OpField)

	case *til.Slot:
		w.writeOperand(e.Definition)
		w.opcode(til.OpSlot)
		w.s.WriteUInt16(e.Modifiers)
		w.s.WriteString(e.Name)

	case *til.Record:
		w.writeOperand(e.Parent)
		for _, s := range e.Slots {
			w.writeExpr(s)
		}
		w.opcode(til.OpRecord)
		w.s.WriteUInt32(uint32(len(e.Slots)))

	case *til.Array:
		w.writeOperand(e.ElemType)
		w.writeOperand(e.Size)
		for _, el := range e.Elements {
			w.writeOperand(el)
		}
		w.opcode(til.OpArray)
		w.s.WriteUInt64(uint64(len(e.Elements)))

	case *til.ScalarType:
		w.opcode(til.OpScalarType)
		w.s.WriteUInt8(uint8(e.Bt))

	case *til.Apply:
		w.writeOperand(e.Fn)
		w.writeOperand(e.Arg)
		w.opcode(til.OpApply)
		w.s.WriteUInt8(uint8(e.Kind))

	case *til.Project:
		w.writeOperand(e.Rec)
		w.opcode(til.OpProject)
		w.s.WriteString(e.SlotName)

	case *til.Call:
		w.writeOperand(e.Target)
		w.opcode(til.OpCall)
		w.s.WriteUInt8(uint8(e.Bt))

	case *til.Alloc:
		w.writeOperand(e.Init)
		w.opcode(til.OpAlloc)
		w.s.WriteUInt8(uint8(e.Kind))

	case *til.Load:
		w.writeOperand(e.Ptr)
		w.opcode(til.OpLoad)
		w.s.WriteUInt8(uint8(e.Bt))

	case *til.Store:
		w.writeOperand(e.Dest)
		w.writeOperand(e.Source)
		w.opcode(til.OpStore)

	case *til.ArrayIndex:
		w.writeOperand(e.Arr)
		w.writeOperand(e.Index)
		w.opcode(til.OpArrayIndex)

	case *til.ArrayAdd:
		w.writeOperand(e.Arr)
		w.writeOperand(e.Index)
		w.opcode(til.OpArrayAdd)

	case *til.UnaryOp:
		w.writeOperand(e.Expr)
		w.opcode(til.OpUnaryOp)
		w.s.WriteUInt8(uint8(e.Op))
		w.s.WriteUInt8(uint8(e.Bt))

	case *til.BinaryOp:
		w.writeOperand(e.L)
		w.writeOperand(e.R)
		w.opcode(til.OpBinaryOp)
		w.s.WriteUInt8(uint8(e.Op))
		w.s.WriteUInt8(uint8(e.Bt))

	case *til.Cast:
		w.writeOperand(e.Expr)
		w.opcode(til.OpCast)
		w.s.WriteUInt8(uint8(e.Op))
		w.s.WriteUInt8(uint8(e.Bt))

	case *til.Phi:
		// Phi values ride on the Goto atoms of the predecessor edges.
		w.opcode(til.OpPhi)

	case *til.Identifier:
		w.opcode(til.OpIdentifier)
		w.s.WriteString(e.Name)

	case *til.IfThenElse:
		w.writeOperand(e.Cond)
		w.writeOperand(e.Then)
		w.writeOperand(e.Else)
		w.opcode(til.OpIfThenElse)

	case *til.Undefined:
		w.opcode(til.OpUndefined)

	case *til.Wildcard:
		w.opcode(til.OpWildcard)

	case *til.Goto:
		for _, phi := range e.Target.Args {
			w.writeOperand(phi.Values[e.PhiIndex])
		}
		w.opcode(til.OpGoto)
		w.s.WriteUInt32(uint32(len(e.Target.Args)))
		w.s.WriteUInt32(e.Target.BlockID())

	case *til.Branch:
		w.writeOperand(e.Cond)
		w.opcode(til.OpBranch)
		w.s.WriteUInt32(blockIDOf(e.Then))
		w.s.WriteUInt32(blockIDOf(e.Else))

	case *til.Switch:
		w.writeOperand(e.Cond)
		for _, c := range e.Cases {
			w.writeOperand(c.Value)
		}
		w.opcode(til.OpSwitch)
		w.s.WriteUInt32(uint32(len(e.Cases)))
		// The case table can outgrow the atom reserve; bound each entry.
		for _, c := range e.Cases {
			w.endAtom()
			w.s.WriteUInt32(blockIDOf(c.Block))
		}

	case *til.Return:
		w.writeOperand(e.Value)
		w.opcode(til.OpReturn)

	case *til.SCFG:
		w.writeSCFG(e)
		return

	case *til.BasicBlock:
		w.fail("basic block outside CFG framing")
		return

	default:
		w.fail("cannot serialize %s", e.Opcode())
		return
	}
	w.endAtom()
}

func blockIDOf(b *til.BasicBlock) uint32 {
	if b == nil {
		return til.InvalidBlockID
	}
	return b.BlockID()
}

// writeSCFG emits the CFG framing: EnterCFG with the graph's shape, then
// each block bracketed by EnterBlock and a closing BasicBlock opcode, then
// the closing SCFG opcode.
func (w *Writer) writeSCFG(cfg *til.SCFG) {
	if !cfg.IsNormal() {
		w.fail("CFG must be in normal form before serialization")
		return
	}
	w.pseudo(PsEnterCFG)
	w.s.WriteUInt32(uint32(cfg.NumBlocks()))
	w.s.WriteUInt32(cfg.NumInstructions())
	w.s.WriteUInt32(cfg.Entry().BlockID())
	w.s.WriteUInt32(cfg.Exit().BlockID())
	w.endAtom()

	for _, b := range cfg.Blocks {
		w.pseudo(PsEnterBlock)
		w.s.WriteUInt32(b.BlockID())
		w.s.WriteUInt32(b.FirstInstrID())
		w.s.WriteUInt32(uint32(len(b.Args)))
		w.endAtom()

		for _, a := range b.Args {
			w.writeExpr(a)
			w.pseudo(PsBBArgument)
			w.endAtom()
		}
		for _, in := range b.Instrs {
			w.writeExpr(in)
			w.pseudo(PsBBInstruction)
			w.endAtom()
		}
		w.writeExpr(b.Term)

		w.opcode(til.OpBasicBlock)
		w.endAtom()
	}

	w.opcode(til.OpSCFG)
	w.endAtom()
}
