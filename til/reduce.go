package til

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("weft.til")

// ---------------------------------------------------------------------------
// VarContext
// ---------------------------------------------------------------------------

// VarContext resolves identifiers by name during reduction. Innermost
// binding wins.
type VarContext struct {
	vars []*VarDecl
}

// Lookup returns the innermost declaration named name, or nil.
func (c *VarContext) Lookup(name string) *VarDecl {
	for i := len(c.vars) - 1; i >= 0; i-- {
		if c.vars[i].Name == name {
			return c.vars[i]
		}
	}
	return nil
}

// Push enters a binding.
func (c *VarContext) Push(vd *VarDecl) { c.vars = append(c.vars, vd) }

// Pop leaves the innermost binding.
func (c *VarContext) Pop() { c.vars = c.vars[:len(c.vars)-1] }

// ---------------------------------------------------------------------------
// CFG reducer
// ---------------------------------------------------------------------------

// Reducer lowers a purely functional expression tree into CFG form in a
// single traversal. The traversal is continuation-passing: every
// sub-expression is visited with an optional continuation block; a value
// with a continuation terminates the current block with a Goto carrying
// the value into the continuation's phi slot.
type Reducer struct {
	b       *Builder
	varCtx  VarContext
	declMap map[*VarDecl]*VarDecl
}

// ConvertToCFG lowers e into a new SCFG allocated from arena and computes
// its normal form.
func ConvertToCFG(e SExpr, arena *Arena) (*SCFG, error) {
	r := &Reducer{
		b:       NewBuilder(arena),
		declMap: make(map[*VarDecl]*VarDecl),
	}
	cfg := r.b.BeginCFG(nil)
	r.b.BeginBlock(cfg.Entry())
	logger.Debugf("start entry block")

	r.traverse(e, cfg.Exit())

	if bb := r.b.CurrentBB(); bb != nil {
		if bb.Term == nil {
			return nil, fmt.Errorf("til: reduction left block %d unterminated", bb.BlockID())
		}
		r.b.EndBlock(nil)
	}
	r.b.EndCFG()

	if err := cfg.ComputeNormalForm(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// traverse visits e and routes its value according to the context: outside
// a CFG the rebuilt node is returned; inside a CFG without a continuation
// the value lands in the current block; with a continuation the current
// block is terminated with a Goto carrying the value.
func (r *Reducer) traverse(e SExpr, cont *BasicBlock) SExpr {
	if ite, ok := e.(*IfThenElse); ok && r.insideCFG() {
		return r.lowerIfThenElse(ite, cont)
	}

	res := r.reduce(e)

	if !r.insideCFG() {
		return res
	}
	if cont == nil {
		return r.b.AddInstruction(res)
	}
	r.createGoto(res, cont)
	return nil
}

func (r *Reducer) insideCFG() bool { return r.b.CurrentBB() != nil }

// lowerIfThenElse introduces the diamond: a branch out of the current
// block, fresh then and else blocks, and a continuation block whose phi
// argument is the expression's value. The else branch is processed first
// so that phi slot indices match predecessor-addition order.
func (r *Reducer) lowerIfThenElse(e *IfThenElse, cont *BasicBlock) SExpr {
	own := cont == nil
	k := cont
	if own {
		k = r.makeContinuation()
	}

	cond := r.traverse(e.Cond, nil)

	thenB := r.b.NewBlock(0)
	elseB := r.b.NewBlock(0)
	r.b.NewBranch(cond, thenB, elseB)
	r.finishBlock()

	r.startBlock(elseB)
	r.traverse(e.Else, k)

	r.startBlock(thenB)
	r.traverse(e.Then, k)

	if !own {
		// All paths delivered the value into the caller's continuation;
		// whoever created it starts it.
		return nil
	}
	r.startBlock(k)
	return k.Args[0]
}

// makeContinuation creates a block with a single phi argument to receive
// the value of the expression under reduction.
func (r *Reducer) makeContinuation() *BasicBlock {
	return r.b.NewBlock(1)
}

func (r *Reducer) startBlock(bb *BasicBlock) {
	if r.b.CurrentBB() != nil {
		panic("til: startBlock with a block still open")
	}
	logger.Debugf("start block")
	r.b.BeginBlock(bb)
}

func (r *Reducer) finishBlock() {
	logger.Debugf("finish block %d instrs", len(r.b.CurrentBB().Instrs))
	r.b.EndBlock(nil)
}

// createGoto terminates the current block, passing result into the
// target's first phi argument.
func (r *Reducer) createGoto(result SExpr, target *BasicBlock) {
	var args []SExpr
	if target.NumArguments() > 0 {
		args = []SExpr{result}
	}
	r.b.NewGoto(target, args)
	r.finishBlock()
}

// enterScope records a named declaration. Inside a CFG the declaration
// stands in for the instruction computing its definition.
func (r *Reducer) enterScope(orig, nvd *VarDecl) {
	r.declMap[orig] = nvd
	if orig.Name == "" {
		return
	}
	r.varCtx.Push(nvd)
	if bb := r.b.CurrentBB(); bb != nil {
		if n := len(bb.Instrs); n > 0 && SExpr(bb.Instrs[n-1]) == nvd.Definition {
			// The declaration names the instruction it binds: it takes the
			// definition's slot, and the definition serializes within it.
			bb.Instrs[n-1].SetBlock(nil)
			bb.Instrs[n-1] = nvd
			nvd.SetBlock(bb)
		} else {
			bb.AddInstruction(nvd)
		}
	}
}

func (r *Reducer) exitScope(orig *VarDecl) {
	if orig.Name != "" {
		r.varCtx.Pop()
	}
}

// suspendCFG turns off instruction placement while reducing value bodies
// (functions, code, records) whose computations do not belong to the
// enclosing CFG.
func (r *Reducer) suspendCFG() *BasicBlock {
	bb := r.b.CurrentBB()
	r.b.bb = nil
	return bb
}

func (r *Reducer) resumeCFG(bb *BasicBlock) {
	r.b.bb = bb
}

// reduceVarDecl rebuilds a declaration, reducing its definition.
func (r *Reducer) reduceVarDecl(vd *VarDecl) *VarDecl {
	var defn SExpr
	if vd.Definition != nil {
		defn = r.traverse(vd.Definition, nil)
	}
	nvd := r.b.NewVarDecl(vd.Kind, vd.Name, defn)
	nvd.VarIdx = vd.VarIdx
	return nvd
}

// reduce rebuilds one node, traversing children as sub-expressions.
func (r *Reducer) reduce(e SExpr) SExpr {
	switch e := e.(type) {
	case *Literal:
		c := *e
		r.b.Arena().note()
		return &c

	case *Variable:
		if nvd, ok := r.declMap[e.Decl]; ok {
			if r.insideCFG() {
				// Inside a CFG the declaration is a placed instruction;
				// uses reference it directly so they serialize weakly.
				return nvd
			}
			return r.b.NewVariable(nvd)
		}
		return r.b.NewVariable(e.Decl)

	case *Identifier:
		if vd := r.varCtx.Lookup(e.Name); vd != nil {
			if r.insideCFG() {
				return vd
			}
			return r.b.NewVariable(vd)
		}
		logger.Warningf("unresolved identifier %q", e.Name)
		return r.b.NewIdentifier(e.Name)

	case *Let:
		nvd := r.reduceVarDecl(e.Decl)
		r.enterScope(e.Decl, nvd)
		body := r.traverse(e.Body, nil)
		r.exitScope(e.Decl)
		if r.insideCFG() {
			return body // the let is eliminated; the binding is in scope
		}
		return r.b.NewLet(nvd, body)

	case *Function:
		saved := r.suspendCFG()
		nvd := r.reduceVarDecl(e.Param)
		r.enterScope(e.Param, nvd)
		body := r.traverse(e.Body, nil)
		r.exitScope(e.Param)
		r.resumeCFG(saved)
		return r.b.NewFunction(nvd, body)

	case *Code:
		saved := r.suspendCFG()
		ret := r.traverse(e.ReturnType, nil)
		body := r.traverse(e.Body, nil)
		r.resumeCFG(saved)
		c := r.b.NewCode(ret, body)
		c.CallConv = e.CallConv
		return c

	case *Field:
		saved := r.suspendCFG()
		rng := r.traverse(e.Range, nil)
		body := r.traverse(e.Body, nil)
		r.resumeCFG(saved)
		return r.b.NewField(rng, body)

	case *Slot:
		saved := r.suspendCFG()
		defn := r.traverse(e.Definition, nil)
		r.resumeCFG(saved)
		s := r.b.NewSlot(e.Name, defn)
		s.Modifiers = e.Modifiers
		return s

	case *Record:
		saved := r.suspendCFG()
		var parent SExpr
		if e.Parent != nil {
			parent = r.traverse(e.Parent, nil)
		}
		rec := r.b.NewRecord(len(e.Slots), parent)
		for _, s := range e.Slots {
			rec.Slots = append(rec.Slots, r.reduce(s).(*Slot))
		}
		r.resumeCFG(saved)
		return rec

	case *Array:
		var et, sz SExpr
		if e.ElemType != nil {
			et = r.traverse(e.ElemType, nil)
		}
		if e.Size != nil {
			sz = r.traverse(e.Size, nil)
		}
		elems := make([]SExpr, len(e.Elements))
		for i, el := range e.Elements {
			elems[i] = r.traverse(el, nil)
		}
		return r.b.NewArray(et, sz, elems...)

	case *ScalarType:
		return r.b.NewScalarType(e.Bt)

	case *Apply:
		fn := r.traverse(e.Fn, nil)
		arg := r.traverse(e.Arg, nil)
		return r.b.NewApply(fn, arg, e.Kind)

	case *Project:
		return r.b.NewProject(r.traverse(e.Rec, nil), e.SlotName)

	case *Call:
		c := r.b.NewCall(r.traverse(e.Target, nil))
		c.Bt = e.Bt
		return c

	case *Alloc:
		return r.b.NewAlloc(r.traverse(e.Init, nil), e.Kind)

	case *Load:
		l := r.b.NewLoad(r.traverse(e.Ptr, nil))
		l.Bt = e.Bt
		return l

	case *Store:
		dest := r.traverse(e.Dest, nil)
		src := r.traverse(e.Source, nil)
		return r.b.NewStore(dest, src)

	case *ArrayIndex:
		a := r.traverse(e.Arr, nil)
		i := r.traverse(e.Index, nil)
		return r.b.NewArrayIndex(a, i)

	case *ArrayAdd:
		a := r.traverse(e.Arr, nil)
		i := r.traverse(e.Index, nil)
		return r.b.NewArrayAdd(a, i)

	case *UnaryOp:
		u := r.b.NewUnaryOp(e.Op, r.traverse(e.Expr, nil))
		u.Bt = e.Bt
		return u

	case *BinaryOp:
		l := r.traverse(e.L, nil)
		rr := r.traverse(e.R, nil)
		n := r.b.NewBinaryOp(e.Op, l, rr)
		n.Bt = e.Bt
		return n

	case *Cast:
		c := r.b.NewCast(e.Op, r.traverse(e.Expr, nil))
		c.Bt = e.Bt
		return c

	case *IfThenElse:
		// Only reached outside a CFG: rebuild the expression form.
		cond := r.traverse(e.Cond, nil)
		thenE := r.traverse(e.Then, nil)
		elseE := r.traverse(e.Else, nil)
		return r.b.NewIfThenElse(cond, thenE, elseE)

	case *Undefined:
		return r.b.NewUndefined()

	case *Wildcard:
		return r.b.NewWildcard()

	case *VarDecl:
		return r.reduceVarDecl(e)

	default:
		// CFG forms do not occur in a pure expression tree.
		return e
	}
}
