package til

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Debug printer
// ---------------------------------------------------------------------------

// Print returns a human-readable rendering of e. CFGs print as a block
// listing; expression trees print inline.
func Print(e SExpr) string {
	var sb strings.Builder
	printExpr(&sb, e)
	return sb.String()
}

func printExpr(sb *strings.Builder, e SExpr) {
	switch e := e.(type) {
	case nil:
		sb.WriteString("null")

	case *Literal:
		switch e.Bt {
		case BtVoid:
			sb.WriteString("void")
		case BtBool:
			fmt.Fprintf(sb, "%v", e.BoolVal)
		case BtInt:
			sb.WriteString(strconv.FormatInt(e.IntVal, 10))
		case BtFloat:
			sb.WriteString(strconv.FormatFloat(e.FloatVal, 'g', -1, 64))
		case BtString:
			fmt.Fprintf(sb, "%q", e.StrVal)
		}

	case *VarDecl:
		fmt.Fprintf(sb, "let %s = ", e.Name)
		printExpr(sb, e.Definition)

	case *Variable:
		if e.Decl != nil && e.Decl.Name != "" {
			sb.WriteString(e.Decl.Name)
		} else {
			sb.WriteString("_")
		}

	case *Function:
		fmt.Fprintf(sb, "\\%s. ", e.Param.Name)
		printExpr(sb, e.Body)

	case *Code:
		sb.WriteString("code ")
		printExpr(sb, e.Body)

	case *Field:
		sb.WriteString("field ")
		printExpr(sb, e.Body)

	case *Slot:
		fmt.Fprintf(sb, "%s: ", e.Name)
		printExpr(sb, e.Definition)

	case *Record:
		sb.WriteString("{ ")
		for i, s := range e.Slots {
			if i > 0 {
				sb.WriteString("; ")
			}
			printExpr(sb, s)
		}
		sb.WriteString(" }")

	case *Array:
		sb.WriteString("[")
		for i, el := range e.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			printExpr(sb, el)
		}
		sb.WriteString("]")

	case *ScalarType:
		sb.WriteString(strings.ToLower(e.Bt.String()))

	case *Apply:
		printExpr(sb, e.Fn)
		sb.WriteString("(")
		printExpr(sb, e.Arg)
		sb.WriteString(")")

	case *Project:
		printExpr(sb, e.Rec)
		sb.WriteString(".")
		sb.WriteString(e.SlotName)

	case *Call:
		sb.WriteString("call ")
		printExpr(sb, e.Target)

	case *Alloc:
		sb.WriteString("alloc ")
		printExpr(sb, e.Init)

	case *Load:
		sb.WriteString("load ")
		printExpr(sb, e.Ptr)

	case *Store:
		printExpr(sb, e.Dest)
		sb.WriteString(" := ")
		printExpr(sb, e.Source)

	case *ArrayIndex:
		printExpr(sb, e.Arr)
		sb.WriteString("[")
		printExpr(sb, e.Index)
		sb.WriteString("]")

	case *ArrayAdd:
		printExpr(sb, e.Arr)
		sb.WriteString(" ++ ")
		printExpr(sb, e.Index)

	case *UnaryOp:
		sb.WriteString(e.Op.String())
		printExpr(sb, e.Expr)

	case *BinaryOp:
		sb.WriteString("(")
		printExpr(sb, e.L)
		fmt.Fprintf(sb, " %s ", e.Op)
		printExpr(sb, e.R)
		sb.WriteString(")")

	case *Cast:
		fmt.Fprintf(sb, "cast[%d] ", e.Op)
		printExpr(sb, e.Expr)

	case *Phi:
		sb.WriteString("phi(")
		for i, v := range e.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			printRef(sb, v)
		}
		sb.WriteString(")")

	case *Identifier:
		sb.WriteString(e.Name)

	case *Let:
		fmt.Fprintf(sb, "let %s = ", e.Decl.Name)
		printExpr(sb, e.Decl.Definition)
		sb.WriteString(" in ")
		printExpr(sb, e.Body)

	case *IfThenElse:
		sb.WriteString("if ")
		printExpr(sb, e.Cond)
		sb.WriteString(" then ")
		printExpr(sb, e.Then)
		sb.WriteString(" else ")
		printExpr(sb, e.Else)

	case *Undefined:
		sb.WriteString("undefined")

	case *Wildcard:
		sb.WriteString("_")

	case *Goto:
		fmt.Fprintf(sb, "goto B%d", e.Target.BlockID())

	case *Branch:
		sb.WriteString("branch ")
		printRef(sb, e.Cond)
		fmt.Fprintf(sb, " B%d B%d", e.Then.BlockID(), e.Else.BlockID())

	case *Switch:
		sb.WriteString("switch ")
		printRef(sb, e.Cond)
		for _, c := range e.Cases {
			sb.WriteString(" case ")
			printRef(sb, c.Value)
			fmt.Fprintf(sb, ": B%d", c.Block.BlockID())
		}

	case *Return:
		sb.WriteString("return ")
		printRef(sb, e.Value)

	case *BasicBlock:
		printBlock(sb, e)

	case *SCFG:
		fmt.Fprintf(sb, "CFG (%d blocks, %d instructions)\n", e.NumBlocks(), e.NumInstructions())
		for _, b := range e.Blocks {
			printBlock(sb, b)
		}

	default:
		fmt.Fprintf(sb, "<%s>", e.Opcode())
	}
}

// printRef prints instruction operands by ID where possible, so block
// listings stay one line per instruction.
func printRef(sb *strings.Builder, e SExpr) {
	if in, ok := e.(Instruction); ok && in.Block() != nil {
		fmt.Fprintf(sb, "%%%d", in.InstrID())
		return
	}
	printExpr(sb, e)
}

func printBlock(sb *strings.Builder, b *BasicBlock) {
	fmt.Fprintf(sb, "B%d:", b.BlockID())
	if len(b.Preds) > 0 {
		sb.WriteString("  ; preds:")
		for _, p := range b.Preds {
			fmt.Fprintf(sb, " B%d", p.BlockID())
		}
	}
	sb.WriteString("\n")
	for _, a := range b.Args {
		fmt.Fprintf(sb, "  %%%d = ", a.InstrID())
		printExpr(sb, a)
		sb.WriteString("\n")
	}
	for _, in := range b.Instrs {
		fmt.Fprintf(sb, "  %%%d = ", in.InstrID())
		printExpr(sb, in)
		sb.WriteString("\n")
	}
	sb.WriteString("  ")
	if b.Term != nil {
		printExpr(sb, b.Term)
	} else {
		sb.WriteString("<no terminator>")
	}
	sb.WriteString("\n")
}
