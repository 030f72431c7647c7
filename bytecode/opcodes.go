package bytecode

import (
	"fmt"

	"github.com/chazu/weft/til"
)

// ---------------------------------------------------------------------------
// Opcode framing
// ---------------------------------------------------------------------------

// PseudoOp is a structural tag in the bytecode stream: scope, block, and
// CFG boundaries rather than IR nodes. Pseudo-opcodes occupy the low range
// of the shared single-byte tag space; expression opcodes sit above them.
type PseudoOp uint8

const (
	PsNull PseudoOp = iota
	PsWeakInstrRef
	PsBBArgument
	PsBBInstruction
	PsEnterScope
	PsExitScope
	PsEnterBlock
	PsEnterCFG
	PsAnnotation

	numPseudoOps
)

var pseudoOpNames = [numPseudoOps]string{
	"Null", "WeakInstrRef", "BBArgument", "BBInstruction",
	"EnterScope", "ExitScope", "EnterBlock", "EnterCFG", "Annotation",
}

func (op PseudoOp) String() string {
	if op < numPseudoOps {
		return pseudoOpNames[op]
	}
	return fmt.Sprintf("PseudoOp(%d)", uint8(op))
}

// exprTag maps a TIL opcode into the shared tag space.
func exprTag(op til.Opcode) uint8 {
	return uint8(numPseudoOps) + uint8(op)
}

// isExprTag reports whether tag encodes an expression opcode.
func isExprTag(tag uint8) bool {
	return tag >= uint8(numPseudoOps) && tag < uint8(numPseudoOps)+uint8(til.NumOpcodes)
}

// tagOpcode recovers the TIL opcode from an expression tag.
func tagOpcode(tag uint8) til.Opcode {
	return til.Opcode(tag - uint8(numPseudoOps))
}
