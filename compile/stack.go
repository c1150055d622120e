package compile

import (
	"github.com/wippyai/wasm-ipint/wasm"
)

// effect returns the static operand stack effect of a non-control
// instruction. Calls, branches and block instructions depend on types and
// are handled by the walker.
func effect(instr wasm.Instruction) (pops, pushes int, ok bool) {
	op := instr.Opcode
	switch {
	case wasm.IsNumeric(op):
		n, ok := wasm.NumericShape(op)
		return n, 1, ok
	case wasm.IsLoad(op):
		return 1, 1, true
	case wasm.IsStore(op):
		return 2, 0, true
	}

	switch op {
	case wasm.OpNop:
		return 0, 0, true
	case wasm.OpDrop:
		return 1, 0, true
	case wasm.OpSelect, wasm.OpSelectType:
		return 3, 1, true
	case wasm.OpLocalGet, wasm.OpGlobalGet:
		return 0, 1, true
	case wasm.OpLocalSet, wasm.OpGlobalSet:
		return 1, 0, true
	case wasm.OpLocalTee:
		return 1, 1, true
	case wasm.OpTableGet:
		return 1, 1, true
	case wasm.OpTableSet:
		return 2, 0, true
	case wasm.OpMemorySize:
		return 0, 1, true
	case wasm.OpMemoryGrow:
		return 1, 1, true
	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		return 0, 1, true
	case wasm.OpRefNull, wasm.OpRefFunc:
		return 0, 1, true
	case wasm.OpRefIsNull, wasm.OpRefAsNonNull:
		return 1, 1, true
	case wasm.OpPrefixMisc:
		return miscEffect(instr.Sub)
	}
	return 0, 0, false
}

func miscEffect(sub uint32) (pops, pushes int, ok bool) {
	switch sub {
	case wasm.MiscMemoryInit, wasm.MiscMemoryCopy, wasm.MiscMemoryFill,
		wasm.MiscTableInit, wasm.MiscTableCopy, wasm.MiscTableFill:
		return 3, 0, true
	case wasm.MiscDataDrop, wasm.MiscElemDrop:
		return 0, 0, true
	case wasm.MiscTableGrow:
		return 2, 1, true
	case wasm.MiscTableSize:
		return 0, 1, true
	}
	if sub <= wasm.MiscI64TruncSatF64U {
		return 1, 1, true
	}
	return 0, 0, false
}
