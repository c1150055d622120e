package compile_test

import (
	"testing"

	"github.com/wippyai/wasm-ipint/wasm"
)

func op(code byte) wasm.Instruction {
	return wasm.Instruction{Opcode: code}
}

func imm(code byte, v any) wasm.Instruction {
	return wasm.Instruction{Opcode: code, Imm: v}
}

func i32(v int32) wasm.Instruction      { return imm(wasm.OpI32Const, wasm.I32Imm{Value: v}) }
func localGet(i uint32) wasm.Instruction { return imm(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: i}) }
func br(depth uint32) wasm.Instruction   { return imm(wasm.OpBr, wasm.BranchImm{LabelIdx: depth}) }
func block(op byte, bt int32) wasm.Instruction {
	return imm(op, wasm.BlockImm{Type: bt})
}

func types(ts ...wasm.ValType) []wasm.ValType { return ts }

// module builds, encodes and reparses a module whose function i has type
// funcTypes[i] and the given code. Round-tripping gives bodies real offsets.
func module(t *testing.T, funcTypes []wasm.FuncType, codes ...[]wasm.Instruction) *wasm.Module {
	t.Helper()
	m := &wasm.Module{Types: funcTypes}
	for i, code := range codes {
		m.Funcs = append(m.Funcs, uint32(i))
		m.Code = append(m.Code, wasm.FuncBody{Code: wasm.EncodeInstructions(code)})
	}
	return reparse(t, m)
}

func reparse(t *testing.T, m *wasm.Module) *wasm.Module {
	t.Helper()
	parsed, err := wasm.ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	return parsed
}
