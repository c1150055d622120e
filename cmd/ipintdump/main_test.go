package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-ipint/compile"
	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

func writeModule(t *testing.T) string {
	t.Helper()
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0, 0},
		Code: []wasm.FuncBody{
			{Code: wasm.EncodeInstructions([]wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
				{Opcode: wasm.OpEnd},
			})},
			{Code: wasm.EncodeInstructions([]wasm.Instruction{
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
				{Opcode: wasm.OpEnd},
			})},
		},
	}
	path := filepath.Join(t.TempDir(), "m.wasm")
	if err := os.WriteFile(path, m.Encode(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunDump(t *testing.T) {
	path := writeModule(t)
	opts := compile.Options{Config: ipint.Config{CallingConvention: ipint.AMD64}}

	var out strings.Builder
	if err := run(&out, path, 1, false, false, opts); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"Functions: 2 defined, 0 imported", "func[1] bytecode=1+4", "0000: 01 00 00 00 02 00 00 00"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "func[0] bytecode") {
		t.Errorf("-func 1 also dumped func[0]:\n%s", got)
	}
}

func TestRunSummary(t *testing.T) {
	var out strings.Builder
	if err := run(&out, writeModule(t), -1, true, false, compile.Options{}); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out.String(), "entries=2"); n != 2 {
		t.Errorf("summary lines = %d, want 2:\n%s", n, out.String())
	}
}

func TestRunMissingFile(t *testing.T) {
	err := run(&strings.Builder{}, filepath.Join(t.TempDir(), "missing.wasm"), -1, false, false, compile.Options{})
	if err == nil || !strings.Contains(err.Error(), "read file") {
		t.Errorf("err = %v, want read failure", err)
	}
}

func TestConvention(t *testing.T) {
	if cc, err := convention("arm64"); err != nil || cc != ipint.ARM64 {
		t.Errorf("arm64 = %+v, %v", cc, err)
	}
	if _, err := convention("mips"); err == nil {
		t.Error("expected error for unknown architecture")
	}
}
