package compile_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-ipint/compile"
	"github.com/wippyai/wasm-ipint/errors"
	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

// counters has eight functions of the same shape with different constants,
// preceded by one imported function.
func counters() *wasm.Module {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: types(wasm.ValI32), Results: types(wasm.ValI32)},
		},
		Imports: []wasm.Import{{Module: "env", Name: "tick", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
	}
	for i := range 8 {
		m.Funcs = append(m.Funcs, 0)
		m.Code = append(m.Code, wasm.FuncBody{
			Locals: []wasm.LocalEntry{{Count: uint32(i), ValType: wasm.ValI64}},
			Code: wasm.EncodeInstructions([]wasm.Instruction{
				block(wasm.OpLoop, wasm.BlockTypeVoid),
				localGet(0),
				i32(int32(i)),
				op(wasm.OpI32Add),
				imm(wasm.OpCall, wasm.CallImm{FuncIdx: 0}),
				imm(wasm.OpBrIf, wasm.BranchImm{LabelIdx: 0}),
				op(wasm.OpEnd),
				localGet(0),
				op(wasm.OpEnd),
			}),
		})
	}
	return m
}

func TestModuleMatchesFunction(t *testing.T) {
	bin := counters().Encode()
	ctx := context.Background()

	parallel := opts
	parallel.Concurrency = 3
	res, err := compile.Module(ctx, bin, parallel)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Functions) != 8 {
		t.Fatalf("functions = %d, want 8", len(res.Functions))
	}
	if res.Function(0) != nil {
		t.Error("imported function has metadata")
	}

	for i := range res.Functions {
		idx := uint32(i + 1)
		want, err := compile.Function(ctx, res.Module, idx, opts)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, res.Function(idx)); diff != "" {
			t.Errorf("func %d differs from sequential compilation (-want +got):\n%s", idx, diff)
		}
		if got := res.Function(idx).NumLocals; got != uint32(1+i) {
			t.Errorf("func %d locals = %d, want %d", idx, got, 1+i)
		}
	}
	if res.MetadataSize() != 8*len(res.Functions[0].Metadata) {
		t.Errorf("MetadataSize() = %d", res.MetadataSize())
	}
}

func TestModuleFailureStopsCompilation(t *testing.T) {
	m := counters()
	m.Code[3].Code = wasm.EncodeInstructions([]wasm.Instruction{op(wasm.OpI32Add), op(wasm.OpEnd)})

	res, err := compile.Module(context.Background(), m.Encode(), opts)
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("err = %v, want invalid data", err)
	}
	if res == nil || res.Functions[3] != nil {
		t.Error("failed function should have no metadata")
	}
}

func TestModuleCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := compile.Module(ctx, counters().Encode(), opts)
	if !errors.IsKind(err, errors.KindCanceled) {
		t.Errorf("err = %v, want canceled", err)
	}
}

func TestModuleDecodeError(t *testing.T) {
	_, err := compile.Module(context.Background(), []byte("\x00asm\x02\x00\x00\x00"), opts)
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestModuleValidate(t *testing.T) {
	ctx := context.Background()
	validating := opts
	validating.Validate = true

	if _, err := compile.Module(ctx, counters().Encode(), validating); err != nil {
		t.Fatalf("valid module: %v", err)
	}

	// Well formed but ill typed: an f32 where an i32 result is expected.
	bad := &wasm.Module{
		Types: []wasm.FuncType{{Results: types(wasm.ValI32)}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{{Code: wasm.EncodeInstructions([]wasm.Instruction{
			imm(wasm.OpF32Const, wasm.F32Imm{}),
			op(wasm.OpEnd),
		})}},
	}
	bin := bad.Encode()

	if _, err := compile.Module(ctx, bin, opts); err != nil {
		t.Fatalf("without validation: %v", err)
	}
	_, err := compile.Module(ctx, bin, validating)
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseValidate, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestCompileParsedModule(t *testing.T) {
	m := reparse(t, counters())
	res, err := compile.Compile(context.Background(), m, compile.Options{})
	if err != nil {
		t.Fatal(err)
	}
	host := ipint.NewArgumentLayout(types(wasm.ValI32), ipint.HostConvention())
	if got := res.Function(1).ArgumentLocations; !cmp.Equal(got, host.Locations) {
		t.Errorf("argument locations = %v, want host layout %v", got, host.Locations)
	}
}
