package ipint_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

func TestArgumentsOnly(t *testing.T) {
	// (i32, i32) -> i32: local.get 0; local.get 1; i32.add; end
	g, c := newGenerator(amd64, nil, sig(vals(wasm.ValI32, wasm.ValI32), vals(wasm.ValI32)))
	c.step(wasm.OpLocalGet, 2)
	must(t, g.LocalGet(0))
	c.step(wasm.OpLocalGet, 2)
	must(t, g.LocalGet(1))
	c.step(wasm.OpI32Add, 1)
	md := finish(t, g, c)

	want := []byte{
		0, 0, 0, 0, 2, 0, 0, 0, // local.get slot 0 (gpr 0)
		1, 0, 0, 0, 2, 0, 0, 0, // local.get slot 1 (gpr 1)
		8, 0, 0x7F, 0, 0, 0, 0, 0, // return data: i32
	}
	if diff := cmp.Diff(want, md.Metadata); diff != "" {
		t.Errorf("metadata (-want +got):\n%s", diff)
	}
	if md.BytecodeOffset != 1 || md.BytecodeLength != 7 {
		t.Errorf("bytecode = %d+%d, want 1+7", md.BytecodeOffset, md.BytecodeLength)
	}
	if md.NumLocals != 2 || md.NumArguments != 2 || md.NumArgumentsOnStack != 0 {
		t.Errorf("counts = %d/%d/%d", md.NumLocals, md.NumArguments, md.NumArgumentsOnStack)
	}
}

func TestFunctionReturnData(t *testing.T) {
	results := vals(wasm.ValI64, wasm.ValF32, wasm.ValFuncRef, wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValF64)
	g, c := newGenerator(amd64, nil, sig(vals(wasm.ValF64), results))
	if top := g.ScopeAt(0); top.Kind() != ipint.ScopeTopLevel || top.BranchArity() != len(results) {
		t.Fatalf("function scope = %s arity %d", top.Kind(), top.BranchArity())
	}
	md := finish(t, g, c)

	want := []byte{
		16, 0, 0x7E, 0x7D, 0x70, 0x7F, 0x7F, 0x7F,
		0x7C, 0, 0, 0, 0, 0, 0, 0,
	}
	if diff := cmp.Diff(want, md.Metadata); diff != "" {
		t.Errorf("return data (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(results, md.ReturnTypes); diff != "" {
		t.Errorf("return types (-want +got):\n%s", diff)
	}
}

func TestBranchTypes(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpBlock, 2)
	must(t, g.Block(sig(vals(wasm.ValI32), vals(wasm.ValF64))))
	c.step(wasm.OpLoop, 2)
	must(t, g.Loop(sig(vals(wasm.ValI64), vals(wasm.ValF32))))

	// Loops carry their parameters, everything else its results.
	if got := g.ScopeAt(0).BranchType(0); got != wasm.ValI64 {
		t.Errorf("loop branch type = %s, want i64", got)
	}
	if got := g.ScopeAt(1).BranchType(0); got != wasm.ValF64 {
		t.Errorf("block branch type = %s, want f64", got)
	}
}

func TestBlockBranch(t *testing.T) {
	// block (result i32) i32.const 5 br 0 end end
	g, c := newGenerator(amd64, nil, sig(nil, vals(wasm.ValI32)))
	c.step(wasm.OpBlock, 2)
	must(t, g.Block(sig(nil, vals(wasm.ValI32))))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(5))
	c.step(wasm.OpBr, 2)
	must(t, g.Br(0, 1))

	block := g.ScopeAt(0)
	if diff := cmp.Diff([]ipint.Offset{16}, block.Awaiting()); diff != "" {
		t.Errorf("awaiting (-want +got):\n%s", diff)
	}

	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	if got := md.Uint64At(0); got != 2 {
		t.Errorf("block entry PC = %d, want 2", got)
	}
	if got := md.TargetAt(16); got != (ipint.Target{PC: 6, MC: 32}) {
		t.Errorf("br target = %+v, want {6 32}", got)
	}
	if pop, arity := md.Uint16At(24), md.Uint16At(26); pop != 0 || arity != 1 {
		t.Errorf("pop/arity = %d/%d, want 0/1", pop, arity)
	}
	if got := md.Uint32At(28); got != 6 {
		t.Errorf("resume PC = %d, want 6", got)
	}
}

func TestLoopBranchTargetsEntry(t *testing.T) {
	// i32.const 1 loop (param i32) br 0 end end
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(1))
	c.step(wasm.OpLoop, 2)
	must(t, g.Loop(sig(vals(wasm.ValI32), nil)))

	entry, ok := g.ScopeAt(0).Entry()
	if !ok || entry != (ipint.Target{PC: 4, MC: 16}) {
		t.Fatalf("loop entry = %+v %v, want {4 16}", entry, ok)
	}

	c.step(wasm.OpBr, 2)
	must(t, g.Br(0, 1))
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	if got := md.TargetAt(16); got != entry {
		t.Errorf("br target = %+v, want loop entry %+v", got, entry)
	}
	if pop, arity := md.Uint16At(24), md.Uint16At(26); pop != 0 || arity != 1 {
		t.Errorf("pop/arity = %d/%d, want 0/1", pop, arity)
	}
}

func TestIfWithoutElse(t *testing.T) {
	// i32.const 0 if (result i32) i32.const 1 end end
	g, c := newGenerator(amd64, nil, sig(nil, vals(wasm.ValI32)))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(0))
	c.step(wasm.OpIf, 2)
	must(t, g.If(sig(nil, vals(wasm.ValI32))))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(1))

	c.step(wasm.OpEnd, 1)
	before := g.Len()
	must(t, g.Else())
	if g.Len() != before {
		t.Errorf("implicit else allocated %d bytes", g.Len()-before)
	}
	s := g.ScopeAt(0)
	if _, ok := s.Pending(); ok || s.Kind() != ipint.ScopeBlock {
		t.Errorf("scope after implicit else = %s pending=%v, want block without pending", s.Kind(), ok)
	}
	must(t, g.End())
	if len(s.Awaiting()) != 0 {
		t.Errorf("awaiting = %v, want none", s.Awaiting())
	}
	md := finish(t, g, c)

	if got := md.TargetAt(8); got != (ipint.Target{PC: 7, MC: 32}) {
		t.Errorf("false edge = %+v, want {7 32}", got)
	}
	if len(md.Metadata) != 40 {
		t.Errorf("metadata size = %d, want 40", len(md.Metadata))
	}
}

func TestIfElse(t *testing.T) {
	// i32.const 0 if nop else nop end end
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(0))
	c.step(wasm.OpIf, 2)
	must(t, g.If(sig(nil, nil)))
	c.step(wasm.OpNop, 1)
	c.step(wasm.OpElse, 1)
	must(t, g.Else())
	c.step(wasm.OpNop, 1)
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	// The false edge enters the else branch past its placeholder.
	if got := md.TargetAt(8); got != (ipint.Target{PC: 6, MC: 32}) {
		t.Errorf("false edge = %+v, want {6 32}", got)
	}
	// The then branch ends at the else entry, which jumps to the end.
	if got := md.TargetAt(24); got != (ipint.Target{PC: 7, MC: 32}) {
		t.Errorf("else entry = %+v, want {7 32}", got)
	}
}

func TestBranchOutOfIfSurvivesElse(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(0))
	c.step(wasm.OpIf, 2)
	must(t, g.If(sig(nil, nil)))
	c.step(wasm.OpBr, 2)
	must(t, g.Br(0, 0)) // MC 24
	c.step(wasm.OpElse, 1)
	must(t, g.Else()) // placeholder at MC 40
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	want := ipint.Target{PC: 7, MC: 48}
	if got := md.TargetAt(24); got != want {
		t.Errorf("br target = %+v, want %+v", got, want)
	}
	if got := md.TargetAt(40); got != want {
		t.Errorf("else entry = %+v, want %+v", got, want)
	}
}

func TestBrTable(t *testing.T) {
	// block block i32.const 0 br_table 0 1 1 end end end
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpBlock, 2)
	must(t, g.Block(sig(nil, nil)))
	c.step(wasm.OpBlock, 2)
	must(t, g.Block(sig(nil, nil)))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(0))
	c.step(wasm.OpBrTable, 5)
	must(t, g.BrTable([]uint32{0, 1}, 1, 0))
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	if got := md.Uint64At(24); got != 3 {
		t.Errorf("target count = %d, want 3", got)
	}
	tests := []struct {
		want ipint.Target
		at   int
	}{
		{ipint.Target{PC: 11, MC: 80}, 32},
		{ipint.Target{PC: 12, MC: 80}, 48},
		{ipint.Target{PC: 12, MC: 80}, 64},
	}
	for _, tt := range tests {
		if got := md.TargetAt(tt.at); got != tt.want {
			t.Errorf("entry @%d = %+v, want %+v", tt.at, got, tt.want)
		}
		if got := md.Uint32At(tt.at + 12); got != 11 {
			t.Errorf("entry @%d resume = %d, want 11", tt.at, got)
		}
	}
}

func TestBrTableToLoop(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpLoop, 2)
	must(t, g.Loop(sig(nil, nil)))
	entry, _ := g.ScopeAt(0).Entry()
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(0))
	c.step(wasm.OpBrTable, 4)
	must(t, g.BrTable([]uint32{0}, 1, 0))
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	if got := md.TargetAt(24); got != entry {
		t.Errorf("loop label = %+v, want %+v", got, entry)
	}
	if got := md.TargetAt(40); got.MC != 56 {
		t.Errorf("function label = %+v, want MC 56", got)
	}
}

func TestValuesToPopPlusArity(t *testing.T) {
	// Branches from a scope holding three operands to targets of arity 0, 1, 2.
	g, c := newGenerator(amd64, nil, sig(nil, vals(wasm.ValI32, wasm.ValI32)))
	c.step(wasm.OpBlock, 2)
	must(t, g.Block(sig(nil, vals(wasm.ValI32))))
	c.step(wasm.OpLoop, 2)
	must(t, g.Loop(sig(nil, nil)))
	c.step(wasm.OpBrIf, 2)
	must(t, g.BrIf(0, 3))
	c.step(wasm.OpBrIf, 2)
	must(t, g.BrIf(1, 3))
	c.step(wasm.OpBr, 2)
	must(t, g.Br(2, 3))

	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	for i, arity := range []int{0, 1, 2} {
		at := 16 + 16*i
		pop, keep := md.Uint16At(at+8), md.Uint16At(at+10)
		if int(keep) != arity || int(pop)+int(keep) != 3 {
			t.Errorf("branch %d: pop=%d keep=%d, want keep=%d and sum 3", i, pop, keep, arity)
		}
	}
}

func TestTryCatch(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpTry, 2)
	must(t, g.Try(sig(nil, nil)))
	c.step(wasm.OpBr, 2)
	must(t, g.Br(0, 0)) // MC 0
	c.step(wasm.OpCatch, 2)
	must(t, g.Catch())
	if s := g.ScopeAt(0); s.Kind() != ipint.ScopeCatch || s.CatchKind() != ipint.CatchTag {
		t.Errorf("scope = %s/%d, want catch/tag", s.Kind(), s.CatchKind())
	}
	c.step(wasm.OpCatchAll, 1)
	must(t, g.CatchAll())
	if s := g.ScopeAt(0); s.CatchKind() != ipint.CatchAll || len(s.Awaiting()) != 1 {
		t.Errorf("catch_all lost state: kind=%d awaiting=%v", s.CatchKind(), s.Awaiting())
	}
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md := finish(t, g, c)

	if got := md.TargetAt(0); got != (ipint.Target{PC: 7, MC: 16}) {
		t.Errorf("br out of try = %+v, want {7 16}", got)
	}
}

func TestDelegate(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpTry, 2)
	must(t, g.Try(sig(nil, nil)))
	c.step(wasm.OpBr, 2)
	must(t, g.Br(0, 0))
	c.step(wasm.OpDelegate, 2)
	must(t, g.Delegate(0))
	md := finish(t, g, c)

	if got := md.TargetAt(0); got != (ipint.Target{PC: 6, MC: 16}) {
		t.Errorf("br out of try = %+v, want {6 16}", got)
	}
}

func TestFinalizeOpenScope(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpBlock, 2)
	must(t, g.Block(sig(nil, nil)))
	if _, err := g.Finalize(); err == nil {
		t.Fatal("expected error for unterminated body")
	}
	if g.Done() {
		t.Error("generator done with open scopes")
	}
}

func TestIdempotent(t *testing.T) {
	run := func() []byte {
		g, c := newGenerator(amd64, nil, sig(vals(wasm.ValI64, wasm.ValF32), vals(wasm.ValF32)))
		g.AddLocals(2)
		c.step(wasm.OpBlock, 2)
		must(t, g.Block(sig(nil, nil)))
		c.step(wasm.OpLocalGet, 2)
		must(t, g.LocalGet(3))
		c.step(wasm.OpBrIf, 2)
		must(t, g.BrIf(0, 0))
		c.step(wasm.OpCall, 2)
		must(t, g.Call(1, sig(vals(wasm.ValI64, wasm.ValF32), vals(wasm.ValF32))))
		c.step(wasm.OpEnd, 1)
		must(t, g.End())
		return finish(t, g, c).Metadata
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}
