package ipint_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-ipint/errors"
	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

func TestConstants(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpI32Const, 3)
	must(t, g.I32Const(-100))
	c.step(wasm.OpI64Const, 10)
	must(t, g.I64Const(-1 << 40))
	c.step(wasm.OpDrop, 1)
	c.step(wasm.OpDrop, 1)
	md := finish(t, g, c)

	if got := int32(md.Uint32At(0)); got != -100 {
		t.Errorf("i32 value = %d, want -100", got)
	}
	if got := md.Uint32At(4); got != 3 {
		t.Errorf("i32 length = %d, want 3", got)
	}
	if got := int64(md.Uint64At(8)); got != -1<<40 {
		t.Errorf("i64 value = %d", got)
	}
	if got := md.Uint64At(16); got != 10 {
		t.Errorf("i64 length = %d, want 10", got)
	}
}

func TestLocalSlots(t *testing.T) {
	// Seven integer arguments on AMD64: the seventh goes to the stack and
	// declared locals follow it.
	params := vals(wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI64)
	g, c := newGenerator(amd64, nil, sig(params, nil))
	g.AddLocals(1)

	for _, idx := range []uint32{5, 6, 7} {
		c.step(wasm.OpLocalGet, 2)
		must(t, g.LocalGet(idx))
	}
	md := finish(t, g, c)

	want := []uint32{5, 16, 17}
	for i, w := range want {
		if got := md.Uint32At(8 * i); got != w {
			t.Errorf("local.get %d slot = %d, want %d", i+5, got, w)
		}
	}
	if md.NumArgumentsOnStack != 1 || md.NonArgLocalOffset != 10 || md.NumLocals != 8 {
		t.Errorf("layout = on_stack %d offset %d locals %d",
			md.NumArgumentsOnStack, md.NonArgLocalOffset, md.NumLocals)
	}
	if diff := cmp.Diff([]uint32{0, 1, 2, 3, 4, 5, 16}, md.ArgumentLocations); diff != "" {
		t.Errorf("argument locations (-want +got):\n%s", diff)
	}
}

func TestLocalTee(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(vals(wasm.ValF64), nil))
	c.step(wasm.OpLocalTee, 2)
	must(t, g.LocalTee(0))
	md := finish(t, g, c)

	if diff := cmp.Diff(md.Metadata[0:8], md.Metadata[8:16]); diff != "" {
		t.Errorf("tee halves differ:\n%s", diff)
	}
	if got := md.TargetAt(0); got != (ipint.Target{PC: ipint.FPRSlotBase, MC: 2}) {
		t.Errorf("tee entry = %+v, want slot 8 length 2", got)
	}
}

func TestGlobalBinding(t *testing.T) {
	m := &wasm.Module{
		Imports: []wasm.Import{{
			Module: "env", Name: "g",
			Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}},
		}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true}},
			{Type: wasm.GlobalType{ValType: wasm.ValExtern, Mutable: true}},
			{Type: wasm.GlobalType{ValType: wasm.ValF32}},
		},
		Exports: []wasm.Export{
			{Name: "ref", Kind: wasm.KindGlobal, Idx: 2},
			{Name: "const", Kind: wasm.KindGlobal, Idx: 3},
		},
	}
	info := ipint.ModuleInfoFromModule(m)
	modes := make([]ipint.BindingMode, len(info.Globals))
	for i, gi := range info.Globals {
		modes[i] = gi.Binding
	}
	wantModes := []ipint.BindingMode{ipint.BindingPortable, ipint.BindingEmbedded, ipint.BindingPortable, ipint.BindingEmbedded}
	if diff := cmp.Diff(wantModes, modes); diff != "" {
		t.Fatalf("binding modes (-want +got):\n%s", diff)
	}

	g, c := newGenerator(amd64, info, sig(nil, nil))
	c.step(wasm.OpGlobalGet, 2)
	must(t, g.GlobalGet(0))
	c.step(wasm.OpGlobalSet, 3)
	must(t, g.GlobalSet(2))
	c.step(wasm.OpGlobalSet, 2)
	must(t, g.GlobalSet(1))
	md := finish(t, g, c)

	want := []byte{
		0, 0, 0, 0, 2, 0, 1, 0, // get: index 0, length 2, portable
		2, 0, 0, 0, 3, 0, 1, 1, // set: index 2, length 3, portable, reference
		1, 0, 0, 0, 2, 0, 0, 0, // set: index 1, length 2, embedded
		8, 0, 0, 0, 0, 0, 0, 0, // return data
	}
	if diff := cmp.Diff(want, md.Metadata); diff != "" {
		t.Errorf("metadata (-want +got):\n%s", diff)
	}
}

func TestGlobalOutOfRangePanics(t *testing.T) {
	g, c := newGenerator(amd64, &ipint.ModuleInfo{}, sig(nil, nil))
	c.step(wasm.OpGlobalGet, 2)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	_ = g.GlobalGet(0)
}

func TestTableAndMemoryOperands(t *testing.T) {
	g, c := newGenerator(amd64, nil, sig(nil, nil))
	c.step(wasm.OpPrefixMisc, 4)
	must(t, g.TableInit(7, 1))
	c.step(wasm.OpPrefixMisc, 4)
	must(t, g.TableCopy(2, 3))
	c.step(wasm.OpI32Load, 3)
	must(t, g.Load(0x1_0000_0010))
	c.step(wasm.OpTableGet, 2)
	must(t, g.TableGet(4))
	c.step(wasm.OpSelect, 1)
	must(t, g.Select())
	md := finish(t, g, c)

	if a, b, n := md.Uint32At(0), md.Uint32At(4), md.Uint64At(8); a != 7 || b != 1 || n != 4 {
		t.Errorf("table.init = %d %d %d", a, b, n)
	}
	if a, b := md.Uint32At(16), md.Uint32At(20); a != 2 || b != 3 {
		t.Errorf("table.copy = %d %d", a, b)
	}
	if got := md.TargetAt(32); got != (ipint.Target{PC: 0x10, MC: 3}) {
		t.Errorf("load = %+v, want truncated offset 16 length 3", got)
	}
	if got := md.TargetAt(40); got != (ipint.Target{PC: 4, MC: 2}) {
		t.Errorf("table.get = %+v", got)
	}
	if got := md.Uint64At(48); got != 1 {
		t.Errorf("select length = %d, want 1", got)
	}
}

func TestAllocationLimit(t *testing.T) {
	cfg := amd64
	cfg.MaxMetadataSize = 16
	g, c := newGenerator(cfg, nil, sig(nil, nil))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(1))
	c.step(wasm.OpI32Const, 2)
	must(t, g.I32Const(2))
	c.step(wasm.OpI32Const, 2)
	err := g.I32Const(3)
	if err == nil {
		t.Fatal("expected allocation failure")
	}
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindAllocation}) {
		t.Errorf("error = %v, want compile allocation error", err)
	}
	if g.Len() != 16 {
		t.Errorf("failed allocation grew buffer to %d", g.Len())
	}
}
