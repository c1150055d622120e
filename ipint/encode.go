package ipint

import (
	"fmt"
)

// Operand entries. Each records the decoded immediates the interpreter would
// otherwise re-parse, followed by the byte length of the source instruction
// so it can advance the bytecode cursor without decoding LEB128 again.

// addValueAndLength appends the common "u32 value, u32 length" entry.
func (g *Generator) addValueAndLength(v uint32) error {
	off, err := g.buf.Allocate(EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put32(off, 0, v)
	g.buf.Put32(off, 4, g.instrLen())
	return nil
}

func (g *Generator) addPairAndLength(a, b uint32) error {
	off, err := g.buf.Allocate(2 * EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put32(off, 0, a)
	g.buf.Put32(off, 4, b)
	g.buf.Put64(off, 8, uint64(g.instrLen()))
	return nil
}

// LocalGet records local.get.
func (g *Generator) LocalGet(index uint32) error {
	return g.addValueAndLength(g.layout.Slot(index))
}

// LocalSet records local.set.
func (g *Generator) LocalSet(index uint32) error {
	return g.addValueAndLength(g.layout.Slot(index))
}

// LocalTee records local.tee as a set followed by a get of the same slot.
func (g *Generator) LocalTee(index uint32) error {
	if err := g.LocalSet(index); err != nil {
		return err
	}
	return g.LocalGet(index)
}

func (g *Generator) global(index uint32) GlobalInfo {
	if int(index) >= len(g.info.Globals) {
		panic(fmt.Sprintf("ipint: global %d with %d globals", index, len(g.info.Globals)))
	}
	return g.info.Globals[index]
}

// GlobalGet records global.get: u32 index, u16 length, u16 binding mode.
func (g *Generator) GlobalGet(index uint32) error {
	info := g.global(index)
	off, err := g.buf.Allocate(EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put32(off, 0, index)
	g.buf.Put16(off, 4, uint16(g.instrLen()))
	g.buf.Put16(off, 6, uint16(info.Binding))
	return nil
}

// GlobalSet records global.set: u32 index, u16 length, u8 binding mode,
// u8 set when the global holds a reference.
func (g *Generator) GlobalSet(index uint32) error {
	info := g.global(index)
	off, err := g.buf.Allocate(EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put32(off, 0, index)
	g.buf.Put16(off, 4, uint16(g.instrLen()))
	g.buf.Put8(off, 6, uint8(info.Binding))
	if info.Type.IsRef() {
		g.buf.Put8(off, 7, 1)
	}
	return nil
}

// TableGet records table.get.
func (g *Generator) TableGet(table uint32) error { return g.addValueAndLength(table) }

// TableSet records table.set.
func (g *Generator) TableSet(table uint32) error { return g.addValueAndLength(table) }

// TableSize records table.size.
func (g *Generator) TableSize(table uint32) error { return g.addValueAndLength(table) }

// TableGrow records table.grow.
func (g *Generator) TableGrow(table uint32) error { return g.addValueAndLength(table) }

// TableFill records table.fill.
func (g *Generator) TableFill(table uint32) error { return g.addValueAndLength(table) }

// TableInit records table.init: u32 element segment, u32 table, u64 length.
func (g *Generator) TableInit(elem, table uint32) error {
	return g.addPairAndLength(elem, table)
}

// TableCopy records table.copy: u32 destination, u32 source, u64 length.
func (g *Generator) TableCopy(dst, src uint32) error {
	return g.addPairAndLength(dst, src)
}

// ElemDrop records elem.drop.
func (g *Generator) ElemDrop(elem uint32) error { return g.addValueAndLength(elem) }

// MemoryInit records memory.init.
func (g *Generator) MemoryInit(data uint32) error { return g.addValueAndLength(data) }

// DataDrop records data.drop.
func (g *Generator) DataDrop(data uint32) error { return g.addValueAndLength(data) }

// Load records a memory load. Only the low 32 bits of the offset are kept.
func (g *Generator) Load(offset uint64) error { return g.addValueAndLength(uint32(offset)) }

// Store records a memory store. Only the low 32 bits of the offset are kept.
func (g *Generator) Store(offset uint64) error { return g.addValueAndLength(uint32(offset)) }

// I32Const records i32.const.
func (g *Generator) I32Const(v int32) error { return g.addValueAndLength(uint32(v)) }

// I64Const records i64.const: u64 value, u64 length.
func (g *Generator) I64Const(v int64) error {
	off, err := g.buf.Allocate(2 * EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put64(off, 0, uint64(v))
	g.buf.Put64(off, 8, uint64(g.instrLen()))
	return nil
}

// RefFunc records ref.func.
func (g *Generator) RefFunc(funcIndex uint32) error { return g.addValueAndLength(funcIndex) }

// Select records select and typed select as a raw length entry.
func (g *Generator) Select() error {
	_, err := g.buf.AddRaw(uint64(g.instrLen()))
	return err
}
