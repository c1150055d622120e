package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-ipint/wasm/internal/binary"
)

// EncodeInstructions encodes instructions to their binary form.
// Start, End and Sub of each instruction are ignored except that Sub
// selects the 0xFC sub-opcode.
func EncodeInstructions(instrs []Instruction) []byte {
	var buf []byte
	for _, instr := range instrs {
		buf = AppendInstruction(buf, instr)
	}
	return buf
}

// AppendInstruction appends the encoding of instr to dst. It panics on an
// immediate that does not match the opcode.
func AppendInstruction(dst []byte, instr Instruction) []byte {
	dst = append(dst, instr.Opcode)
	switch imm := instr.Imm.(type) {
	case nil:
	case BlockImm:
		dst = AppendS32(dst, imm.Type)
	case BranchImm:
		dst = AppendU32(dst, imm.LabelIdx)
	case BrTableImm:
		dst = AppendU32(dst, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			dst = AppendU32(dst, l)
		}
		dst = AppendU32(dst, imm.Default)
	case CallImm:
		dst = AppendU32(dst, imm.FuncIdx)
	case CallIndirectImm:
		dst = AppendU32(dst, imm.TypeIdx)
		dst = AppendU32(dst, imm.TableIdx)
	case CallRefImm:
		dst = AppendU32(dst, imm.TypeIdx)
	case ThrowImm:
		dst = AppendU32(dst, imm.TagIdx)
	case LocalImm:
		dst = AppendU32(dst, imm.LocalIdx)
	case GlobalImm:
		dst = AppendU32(dst, imm.GlobalIdx)
	case TableImm:
		dst = AppendU32(dst, imm.TableIdx)
	case MemoryIdxImm:
		dst = AppendU32(dst, imm.MemIdx)
	case MemoryImm:
		if imm.MemIdx != 0 {
			dst = AppendU32(dst, imm.Align|memArgMultiMemBit)
			dst = AppendU32(dst, imm.MemIdx)
		} else {
			dst = AppendU32(dst, imm.Align)
		}
		dst = AppendU64(dst, imm.Offset)
	case I32Imm:
		dst = AppendS32(dst, imm.Value)
	case I64Imm:
		dst = AppendS64(dst, imm.Value)
	case F32Imm:
		dst = append(dst, byte(imm.Bits), byte(imm.Bits>>8), byte(imm.Bits>>16), byte(imm.Bits>>24))
	case F64Imm:
		for i := 0; i < 8; i++ {
			dst = append(dst, byte(imm.Bits>>(8*i)))
		}
	case RefNullImm:
		dst = AppendS64(dst, imm.HeapType)
	case RefFuncImm:
		dst = AppendU32(dst, imm.FuncIdx)
	case SelectTypeImm:
		dst = AppendU32(dst, uint32(len(imm.Types)))
		for _, t := range imm.Types {
			dst = append(dst, byte(t))
		}
	case MiscImm:
		dst = AppendU32(dst, instr.Sub)
		for _, op := range imm.Operands {
			dst = AppendU32(dst, op)
		}
	default:
		panic(fmt.Sprintf("wasm: cannot encode immediate %T for opcode 0x%02x", imm, instr.Opcode))
	}
	if instr.Opcode == OpPrefixMisc && instr.Imm == nil {
		dst = AppendU32(dst, instr.Sub)
	}
	return dst
}

// EncodeFunctionBody encodes local declarations followed by code.
func EncodeFunctionBody(locals []LocalEntry, code []byte) []byte {
	buf := AppendU32(nil, uint32(len(locals)))
	for _, l := range locals {
		buf = AppendU32(buf, l.Count)
		buf = append(buf, byte(l.ValType))
	}
	return append(buf, code...)
}

// Encode encodes the module to WebAssembly binary format. Element and data
// segments are not retained by the decoder and are not encoded.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		w.Section(SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				writeTableType(sec, *imp.Desc.Table)
			case KindMemory:
				writeLimits(sec, imp.Desc.Memory.Limits)
			case KindGlobal:
				writeGlobalType(sec, *imp.Desc.Global)
			case KindTag:
				sec.Byte(imp.Desc.Tag.Attribute)
				sec.WriteU32(imp.Desc.Tag.TypeIdx)
			}
		}
		w.Section(SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			sec.WriteU32(idx)
		}
		w.Section(SectionFunction, sec.Bytes())
	}

	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		w.Section(SectionTable, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}
		w.Section(SectionMemory, sec.Bytes())
	}

	if len(m.Tags) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tags)))
		for _, t := range m.Tags {
			sec.Byte(t.Attribute)
			sec.WriteU32(t.TypeIdx)
		}
		w.Section(SectionTag, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.WriteBytes(g.Init)
		}
		w.Section(SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.Byte(e.Kind)
			sec.WriteU32(e.Idx)
		}
		w.Section(SectionExport, sec.Bytes())
	}

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		w.Section(SectionStart, sec.Bytes())
	}

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		w.Section(SectionDataCount, sec.Bytes())
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			raw := body.Body
			if raw == nil {
				raw = EncodeFunctionBody(body.Locals, body.Code)
			}
			sec.WriteU32(uint32(len(raw)))
			sec.WriteBytes(raw)
		}
		w.Section(SectionCode, sec.Bytes())
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		w.Section(SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	w.Byte(flags)
	w.WriteU64(l.Min)
	if l.Max != nil {
		w.WriteU64(*l.Max)
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
