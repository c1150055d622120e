package wasm

import (
	"fmt"
	"io"
)

// Instruction is one decoded instruction together with its byte range in
// the function body.
type Instruction struct {
	Imm    any    // immediate, one of the *Imm types below; nil when none
	Start  uint32 // offset of the opcode byte
	End    uint32 // offset just past the last immediate byte
	Sub    uint32 // sub-opcode for prefixed instructions
	Opcode byte
}

// Len returns the encoded length of the instruction in bytes.
func (i Instruction) Len() uint32 {
	return i.End - i.Start
}

// BlockImm holds the block type for block, loop, if, and try instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br, br_if, rethrow and delegate.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call and return_call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds the type and table index for call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// CallRefImm holds the type index for call_ref.
type CallRefImm struct {
	TypeIdx uint32
}

// LocalImm holds the local index for local.get/set/tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get/set.
type GlobalImm struct {
	GlobalIdx uint32
}

// TableImm holds the table index for table.get/set.
type TableImm struct {
	TableIdx uint32
}

// MemoryImm holds a memarg for loads and stores.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds the memory index for memory.size/grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds an i32.const value.
type I32Imm struct {
	Value int32
}

// I64Imm holds an i64.const value.
type I64Imm struct {
	Value int64
}

// F32Imm holds the raw bits of an f32.const.
type F32Imm struct {
	Bits uint32
}

// F64Imm holds the raw bits of an f64.const.
type F64Imm struct {
	Bits uint64
}

// RefNullImm holds the heap type for ref.null.
type RefNullImm struct {
	HeapType int64
}

// RefFuncImm holds the function index for ref.func.
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds the result types of a typed select.
type SelectTypeImm struct {
	Types []ValType
}

// ThrowImm holds the tag index for throw and catch.
type ThrowImm struct {
	TagIdx uint32
}

// MiscImm holds the operands of a 0xFC-prefixed instruction.
type MiscImm struct {
	Operands []uint32
}

// UnsupportedOpcodeError reports an opcode whose immediates this package
// cannot decode, which makes the rest of the body unreadable.
type UnsupportedOpcodeError struct {
	Offset uint32
	Sub    uint32
	Opcode byte
}

func (e *UnsupportedOpcodeError) Error() string {
	if isPrefix(e.Opcode) {
		return fmt.Sprintf("unsupported opcode 0x%02x 0x%02x at offset %d", e.Opcode, e.Sub, e.Offset)
	}
	return fmt.Sprintf("unsupported opcode 0x%02x at offset %d", e.Opcode, e.Offset)
}

func isPrefix(op byte) bool {
	return op == OpPrefixGC || op == OpPrefixMisc || op == OpPrefixSIMD || op == OpPrefixAtomic
}

// InstrReader decodes instructions one at a time from a function body.
// Offsets it reports are positions in the slice passed to NewInstrReader.
type InstrReader struct {
	code []byte
	pos  uint32
}

// NewInstrReader returns a reader positioned at start within code.
func NewInstrReader(code []byte, start uint32) *InstrReader {
	return &InstrReader{code: code, pos: start}
}

// Offset returns the position of the next unread byte.
func (r *InstrReader) Offset() uint32 {
	return r.pos
}

// Done reports whether the whole body has been consumed.
func (r *InstrReader) Done() bool {
	return int(r.pos) >= len(r.code)
}

// Next decodes the instruction at the current offset.
func (r *InstrReader) Next() (Instruction, error) {
	start := r.pos
	op, err := r.byte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op, Start: start}
	instr.Imm, err = r.immediate(&instr)
	if err != nil {
		return Instruction{}, fmt.Errorf("opcode 0x%02x at offset %d: %w", op, start, err)
	}
	instr.End = r.pos
	return instr, nil
}

func (r *InstrReader) immediate(instr *Instruction) (any, error) {
	switch op := instr.Opcode; op {
	case OpBlock, OpLoop, OpIf, OpTry:
		bt, err := r.s33()
		if err != nil {
			return nil, err
		}
		return BlockImm{Type: int32(bt)}, nil

	case OpBr, OpBrIf, OpRethrow, OpDelegate, OpBrOnNull, OpBrOnNonNull:
		idx, err := r.u32()
		return BranchImm{LabelIdx: idx}, err

	case OpBrTable:
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		if int(count) > len(r.code) {
			return nil, fmt.Errorf("br_table count %d exceeds body size", count)
		}
		labels := make([]uint32, count)
		for i := range labels {
			if labels[i], err = r.u32(); err != nil {
				return nil, err
			}
		}
		def, err := r.u32()
		return BrTableImm{Labels: labels, Default: def}, err

	case OpCall, OpReturnCall:
		idx, err := r.u32()
		return CallImm{FuncIdx: idx}, err

	case OpCallIndirect, OpReturnCallIndirect:
		typeIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		tableIdx, err := r.u32()
		return CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}, err

	case OpCallRef, OpReturnCallRef:
		typeIdx, err := r.u32()
		return CallRefImm{TypeIdx: typeIdx}, err

	case OpCatch, OpThrow:
		tag, err := r.u32()
		return ThrowImm{TagIdx: tag}, err

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.u32()
		return LocalImm{LocalIdx: idx}, err

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.u32()
		return GlobalImm{GlobalIdx: idx}, err

	case OpTableGet, OpTableSet:
		idx, err := r.u32()
		return TableImm{TableIdx: idx}, err

	case OpMemorySize, OpMemoryGrow:
		idx, err := r.u32()
		return MemoryIdxImm{MemIdx: idx}, err

	case OpI32Const:
		v, n, err := DecodeS32(r.code[r.pos:])
		r.pos += uint32(n)
		return I32Imm{Value: v}, err

	case OpI64Const:
		v, n, err := DecodeS64(r.code[r.pos:])
		r.pos += uint32(n)
		return I64Imm{Value: v}, err

	case OpF32Const:
		b, err := r.fixed(4)
		if err != nil {
			return nil, err
		}
		return F32Imm{Bits: uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24}, nil

	case OpF64Const:
		b, err := r.fixed(8)
		if err != nil {
			return nil, err
		}
		var bits uint64
		for i := 7; i >= 0; i-- {
			bits = bits<<8 | uint64(b[i])
		}
		return F64Imm{Bits: bits}, nil

	case OpRefNull:
		ht, err := r.s33()
		return RefNullImm{HeapType: ht}, err

	case OpRefFunc:
		idx, err := r.u32()
		return RefFuncImm{FuncIdx: idx}, err

	case OpSelectType:
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		if int(count) > len(r.code) {
			return nil, fmt.Errorf("select type count %d exceeds body size", count)
		}
		types := make([]ValType, count)
		for i := range types {
			if types[i], err = r.valType(); err != nil {
				return nil, err
			}
		}
		return SelectTypeImm{Types: types}, nil

	case OpPrefixMisc:
		sub, err := r.u32()
		if err != nil {
			return nil, err
		}
		instr.Sub = sub
		return r.miscImmediate(instr)

	case OpPrefixSIMD, OpPrefixAtomic, OpPrefixGC:
		sub, err := r.u32()
		if err != nil {
			return nil, err
		}
		return nil, &UnsupportedOpcodeError{Opcode: op, Sub: sub, Offset: instr.Start}

	case OpTryTable, OpThrowRef:
		return nil, &UnsupportedOpcodeError{Opcode: op, Offset: instr.Start}
	}

	if isLoadStore(instr.Opcode) {
		return r.memArg()
	}
	if noImmediate(instr.Opcode) {
		return nil, nil
	}
	return nil, &UnsupportedOpcodeError{Opcode: instr.Opcode, Offset: instr.Start}
}

func (r *InstrReader) miscImmediate(instr *Instruction) (any, error) {
	var n int
	switch instr.Sub {
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		n = 2
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop, MiscTableGrow, MiscTableSize, MiscTableFill:
		n = 1
	default:
		if instr.Sub <= MiscI64TruncSatF64U {
			return nil, nil
		}
		return nil, &UnsupportedOpcodeError{Opcode: instr.Opcode, Sub: instr.Sub, Offset: instr.Start}
	}
	ops := make([]uint32, n)
	for i := range ops {
		var err error
		if ops[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	return MiscImm{Operands: ops}, nil
}

func (r *InstrReader) memArg() (MemoryImm, error) {
	align, err := r.u32()
	if err != nil {
		return MemoryImm{}, err
	}
	var memIdx uint32
	if align&memArgMultiMemBit != 0 {
		align &^= memArgMultiMemBit
		if memIdx, err = r.u32(); err != nil {
			return MemoryImm{}, err
		}
	}
	offset, n, err := DecodeU64(r.code[r.pos:])
	if err != nil {
		return MemoryImm{}, err
	}
	r.pos += uint32(n)
	return MemoryImm{Align: align, MemIdx: memIdx, Offset: offset}, nil
}

func (r *InstrReader) byte() (byte, error) {
	if int(r.pos) >= len(r.code) {
		return 0, io.EOF
	}
	b := r.code[r.pos]
	r.pos++
	return b, nil
}

func (r *InstrReader) fixed(n uint32) ([]byte, error) {
	if int(r.pos+n) > len(r.code) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.code[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *InstrReader) u32() (uint32, error) {
	v, n, err := DecodeU32(r.code[r.pos:])
	r.pos += uint32(n)
	return v, err
}

func (r *InstrReader) s33() (int64, error) {
	v, n, err := DecodeS33(r.code[r.pos:])
	r.pos += uint32(n)
	return v, err
}

func (r *InstrReader) valType() (ValType, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	if ValType(b) == ValRefNull || ValType(b) == ValRef {
		if _, err := r.s33(); err != nil {
			return 0, err
		}
	}
	return ValType(b), nil
}

// IsLoad reports whether op is a memory load.
func IsLoad(op byte) bool {
	return op >= OpI32Load && op <= OpI64Load32U
}

// IsStore reports whether op is a memory store.
func IsStore(op byte) bool {
	return op >= OpI32Store && op <= OpI64Store32
}

func isLoadStore(op byte) bool {
	return IsLoad(op) || IsStore(op)
}

// IsNumeric reports whether op lies in the numeric range 0x45-0xC4.
func IsNumeric(op byte) bool {
	return op >= OpI32Eqz && op <= OpI64Extend32S
}

func noImmediate(op byte) bool {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect,
		OpRefIsNull, OpRefAsNonNull, OpCatchAll:
		return true
	}
	return IsNumeric(op)
}

// DecodeInstructions decodes every instruction in code.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := NewInstrReader(code, 0)
	var instrs []Instruction
	for !r.Done() {
		instr, err := r.Next()
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}
