package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-ipint/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrGCTypes        = errors.New("GC type definitions are not supported")
)

// ParseModule parses a WebAssembly binary module.
//
// Only what metadata generation needs is decoded: element and data segment
// payloads are counted and skipped.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastOrder int
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		if id != SectionCustom {
			order := sectionOrder(id)
			if order <= lastOrder {
				return nil, fmt.Errorf("section %d appears out of order", id)
			}
			lastOrder = order
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}
		if err := parseSection(id, sr, m); err != nil {
			return nil, fmt.Errorf("%s section: %w", sectionName(id), err)
		}
	}

	if len(m.Code) != len(m.Funcs) {
		return nil, fmt.Errorf("function and code section sizes differ: %d != %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

func parseSection(id byte, r *binary.Reader, m *Module) error {
	switch id {
	case SectionCustom:
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		rest, _ := r.ReadBytes(r.Len())
		m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: rest})
		return nil
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return readVector(r, &m.Funcs, func(r *binary.Reader) (uint32, error) { return r.ReadU32() })
	case SectionTable:
		return readVector(r, &m.Tables, readTableType)
	case SectionMemory:
		return readVector(r, &m.Memories, func(r *binary.Reader) (MemoryType, error) {
			l, err := readLimits(r)
			return MemoryType{Limits: l}, err
		})
	case SectionTag:
		return readVector(r, &m.Tags, readTagType)
	case SectionGlobal:
		return readVector(r, &m.Globals, func(r *binary.Reader) (Global, error) {
			gt, err := readGlobalType(r)
			if err != nil {
				return Global{}, err
			}
			init, err := readInitExpr(r)
			return Global{Type: gt, Init: init}, err
		})
	case SectionExport:
		return readVector(r, &m.Exports, readExport)
	case SectionStart:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Start = &idx
		return nil
	case SectionElement:
		n, err := r.ReadU32()
		m.ElementSegments = n
		return err
	case SectionDataCount:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.DataCount = &n
		return nil
	case SectionCode:
		return readVector(r, &m.Code, readFuncBody)
	case SectionData:
		n, err := r.ReadU32()
		m.DataSegments = n
		return err
	default:
		return fmt.Errorf("unknown section ID: 0x%02x", id)
	}
}

// readVector reads a length-prefixed vector into dst.
func readVector[T any](r *binary.Reader, dst *[]T, read func(*binary.Reader) (T, error)) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	// Every element takes at least one byte.
	if int(count) > r.Len() {
		return fmt.Errorf("vector length %d exceeds section size", count)
	}
	if count == 0 {
		*dst = nil
		return nil
	}
	out := make([]T, count)
	for i := range out {
		if out[i], err = read(r); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	*dst = out
	return nil
}

// sectionOrder returns the canonical ordering for a section ID, which differs
// from the numeric IDs for tag and data count sections.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 100
	}
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "data count"
	case SectionTag:
		return "tag"
	default:
		return fmt.Sprintf("unknown(%d)", id)
	}
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	return readVector(r, &m.Types, func(r *binary.Reader) (FuncType, error) {
		form, err := r.ReadByte()
		if err != nil {
			return FuncType{}, err
		}
		if form != FuncTypeByte {
			return FuncType{}, fmt.Errorf("%w: form 0x%02x", ErrGCTypes, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return FuncType{}, err
		}
		results, err := readValTypes(r)
		if err != nil {
			return FuncType{}, err
		}
		return FuncType{Params: params, Results: results}, nil
	})
}

func parseImportSection(r *binary.Reader, m *Module) error {
	return readVector(r, &m.Imports, func(r *binary.Reader) (Import, error) {
		module, err := r.ReadName()
		if err != nil {
			return Import{}, err
		}
		name, err := r.ReadName()
		if err != nil {
			return Import{}, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return Import{}, err
		}
		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Desc.Table = &t
		case KindMemory:
			var l Limits
			l, err = readLimits(r)
			imp.Desc.Memory = &MemoryType{Limits: l}
		case KindGlobal:
			var g GlobalType
			g, err = readGlobalType(r)
			imp.Desc.Global = &g
		case KindTag:
			var t TagType
			t, err = readTagType(r)
			imp.Desc.Tag = &t
		default:
			return Import{}, fmt.Errorf("unknown import kind: %d", kind)
		}
		return imp, err
	})
}

func readExport(r *binary.Reader) (Export, error) {
	name, err := r.ReadName()
	if err != nil {
		return Export{}, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return Export{}, err
	}
	if kind > KindTag {
		return Export{}, fmt.Errorf("invalid export kind: 0x%02x", kind)
	}
	idx, err := r.ReadU32()
	return Export{Name: name, Kind: kind, Idx: idx}, err
}

func readFuncBody(r *binary.Reader) (FuncBody, error) {
	size, err := r.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	body, err := r.ReadBytes(int(size))
	if err != nil {
		return FuncBody{}, err
	}
	locals, n, err := ReadLocals(body)
	if err != nil {
		return FuncBody{}, err
	}
	return FuncBody{Locals: locals, Body: body, Code: body[n:], CodeOffset: uint32(n)}, nil
}

// ReadLocals decodes the local declarations at the start of a function body
// and returns them with the offset of the first instruction.
func ReadLocals(body []byte) ([]LocalEntry, int, error) {
	r := binary.NewReader(body)
	var locals []LocalEntry
	if err := readVector(r, &locals, func(r *binary.Reader) (LocalEntry, error) {
		count, err := r.ReadU32()
		if err != nil {
			return LocalEntry{}, err
		}
		t, err := readValType(r)
		return LocalEntry{Count: count, ValType: t}, err
	}); err != nil {
		return nil, 0, fmt.Errorf("locals: %w", err)
	}
	var total uint64
	for _, l := range locals {
		total += uint64(l.Count)
	}
	if total > 50000 {
		return nil, 0, fmt.Errorf("too many locals: %d", total)
	}
	return locals, r.Position(), nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	var types []ValType
	err := readVector(r, &types, readValType)
	return types, err
}

// readValType reads a value type, consuming the heap type of typed references.
func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return ValType(b), nil
	case ValRefNull, ValRef:
		if _, err := r.ReadS64(); err != nil {
			return 0, err
		}
		return ValType(b), nil
	}
	return 0, fmt.Errorf("invalid value type: 0x%02x", b)
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{
		Shared:   flags&LimitsShared != 0,
		Memory64: flags&LimitsMemory64 != 0,
	}
	if l.Min, err = r.ReadU64(); err != nil {
		return Limits{}, err
	}
	if flags&LimitsHasMax != 0 {
		maxVal, err := r.ReadU64()
		if err != nil {
			return Limits{}, err
		}
		if l.Min > maxVal {
			return Limits{}, fmt.Errorf("limits min (%d) exceeds max (%d)", l.Min, maxVal)
		}
		l.Max = &maxVal
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	t, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	if !t.IsRef() {
		return TableType{}, fmt.Errorf("invalid table element type: %s", t)
	}
	l, err := readLimits(r)
	return TableType{ElemType: t, Limits: l}, err
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability: %d", mut)
	}
	return GlobalType{ValType: t, Mutable: mut == 1}, nil
}

func readTagType(r *binary.Reader) (TagType, error) {
	attribute, err := r.ReadByte()
	if err != nil {
		return TagType{}, err
	}
	typeIdx, err := r.ReadU32()
	return TagType{Attribute: attribute, TypeIdx: typeIdx}, err
}

// readInitExpr returns the raw bytes of a constant expression including its
// terminating end opcode.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	rest := r.Remaining()
	ir := NewInstrReader(rest, 0)
	for {
		instr, err := ir.Next()
		if err != nil {
			return nil, fmt.Errorf("init expression at %d: %w", start, err)
		}
		if instr.Opcode == OpEnd {
			break
		}
	}
	n := int(ir.Offset())
	if err := r.Skip(n); err != nil {
		return nil, err
	}
	return rest[:n], nil
}
