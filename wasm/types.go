package wasm

// Module is the subset of a decoded WebAssembly module that metadata
// generation consults. Element and data segment payloads are not retained.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Code     []FuncBody
	Tags     []TagType

	// DataCount holds the count from the DataCount section (ID 12).
	DataCount *uint32

	// Segment counts; the payloads themselves are skipped.
	ElementSegments uint32
	DataSegments    uint32

	CustomSections []CustomSection
}

// FuncType represents a WebAssembly function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValRefNull:
		return "ref null"
	case ValRef:
		return "ref"
	default:
		return "unknown"
	}
}

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool {
	return v == ValFuncRef || v == ValExtern || v == ValRefNull || v == ValRef
}

// Import represents an imported function, table, memory, global, or tag.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, KindGlobal, or KindTag constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	Tag     *TagType
	TypeIdx uint32
	Kind    byte
}

// Limits describes table or memory bounds.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// Limits flag bits.
const (
	LimitsHasMax   byte = 0x01
	LimitsShared   byte = 0x02
	LimitsMemory64 byte = 0x04
)

// TableType describes a table.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global variable.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a module-defined global with its constant initializer.
type Global struct {
	Init []byte
	Type GlobalType
}

// Export represents an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// TagType describes an exception tag.
type TagType struct {
	Attribute byte
	TypeIdx   uint32
}

// LocalEntry is one run of same-typed locals.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a function body from the code section.
//
// Body holds the full body (local declarations followed by instructions);
// Code is the instruction slice Body[CodeOffset:].
type FuncBody struct {
	Locals     []LocalEntry
	Body       []byte
	Code       []byte
	CodeOffset uint32
}

// NumLocals returns the number of declared (non-parameter) locals.
func (b *FuncBody) NumLocals() uint64 {
	var n uint64
	for _, l := range b.Locals {
		n += uint64(l.Count)
	}
	return n
}

// CustomSection is an uninterpreted custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.numImported(KindFunc)
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	return m.numImported(KindGlobal)
}

// NumImportedTags returns the number of imported tags.
func (m *Module) NumImportedTags() int {
	return m.numImported(KindTag)
}

func (m *Module) numImported(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// TypeAt returns the function type at typeIdx, or nil if out of range.
func (m *Module) TypeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// GetFuncType returns the type of the function at funcIdx in the function
// index space (imports first), or nil if out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	idx := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if idx == int(funcIdx) {
			return m.TypeAt(imp.Desc.TypeIdx)
		}
		idx++
	}
	local := int(funcIdx) - idx
	if local < 0 || local >= len(m.Funcs) {
		return nil
	}
	return m.TypeAt(m.Funcs[local])
}

// GlobalAt returns the type of the global at globalIdx in the global index
// space, whether it is imported, and whether it exists.
func (m *Module) GlobalAt(globalIdx uint32) (GlobalType, bool, bool) {
	idx := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindGlobal || imp.Desc.Global == nil {
			continue
		}
		if idx == int(globalIdx) {
			return *imp.Desc.Global, true, true
		}
		idx++
	}
	local := int(globalIdx) - idx
	if local < 0 || local >= len(m.Globals) {
		return GlobalType{}, false, false
	}
	return m.Globals[local].Type, false, true
}

// TagAt returns the tag at tagIdx in the tag index space.
func (m *Module) TagAt(tagIdx uint32) (TagType, bool) {
	idx := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindTag || imp.Desc.Tag == nil {
			continue
		}
		if idx == int(tagIdx) {
			return *imp.Desc.Tag, true
		}
		idx++
	}
	local := int(tagIdx) - idx
	if local < 0 || local >= len(m.Tags) {
		return TagType{}, false
	}
	return m.Tags[local], true
}

// IsExported reports whether the item of the given kind and index is exported.
func (m *Module) IsExported(kind byte, idx uint32) bool {
	for _, e := range m.Exports {
		if e.Kind == kind && e.Idx == idx {
			return true
		}
	}
	return false
}

// BlockType resolves a block type immediate to its signature.
// It returns false when a type index is out of range.
func (m *Module) BlockType(bt int32) (FuncType, bool) {
	switch bt {
	case BlockTypeVoid:
		return FuncType{}, true
	case BlockTypeI32, BlockTypeI64, BlockTypeF32, BlockTypeF64, BlockTypeV128,
		BlockTypeFunc, BlockTypeExt:
		return FuncType{Results: []ValType{ValType(byte(bt & 0x7f))}}, true
	}
	if bt < 0 {
		return FuncType{}, false
	}
	ft := m.TypeAt(uint32(bt))
	if ft == nil {
		return FuncType{}, false
	}
	return *ft, true
}
