package ipint

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-ipint/wasm"
)

// Config controls metadata generation. The zero value is usable.
type Config struct {
	// Logger receives debug output about scope resolution. Nil disables it.
	Logger *zap.Logger

	// CallingConvention gives the argument register counts of the target interpreter.
	// The zero value selects HostConvention.
	CallingConvention CallingConvention

	// MaxMetadataSize caps the metadata of one function in bytes.
	// Zero means unlimited.
	MaxMetadataSize int
}

func (c Config) convention() CallingConvention {
	if c.CallingConvention == (CallingConvention{}) {
		return HostConvention()
	}
	return c.CallingConvention.clamp()
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// BindingMode says where the interpreter finds a global's value.
type BindingMode uint8

const (
	BindingEmbedded BindingMode = 0 // stored in the instance
	BindingPortable BindingMode = 1 // behind a cell that may be shared
)

func (m BindingMode) String() string {
	if m == BindingPortable {
		return "portable"
	}
	return "embedded"
}

// GlobalInfo describes one global in the module's global index space.
type GlobalInfo struct {
	Type    wasm.ValType
	Binding BindingMode
}

// ModuleInfo is the module-level information metadata generation reads.
type ModuleInfo struct {
	Globals []GlobalInfo
}

// ModuleInfoFromModule derives binding modes for every global. A mutable
// global that is imported or exported may be shared with another instance
// and is portable; every other global is embedded.
func ModuleInfoFromModule(m *wasm.Module) *ModuleInfo {
	info := &ModuleInfo{}
	add := func(idx uint32, gt wasm.GlobalType, imported bool) {
		mode := BindingEmbedded
		if gt.Mutable && (imported || m.IsExported(wasm.KindGlobal, idx)) {
			mode = BindingPortable
		}
		info.Globals = append(info.Globals, GlobalInfo{Type: gt.ValType, Binding: mode})
	}
	var idx uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == wasm.KindGlobal && imp.Desc.Global != nil {
			add(idx, *imp.Desc.Global, true)
			idx++
		}
	}
	for _, g := range m.Globals {
		add(idx, g.Type, false)
		idx++
	}
	return info
}

// Cursor reports the position of the instruction stream driving a
// Generator. Offsets are relative to the start of the function body.
type Cursor interface {
	// Offset returns the offset just past the current instruction.
	Offset() uint32
	// OpcodeStart returns the offset of the current opcode byte.
	OpcodeStart() uint32
	// Opcode returns the current opcode.
	Opcode() byte
}

// Generator builds the metadata of one function body in a single forward
// pass. The driver calls its methods in program order. A Generator is not
// safe for concurrent use.
type Generator struct {
	cursor Cursor
	info   *ModuleInfo
	log    *zap.Logger
	buf    *Buffer
	scopes []*Scope
	sig    Signature
	layout ArgumentLayout
	cc     CallingConvention

	funcIndex      uint32
	numLocals      uint32
	bytecodeOffset uint32
	bytecodeLength uint32
	done           bool
}

// NewGenerator starts generation for the function at funcIndex with
// signature sig. It lays out the arguments and opens the function scope.
func NewGenerator(cfg Config, info *ModuleInfo, funcIndex uint32, sig Signature, cursor Cursor) *Generator {
	if info == nil {
		info = &ModuleInfo{}
	}
	g := &Generator{
		cursor:    cursor,
		info:      info,
		log:       cfg.logger().With(zap.Uint32("func", funcIndex)),
		buf:       NewBuffer(cfg.MaxMetadataSize),
		sig:       sig,
		cc:        cfg.convention(),
		funcIndex: funcIndex,
	}
	g.addArguments()
	g.scopes = append(g.scopes, &Scope{kind: ScopeTopLevel, sig: sig})
	return g
}

func (g *Generator) addArguments() {
	g.layout = NewArgumentLayout(g.sig.Params, g.cc)
	g.numLocals = uint32(len(g.sig.Params))
}

// AddLocals declares count more locals.
func (g *Generator) AddLocals(count uint32) {
	g.numLocals += count
}

// DidFinishLocals marks the start of the instruction stream. PCs in the
// metadata are relative to this point.
func (g *Generator) DidFinishLocals() {
	g.bytecodeOffset = g.cursor.Offset()
}

// ScopeAt returns the scope a branch of the given label depth targets.
func (g *Generator) ScopeAt(depth uint32) *Scope {
	if int(depth) >= len(g.scopes) {
		panic(fmt.Sprintf("ipint: label depth %d with %d open scopes", depth, len(g.scopes)))
	}
	return g.scopes[len(g.scopes)-1-int(depth)]
}

// Done reports whether the function scope has been closed.
func (g *Generator) Done() bool {
	return g.done
}

// Len returns the current metadata size.
func (g *Generator) Len() int {
	return g.buf.Len()
}

func (g *Generator) pc() uint32 {
	return g.cursor.Offset() - g.bytecodeOffset
}

func (g *Generator) mc() uint32 {
	return uint32(g.buf.Len())
}

func (g *Generator) instrLen() uint32 {
	return g.cursor.Offset() - g.cursor.OpcodeStart()
}

func (g *Generator) top() *Scope {
	return g.scopes[len(g.scopes)-1]
}

func (g *Generator) push(s *Scope) {
	g.scopes = append(g.scopes, s)
}

func (g *Generator) pop() *Scope {
	s := g.top()
	g.scopes = g.scopes[:len(g.scopes)-1]
	return s
}
