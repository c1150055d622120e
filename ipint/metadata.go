package ipint

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/wippyai/wasm-ipint/errors"
	"github.com/wippyai/wasm-ipint/wasm"
)

// FunctionMetadata is the immutable result of generating one function.
type FunctionMetadata struct {
	Metadata          []byte
	ArgumentLocations []uint32
	ReturnTypes       []wasm.ValType

	FuncIndex           uint32
	NumLocals           uint32 // parameters included
	NumArguments        uint32
	NumArgumentsOnStack uint32
	NonArgLocalOffset   int32
	BytecodeOffset      uint32 // offset of the first instruction in the body
	BytecodeLength      uint32 // length of the whole body
}

// Finalize returns the function's metadata. It fails if the function scope
// was never closed.
func (g *Generator) Finalize() (*FunctionMetadata, error) {
	if !g.done {
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			Path(errors.FuncPath(g.funcIndex)).
			Detail("function body not terminated: %d scopes open", len(g.scopes)).
			Build()
	}
	return &FunctionMetadata{
		Metadata:            slices.Clone(g.buf.Bytes()),
		ArgumentLocations:   slices.Clone(g.layout.Locations),
		ReturnTypes:         slices.Clone(g.sig.Results),
		FuncIndex:           g.funcIndex,
		NumLocals:           g.numLocals,
		NumArguments:        uint32(len(g.sig.Params)),
		NumArgumentsOnStack: uint32(g.layout.NumOnStack),
		NonArgLocalOffset:   g.layout.NonArgLocalOffset(),
		BytecodeOffset:      g.bytecodeOffset,
		BytecodeLength:      g.bytecodeLength,
	}, nil
}

// Uint16At reads a little-endian uint16 at pos.
func (m *FunctionMetadata) Uint16At(pos int) uint16 {
	return binary.LittleEndian.Uint16(m.Metadata[pos:])
}

// Uint32At reads a little-endian uint32 at pos.
func (m *FunctionMetadata) Uint32At(pos int) uint32 {
	return binary.LittleEndian.Uint32(m.Metadata[pos:])
}

// Uint64At reads a little-endian uint64 at pos.
func (m *FunctionMetadata) Uint64At(pos int) uint64 {
	return binary.LittleEndian.Uint64(m.Metadata[pos:])
}

// TargetAt reads the (PC, MC) pair at pos.
func (m *FunctionMetadata) TargetAt(pos int) Target {
	return Target{PC: m.Uint32At(pos), MC: m.Uint32At(pos + 4)}
}

// Entries returns the number of metadata entries.
func (m *FunctionMetadata) Entries() int {
	return len(m.Metadata) / EntrySize
}

// Dump writes a summary followed by every entry as hex bytes and its two
// u32 halves.
func (m *FunctionMetadata) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "func[%d] bytecode=%d+%d locals=%d args=%d on_stack=%d local_base=%d\n",
		m.FuncIndex, m.BytecodeOffset, m.BytecodeLength, m.NumLocals,
		m.NumArguments, m.NumArgumentsOnStack, m.NonArgLocalOffset); err != nil {
		return err
	}
	if len(m.ArgumentLocations) > 0 {
		if _, err := fmt.Fprintf(w, "  args %v\n", m.ArgumentLocations); err != nil {
			return err
		}
	}
	for i := 0; i+EntrySize <= len(m.Metadata); i += EntrySize {
		e := m.Metadata[i : i+EntrySize]
		if _, err := fmt.Fprintf(w, "  %04x: % x  %d %d\n", i, e, m.Uint32At(i), m.Uint32At(i+4)); err != nil {
			return err
		}
	}
	return nil
}
