// Package ipint generates the metadata stream an in-place WebAssembly
// interpreter reads alongside a function's bytecode.
//
// The interpreter executes bytecode directly. For every instruction whose
// operands it cannot cheaply decode, it consults the next metadata entry:
// fixed-width immediates, the source instruction length, and resolved jump
// targets as (PC, MC) pairs, where PC is a bytecode offset relative to the
// first instruction and MC is a metadata offset.
//
// A Generator is driven by an instruction walker in program order:
//
//	g := ipint.NewGenerator(cfg, info, funcIndex, sig, cursor)
//	g.AddLocals(n)
//	g.DidFinishLocals()
//	// one call per instruction: g.LocalGet, g.Block, g.Br, g.End, ...
//	md, err := g.Finalize()
//
// Forward branches are written as placeholders and patched when their
// target scope closes. Loops know their target on entry.
//
// Entries are 8 bytes and little-endian. Allocation beyond
// Config.MaxMetadataSize is the only runtime failure; invalid input is the
// walker's responsibility and panics here.
package ipint
