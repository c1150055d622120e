// Package wasmipint generates the metadata side table used by an in-place
// WebAssembly interpreter.
//
// The interpreter executes function bytecode directly. Anything it cannot
// recover cheaply from the bytecode at run time (branch targets, stack
// adjustments, local slot offsets, argument placement for calls) is
// computed once by a single forward pass and stored as a flat stream of
// little-endian metadata entries.
//
// # Architecture Overview
//
//	wasmipint/
//	├── wasm/            Core module decoding, encoding and the instruction reader
//	├── ipint/           Metadata generator, control scopes and calling conventions
//	├── compile/         Function and module drivers (validation, parallel compile)
//	├── errors/          Structured error types for debugging
//	└── cmd/ipintdump/   CLI and TUI for inspecting generated metadata
//
// # Quick Start
//
//	res, err := compile.Module(ctx, bin, compile.Options{
//		Config: ipint.Config{CallingConvention: ipint.HostConvention()},
//	})
//	if err != nil {
//		return err
//	}
//	md := res.Function(funcIndex)
//	_ = md.Metadata
//
// Generation for one function can also be driven directly through
// ipint.Generator by any decoder that reports opcodes in order.
package wasmipint
