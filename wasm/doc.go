// Package wasm decodes WebAssembly binary modules and function bodies.
//
// The decoder keeps what an in-place interpreter's metadata generator needs:
// types, imports, functions, tables, memories, tags, globals, exports and
// code. Function bodies are walked one instruction at a time with
// InstrReader, which reports each instruction's byte range so that callers
// can compute instruction lengths and bytecode offsets.
//
//	mod, err := wasm.ParseModule(data)
//	body := mod.Code[0]
//	r := wasm.NewInstrReader(body.Body, body.CodeOffset)
//	for !r.Done() {
//		instr, err := r.Next()
//		...
//	}
//
// EncodeInstructions and Module.Encode build binaries for tests and tools.
package wasm
