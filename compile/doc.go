// Package compile drives metadata generation over decoded WebAssembly.
//
// Function walks one body with wasm.InstrReader, tracks the operand height
// of every open scope and feeds each instruction to an ipint.Generator.
// Module and Compile do the same for every function of a module in
// parallel.
//
// The walker checks only what the generator relies on: index ranges, label
// depths and operand counts. Full type checking is left to Validate.
package compile
