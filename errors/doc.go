// Package errors provides structured error types for the metadata compiler.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the function path, the offending opcode and bytecode
// offset when known, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCompile, errors.KindUnsupported).
//		Path("func[3]").
//		Opcode("v128.load").
//		At(0x1c).
//		Detail("SIMD is not supported").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseCompile, 64, 8)
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
