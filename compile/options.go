package compile

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

// Options controls compilation. The zero value is usable.
type Options struct {
	// Config is passed to every function's generator.
	Config ipint.Config

	// Validate runs the module through wazero's validating decoder before
	// generating metadata. Without it only the structure the generator
	// depends on is checked.
	Validate bool

	// Concurrency bounds the number of functions compiled at once.
	// 0 means runtime.GOMAXPROCS(0).
	Concurrency int
}

func (o Options) logger() *zap.Logger {
	if o.Config.Logger == nil {
		return zap.NewNop()
	}
	return o.Config.Logger
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

// Result holds the metadata of every module-defined function.
type Result struct {
	Module *wasm.Module

	// Functions is indexed by defined-function index; add the number of
	// imported functions to get the function index.
	Functions []*ipint.FunctionMetadata
}

// Function returns the metadata of the function at funcIndex in the
// function index space, or nil for imports and failed functions.
func (r *Result) Function(funcIndex uint32) *ipint.FunctionMetadata {
	i := int(funcIndex) - r.Module.NumImportedFuncs()
	if i < 0 || i >= len(r.Functions) {
		return nil
	}
	return r.Functions[i]
}

// MetadataSize returns the total metadata size across all functions.
func (r *Result) MetadataSize() int {
	n := 0
	for _, f := range r.Functions {
		if f != nil {
			n += len(f.Metadata)
		}
	}
	return n
}
