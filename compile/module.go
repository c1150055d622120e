package compile

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-ipint/errors"
	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

// Module parses bin and generates metadata for every function body.
func Module(ctx context.Context, bin []byte, opts Options) (*Result, error) {
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		return nil, errors.Decode("module", err)
	}
	if opts.Validate {
		if err := Validate(ctx, bin); err != nil {
			return nil, err
		}
	}
	return Compile(ctx, mod, opts)
}

// Compile generates metadata for every function body of a parsed module.
// Functions are compiled concurrently; the first failure cancels the rest.
// On failure the partial result is returned with the error.
func Compile(ctx context.Context, mod *wasm.Module, opts Options) (*Result, error) {
	info := ipint.ModuleInfoFromModule(mod)
	res := &Result{
		Module:    mod,
		Functions: make([]*ipint.FunctionMetadata, len(mod.Code)),
	}
	imported := uint32(mod.NumImportedFuncs())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())
	for i := range mod.Code {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			md, err := function(gctx, mod, info, imported+uint32(i), opts)
			if err != nil {
				return err
			}
			res.Functions[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, errors.Canceled(err)
	}

	opts.logger().Debug("module compiled",
		zap.Int("functions", len(res.Functions)),
		zap.Int("imported", int(imported)),
		zap.Int("metadata", res.MetadataSize()))
	return res, nil
}

// Validate checks bin with wazero's validating decoder. The interpreter
// configuration is used so that no native code is generated.
func Validate(ctx context.Context, bin []byte) error {
	cfg := wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(api.CoreFeaturesV2)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, "module rejected by validator")
	}
	return compiled.Close(ctx)
}
