package compile

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-ipint/errors"
	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

// Function generates the metadata of the module-defined function at
// funcIndex in the function index space.
func Function(ctx context.Context, mod *wasm.Module, funcIndex uint32, opts Options) (*ipint.FunctionMetadata, error) {
	return function(ctx, mod, ipint.ModuleInfoFromModule(mod), funcIndex, opts)
}

func function(ctx context.Context, mod *wasm.Module, info *ipint.ModuleInfo, funcIndex uint32, opts Options) (*ipint.FunctionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(err)
	}
	imported := uint32(mod.NumImportedFuncs())
	if funcIndex < imported || int(funcIndex-imported) >= len(mod.Code) {
		return nil, errors.NotFound(errors.PhaseCompile, "defined function", funcIndex)
	}
	sig := mod.GetFuncType(funcIndex)
	if sig == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindNotFound).
			Path(errors.FuncPath(funcIndex)).
			Detail("function type not found").
			Build()
	}
	w := newWalker(mod, info, funcIndex, *sig, &mod.Code[funcIndex-imported], opts)
	return w.run()
}

// cursor exposes the instruction being walked to the generator.
type cursor struct {
	instr wasm.Instruction
}

func (c *cursor) Offset() uint32      { return c.instr.End }
func (c *cursor) OpcodeStart() uint32 { return c.instr.Start }
func (c *cursor) Opcode() byte        { return c.instr.Opcode }

// frame tracks the operand height of one open control scope.
type frame struct {
	sig      ipint.Signature
	height   int  // operands pushed since the scope opened
	opcode   byte // opening instruction; OpCatch once a handler started, 0 for the function
	sawElse  bool
	catchAll bool
}

// arity is the number of values a branch to the frame carries.
func (f *frame) arity() int {
	if f.opcode == wasm.OpLoop {
		return len(f.sig.Params)
	}
	return len(f.sig.Results)
}

type walker struct {
	mod    *wasm.Module
	info   *ipint.ModuleInfo
	body   *wasm.FuncBody
	gen    *ipint.Generator
	reader *wasm.InstrReader
	log    *zap.Logger
	cur    cursor
	frames []frame

	numLocals uint64
	funcIndex uint32

	// Unreachable code since the last branch, return or throw in the
	// innermost frame. deadDepth counts blocks opened inside it.
	dead      bool
	deadDepth int
}

func newWalker(mod *wasm.Module, info *ipint.ModuleInfo, funcIndex uint32, sig wasm.FuncType, body *wasm.FuncBody, opts Options) *walker {
	w := &walker{
		mod:       mod,
		info:      info,
		body:      body,
		reader:    wasm.NewInstrReader(body.Body, body.CodeOffset),
		log:       opts.logger().With(zap.Uint32("func", funcIndex)),
		numLocals: uint64(len(sig.Params)) + body.NumLocals(),
		funcIndex: funcIndex,
	}
	w.cur.instr.End = body.CodeOffset
	w.gen = ipint.NewGenerator(opts.Config, info, funcIndex, sig, &w.cur)
	w.frames = append(w.frames, frame{sig: sig})
	return w
}

func (w *walker) run() (*ipint.FunctionMetadata, error) {
	for _, l := range w.body.Locals {
		w.gen.AddLocals(l.Count)
	}
	w.gen.DidFinishLocals()

	count := 0
	for !w.reader.Done() {
		if len(w.frames) == 0 {
			return nil, errors.New(errors.PhaseCompile, errors.KindInvalidData).
				Path(errors.FuncPath(w.funcIndex)).
				At(w.reader.Offset()).
				Detail("instructions after the end of the function").
				Build()
		}
		offset := w.reader.Offset()
		instr, err := w.reader.Next()
		if err != nil {
			return nil, w.decodeError(offset, err)
		}
		w.cur.instr = instr
		if err := w.step(instr); err != nil {
			return nil, w.annotate(err, instr)
		}
		count++
	}
	if len(w.frames) > 0 {
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidData).
			Path(errors.FuncPath(w.funcIndex)).
			At(w.reader.Offset()).
			Detail("function body not terminated: %d scopes open", len(w.frames)).
			Build()
	}

	md, err := w.gen.Finalize()
	if err != nil {
		return nil, err
	}
	w.log.Debug("function compiled",
		zap.Int("instructions", count),
		zap.Int("metadata", len(md.Metadata)),
		zap.Uint32("locals", md.NumLocals))
	return md, nil
}

func (w *walker) step(instr wasm.Instruction) error {
	if w.dead {
		return w.stepDead(instr)
	}

	switch op := instr.Opcode; op {
	case wasm.OpUnreachable, wasm.OpReturn:
		w.kill()
		return nil

	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry:
		return w.open(instr)

	case wasm.OpElse:
		return w.elseBranch(instr)

	case wasm.OpEnd:
		if f := w.top(); f.height < len(f.sig.Results) {
			return w.fail(errors.KindInvalidData, instr, "scope ends with %d operands, want %d", f.height, len(f.sig.Results))
		}
		return w.end()

	case wasm.OpBr:
		depth := instr.Imm.(wasm.BranchImm).LabelIdx
		height := w.top().height
		if err := w.checkLabel(instr, depth, height); err != nil {
			return err
		}
		if err := w.gen.Br(depth, height); err != nil {
			return err
		}
		w.kill()
		return nil

	case wasm.OpBrIf:
		depth := instr.Imm.(wasm.BranchImm).LabelIdx
		if err := w.pop(instr, 1); err != nil {
			return err
		}
		height := w.top().height
		if err := w.checkLabel(instr, depth, height); err != nil {
			return err
		}
		return w.gen.BrIf(depth, height)

	case wasm.OpBrTable:
		imm := instr.Imm.(wasm.BrTableImm)
		if err := w.pop(instr, 1); err != nil {
			return err
		}
		height := w.top().height
		for _, d := range imm.Labels {
			if err := w.checkLabel(instr, d, height); err != nil {
				return err
			}
		}
		if err := w.checkLabel(instr, imm.Default, height); err != nil {
			return err
		}
		if err := w.gen.BrTable(imm.Labels, imm.Default, height); err != nil {
			return err
		}
		w.kill()
		return nil

	case wasm.OpCall, wasm.OpReturnCall:
		idx := instr.Imm.(wasm.CallImm).FuncIdx
		ft := w.mod.GetFuncType(idx)
		if ft == nil {
			return w.fail(errors.KindNotFound, instr, "function %d not found", idx)
		}
		if err := w.pop(instr, len(ft.Params)); err != nil {
			return err
		}
		if err := w.gen.Call(idx, *ft); err != nil {
			return err
		}
		w.afterCall(op == wasm.OpReturnCall, len(ft.Results))
		return nil

	case wasm.OpCallIndirect, wasm.OpReturnCallIndirect:
		imm := instr.Imm.(wasm.CallIndirectImm)
		ft := w.mod.TypeAt(imm.TypeIdx)
		if ft == nil {
			return w.fail(errors.KindNotFound, instr, "type %d not found", imm.TypeIdx)
		}
		if err := w.pop(instr, len(ft.Params)+1); err != nil {
			return err
		}
		if err := w.gen.CallIndirect(imm.TableIdx, imm.TypeIdx, *ft); err != nil {
			return err
		}
		w.afterCall(op == wasm.OpReturnCallIndirect, len(ft.Results))
		return nil

	case wasm.OpThrow:
		params, err := w.tagParams(instr, instr.Imm.(wasm.ThrowImm).TagIdx)
		if err != nil {
			return err
		}
		if err := w.pop(instr, len(params)); err != nil {
			return err
		}
		w.kill()
		return nil

	case wasm.OpRethrow:
		depth := instr.Imm.(wasm.BranchImm).LabelIdx
		if int(depth) >= len(w.frames) || w.frames[len(w.frames)-1-int(depth)].opcode != wasm.OpCatch {
			return w.fail(errors.KindInvalidData, instr, "rethrow label %d is not a catch", depth)
		}
		w.kill()
		return nil

	case wasm.OpCatch, wasm.OpCatchAll:
		return w.catch(instr)

	case wasm.OpDelegate:
		return w.delegate(instr)

	case wasm.OpCallRef, wasm.OpReturnCallRef, wasm.OpBrOnNull, wasm.OpBrOnNonNull:
		return w.unsupported(instr)
	}

	pops, pushes, ok := effect(instr)
	if !ok {
		return w.unsupported(instr)
	}
	if err := w.pop(instr, pops); err != nil {
		return err
	}
	if err := w.operands(instr); err != nil {
		return err
	}
	w.top().height += pushes
	return nil
}

// stepDead skips unreachable instructions, keeping count of nested blocks
// so that the else, handler or end of the dead frame still reaches the
// generator.
func (w *walker) stepDead(instr wasm.Instruction) error {
	switch instr.Opcode {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry:
		w.deadDepth++
	case wasm.OpEnd:
		if w.deadDepth > 0 {
			w.deadDepth--
			return nil
		}
		return w.end()
	case wasm.OpDelegate:
		if w.deadDepth > 0 {
			w.deadDepth--
			return nil
		}
		return w.delegate(instr)
	case wasm.OpElse:
		if w.deadDepth == 0 {
			return w.elseBranch(instr)
		}
	case wasm.OpCatch, wasm.OpCatchAll:
		if w.deadDepth == 0 {
			return w.catch(instr)
		}
	}
	return nil
}

// operands emits the metadata of a non-control instruction.
func (w *walker) operands(instr wasm.Instruction) error {
	op := instr.Opcode
	switch imm := instr.Imm.(type) {
	case wasm.LocalImm:
		if uint64(imm.LocalIdx) >= w.numLocals {
			return w.fail(errors.KindOutOfBounds, instr, "local %d out of range (%d locals)", imm.LocalIdx, w.numLocals)
		}
		switch op {
		case wasm.OpLocalGet:
			return w.gen.LocalGet(imm.LocalIdx)
		case wasm.OpLocalSet:
			return w.gen.LocalSet(imm.LocalIdx)
		default:
			return w.gen.LocalTee(imm.LocalIdx)
		}

	case wasm.GlobalImm:
		if int(imm.GlobalIdx) >= len(w.info.Globals) {
			return w.fail(errors.KindOutOfBounds, instr, "global %d out of range (%d globals)", imm.GlobalIdx, len(w.info.Globals))
		}
		if op == wasm.OpGlobalGet {
			return w.gen.GlobalGet(imm.GlobalIdx)
		}
		return w.gen.GlobalSet(imm.GlobalIdx)

	case wasm.TableImm:
		if op == wasm.OpTableGet {
			return w.gen.TableGet(imm.TableIdx)
		}
		return w.gen.TableSet(imm.TableIdx)

	case wasm.MemoryImm:
		if wasm.IsLoad(op) {
			return w.gen.Load(imm.Offset)
		}
		return w.gen.Store(imm.Offset)

	case wasm.I32Imm:
		return w.gen.I32Const(imm.Value)

	case wasm.I64Imm:
		return w.gen.I64Const(imm.Value)

	case wasm.RefFuncImm:
		return w.gen.RefFunc(imm.FuncIdx)

	case wasm.MiscImm:
		return w.misc(instr.Sub, imm.Operands)
	}

	if op == wasm.OpSelect || op == wasm.OpSelectType {
		return w.gen.Select()
	}
	return nil
}

func (w *walker) misc(sub uint32, ops []uint32) error {
	switch sub {
	case wasm.MiscMemoryInit:
		return w.gen.MemoryInit(ops[0])
	case wasm.MiscDataDrop:
		return w.gen.DataDrop(ops[0])
	case wasm.MiscTableInit:
		return w.gen.TableInit(ops[0], ops[1])
	case wasm.MiscElemDrop:
		return w.gen.ElemDrop(ops[0])
	case wasm.MiscTableCopy:
		return w.gen.TableCopy(ops[0], ops[1])
	case wasm.MiscTableGrow:
		return w.gen.TableGrow(ops[0])
	case wasm.MiscTableSize:
		return w.gen.TableSize(ops[0])
	case wasm.MiscTableFill:
		return w.gen.TableFill(ops[0])
	}
	return nil
}

func (w *walker) open(instr wasm.Instruction) error {
	bt := instr.Imm.(wasm.BlockImm).Type
	sig, ok := w.mod.BlockType(bt)
	if !ok {
		return w.fail(errors.KindNotFound, instr, "block type %d not found", bt)
	}
	need := len(sig.Params)
	if instr.Opcode == wasm.OpIf {
		need++
	}
	if err := w.pop(instr, need); err != nil {
		return err
	}

	var err error
	switch instr.Opcode {
	case wasm.OpBlock:
		err = w.gen.Block(sig)
	case wasm.OpLoop:
		err = w.gen.Loop(sig)
	case wasm.OpIf:
		err = w.gen.If(sig)
	case wasm.OpTry:
		err = w.gen.Try(sig)
	}
	if err != nil {
		return err
	}
	w.frames = append(w.frames, frame{sig: sig, height: len(sig.Params), opcode: instr.Opcode})
	return nil
}

func (w *walker) elseBranch(instr wasm.Instruction) error {
	f := w.top()
	if f.opcode != wasm.OpIf || f.sawElse {
		return w.fail(errors.KindInvalidData, instr, "else without matching if")
	}
	if err := w.gen.Else(); err != nil {
		return err
	}
	f.sawElse = true
	f.height = len(f.sig.Params)
	w.dead = false
	return nil
}

// end closes the innermost frame. An if without an else gets an implicit
// one first; the cursor still points at end, which tells the generator so.
func (w *walker) end() error {
	f := w.top()
	if f.opcode == wasm.OpIf && !f.sawElse {
		if err := w.gen.Else(); err != nil {
			return err
		}
	}
	if err := w.gen.End(); err != nil {
		return err
	}
	w.closeFrame()
	return nil
}

func (w *walker) catch(instr wasm.Instruction) error {
	f := w.top()
	if (f.opcode != wasm.OpTry && f.opcode != wasm.OpCatch) || f.catchAll {
		return w.fail(errors.KindInvalidData, instr, "%s without matching try", instr)
	}

	height := 0
	if instr.Opcode == wasm.OpCatch {
		params, err := w.tagParams(instr, instr.Imm.(wasm.ThrowImm).TagIdx)
		if err != nil {
			return err
		}
		if err := w.gen.Catch(); err != nil {
			return err
		}
		height = len(params)
	} else {
		if err := w.gen.CatchAll(); err != nil {
			return err
		}
		f.catchAll = true
	}
	f.opcode = wasm.OpCatch
	f.height = height
	w.dead = false
	return nil
}

func (w *walker) delegate(instr wasm.Instruction) error {
	if w.top().opcode != wasm.OpTry {
		return w.fail(errors.KindInvalidData, instr, "delegate without matching try")
	}
	depth := instr.Imm.(wasm.BranchImm).LabelIdx
	// The label is counted from the scope enclosing the try.
	if int(depth) >= len(w.frames)-1 {
		return w.fail(errors.KindInvalidData, instr, "delegate label %d exceeds %d enclosing scopes", depth, len(w.frames)-1)
	}
	if err := w.gen.Delegate(depth); err != nil {
		return err
	}
	w.closeFrame()
	return nil
}

func (w *walker) closeFrame() {
	f := w.frames[len(w.frames)-1]
	w.frames = w.frames[:len(w.frames)-1]
	w.dead = false
	if len(w.frames) > 0 {
		w.top().height += len(f.sig.Results)
	}
}

func (w *walker) afterCall(tail bool, results int) {
	if tail {
		w.kill()
		return
	}
	w.top().height += results
}

func (w *walker) checkLabel(instr wasm.Instruction, depth uint32, height int) error {
	if int(depth) >= len(w.frames) {
		return w.fail(errors.KindInvalidData, instr, "label %d exceeds %d open scopes", depth, len(w.frames))
	}
	target := &w.frames[len(w.frames)-1-int(depth)]
	if height < target.arity() {
		return w.fail(errors.KindInvalidData, instr, "branch carries %d operands, label %d expects %d", height, depth, target.arity())
	}
	return nil
}

func (w *walker) tagParams(instr wasm.Instruction, tagIdx uint32) ([]wasm.ValType, error) {
	tag, ok := w.mod.TagAt(tagIdx)
	if !ok {
		return nil, w.fail(errors.KindNotFound, instr, "tag %d not found", tagIdx)
	}
	ft := w.mod.TypeAt(tag.TypeIdx)
	if ft == nil {
		return nil, w.fail(errors.KindNotFound, instr, "tag %d type %d not found", tagIdx, tag.TypeIdx)
	}
	return ft.Params, nil
}

func (w *walker) top() *frame {
	return &w.frames[len(w.frames)-1]
}

func (w *walker) pop(instr wasm.Instruction, n int) error {
	f := w.top()
	if f.height < n {
		return w.fail(errors.KindInvalidData, instr, "operand stack underflow: need %d, have %d", n, f.height)
	}
	f.height -= n
	return nil
}

func (w *walker) kill() {
	w.dead = true
	w.deadDepth = 0
}

func (w *walker) fail(kind errors.Kind, instr wasm.Instruction, format string, args ...any) error {
	return errors.New(errors.PhaseCompile, kind).
		Path(errors.FuncPath(w.funcIndex)).
		Opcode(instr.String()).
		At(instr.Start).
		Detail(format, args...).
		Build()
}

func (w *walker) unsupported(instr wasm.Instruction) error {
	return w.fail(errors.KindUnsupported, instr, "%s is not supported by the in-place interpreter", instr)
}

// annotate adds the position of instr to generator errors, which carry none.
func (w *walker) annotate(err error, instr wasm.Instruction) error {
	if e, ok := errors.As(err); ok && len(e.Path) == 0 {
		e.Path = []string{errors.FuncPath(w.funcIndex)}
		e.Opcode = instr.String()
		start := instr.Start
		e.Offset = &start
	}
	return err
}

func (w *walker) decodeError(offset uint32, err error) error {
	var unsupported *wasm.UnsupportedOpcodeError
	if stderrors.As(err, &unsupported) {
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(errors.FuncPath(w.funcIndex)).
			Opcode(wasm.OpName(unsupported.Opcode, unsupported.Sub)).
			At(unsupported.Offset).
			Detail("opcode is not supported by the in-place interpreter").
			Cause(err).
			Build()
	}
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(errors.FuncPath(w.funcIndex)).
		At(offset).
		Detail("decode instruction").
		Cause(err).
		Build()
}
