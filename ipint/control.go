package ipint

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-ipint/wasm"
)

// Branch entry layout.
const (
	branchEntrySize = 2 * EntrySize
	branchPopAt     = 8  // u16 values to pop
	branchArityAt   = 10 // u16 values to keep
	branchResumeAt  = 12 // u32 PC after the branch instruction
)

// Block opens a block. Its entry holds the PC after the block header.
func (g *Generator) Block(sig Signature) error {
	g.push(&Scope{kind: ScopeBlock, sig: sig})
	_, err := g.buf.AddRaw(uint64(g.pc()))
	return err
}

// Loop opens a loop. Branches to it resume right after the header, so its
// target is known immediately.
func (g *Generator) Loop(sig Signature) error {
	pc := g.pc()
	if _, err := g.buf.AddRaw(uint64(pc)); err != nil {
		return err
	}
	g.push(&Scope{kind: ScopeLoop, sig: sig, entry: Target{PC: pc, MC: g.mc()}})
	return nil
}

// If opens an if. The first entry is the false-edge target, patched by the
// matching else or end; the second holds the PC after the header.
func (g *Generator) If(sig Signature) error {
	placeholder, err := g.buf.Allocate(EntrySize)
	if err != nil {
		return err
	}
	g.push(&Scope{kind: ScopeIf, sig: sig, pending: pendingPatch{off: placeholder, ok: true}})
	_, err = g.buf.AddRaw(uint64(g.pc()))
	return err
}

// Else resolves the false edge of the innermost if and turns the scope into
// a block. When the cursor is at end the else is implicit: no else entry
// exists and the false edge lands on the current metadata cursor. Otherwise
// the false edge skips the new placeholder allocated for the end of the
// then-branch.
func (g *Generator) Else() error {
	s := g.top()
	if s.kind != ScopeIf || !s.pending.ok {
		panic(fmt.Sprintf("ipint: else in %s scope", s.kind))
	}
	pending := s.pending.off
	pc, mc := g.pc(), g.mc()
	if g.cursor.Opcode() == wasm.OpEnd {
		g.buf.PutTarget(pending, Target{PC: pc, MC: mc})
		s.convert(ScopeBlock, CatchNone)
		return nil
	}
	g.buf.PutTarget(pending, Target{PC: pc, MC: mc + EntrySize})
	s.convert(ScopeBlock, CatchNone)
	placeholder, err := g.buf.Allocate(EntrySize)
	if err != nil {
		return err
	}
	s.pending = pendingPatch{off: placeholder, ok: true}
	return nil
}

// Br records an unconditional branch to the scope at depth. height is the
// number of operands above the base of the innermost scope.
func (g *Generator) Br(depth uint32, height int) error {
	return g.branch(g.ScopeAt(depth), height)
}

// BrIf records a conditional branch; height excludes the condition.
func (g *Generator) BrIf(depth uint32, height int) error {
	return g.branch(g.ScopeAt(depth), height)
}

// BrTable records a branch table: a count entry followed by one branch
// entry per label and one for the default.
func (g *Generator) BrTable(depths []uint32, defaultDepth uint32, height int) error {
	if _, err := g.buf.AddRaw(uint64(len(depths) + 1)); err != nil {
		return err
	}
	for _, d := range depths {
		if err := g.branch(g.ScopeAt(d), height); err != nil {
			return err
		}
	}
	return g.branch(g.ScopeAt(defaultDepth), height)
}

func (g *Generator) branch(target *Scope, height int) error {
	arity := target.BranchArity()
	if height < arity {
		panic(fmt.Sprintf("ipint: branch with %d operands to %s expecting %d", height, target.kind, arity))
	}
	off, err := g.buf.Allocate(branchEntrySize)
	if err != nil {
		return err
	}
	target.awaiting = append(target.awaiting, off)
	g.buf.Put16(off, branchPopAt, uint16(height-arity))
	g.buf.Put16(off, branchArityAt, uint16(arity))
	g.buf.Put32(off, branchResumeAt, g.pc())
	return nil
}

// End closes the innermost scope and resolves everything waiting on it.
// Exits land on the end instruction itself, which is why the PC is one less
// than the cursor.
func (g *Generator) End() error {
	s := g.pop()
	exit := Target{PC: g.pc() - 1, MC: g.mc()}
	switch s.kind {
	case ScopeLoop:
		g.resolve(s, s.entry)
	case ScopeTopLevel:
		g.resolve(s, exit)
		g.bytecodeLength = g.cursor.Offset()
		results := make([]wasm.ValType, s.BranchArity())
		for i := range results {
			results[i] = s.BranchType(i)
		}
		if err := g.addReturnData(results); err != nil {
			return err
		}
		g.done = true
	default:
		g.resolve(s, exit)
	}
	return nil
}

// Try opens a legacy try scope. It emits nothing.
func (g *Generator) Try(sig Signature) error {
	g.push(&Scope{kind: ScopeTry, sig: sig})
	return nil
}

// Catch starts a tagged handler of the innermost try.
func (g *Generator) Catch() error {
	return g.catch(CatchTag)
}

// CatchAll starts the catch-all handler of the innermost try.
func (g *Generator) CatchAll() error {
	return g.catch(CatchAll)
}

func (g *Generator) catch(kind CatchKind) error {
	s := g.top()
	if s.kind != ScopeTry && s.kind != ScopeCatch {
		panic(fmt.Sprintf("ipint: catch in %s scope", s.kind))
	}
	s.convert(ScopeCatch, kind)
	return nil
}

// Delegate closes the innermost try, forwarding its exceptions to the scope
// at depth. Branches out of the try land after the delegate instruction.
func (g *Generator) Delegate(depth uint32) error {
	s := g.pop()
	if s.kind != ScopeTry {
		panic(fmt.Sprintf("ipint: delegate in %s scope", s.kind))
	}
	g.log.Debug("delegate", zap.Uint32("depth", depth), zap.Int("branches", len(s.awaiting)))
	g.resolve(s, Target{PC: g.pc(), MC: g.mc()})
	return nil
}

// resolve patches the scope's pending placeholder and every branch waiting
// on it. Loops never have a pending placeholder.
func (g *Generator) resolve(s *Scope, t Target) {
	if s.pending.ok {
		g.buf.PutTarget(s.pending.off, t)
	}
	for _, off := range s.awaiting {
		g.buf.PutTarget(off, t)
	}
	g.log.Debug("scope closed",
		zap.Stringer("kind", s.kind),
		zap.Int("branches", len(s.awaiting)),
		zap.Uint32("pc", t.PC),
		zap.Uint32("mc", t.MC))
}
