package ipint

import (
	"github.com/wippyai/wasm-ipint/wasm"
)

// ScopeKind is the kind of a control scope.
type ScopeKind uint8

const (
	ScopeTopLevel ScopeKind = iota
	ScopeBlock
	ScopeLoop
	ScopeIf
	ScopeTry   // legacy try before its first catch
	ScopeCatch // legacy try after catch or catch_all
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeTopLevel:
		return "toplevel"
	case ScopeBlock:
		return "block"
	case ScopeLoop:
		return "loop"
	case ScopeIf:
		return "if"
	case ScopeTry:
		return "try"
	case ScopeCatch:
		return "catch"
	}
	return "unknown"
}

// CatchKind distinguishes the handlers of a ScopeCatch scope.
type CatchKind uint8

const (
	CatchNone CatchKind = iota
	CatchTag
	CatchAll
)

// Signature is the parameter and result types of a scope or function.
type Signature = wasm.FuncType

// Target is a resolved jump destination in both coordinate spaces.
type Target struct {
	PC uint32 // bytecode offset relative to the first instruction
	MC uint32 // metadata offset
}

type pendingPatch struct {
	off Offset
	ok  bool
}

// Scope is one open structured-control region.
type Scope struct {
	sig      Signature
	awaiting []Offset
	pending  pendingPatch
	entry    Target // loops only
	kind     ScopeKind
	catch    CatchKind
}

// Kind returns the scope kind.
func (s *Scope) Kind() ScopeKind { return s.kind }

// CatchKind returns the handler kind of a ScopeCatch scope.
func (s *Scope) CatchKind() CatchKind { return s.catch }

// Signature returns the scope's block type.
func (s *Scope) Signature() Signature { return s.sig }

// Pending returns the placeholder owned by the scope header, if any. Only
// if scopes and blocks converted from an if by else carry one.
func (s *Scope) Pending() (Offset, bool) {
	return s.pending.off, s.pending.ok
}

// Awaiting returns the branch entries waiting for this scope to resolve.
func (s *Scope) Awaiting() []Offset { return s.awaiting }

// Entry returns the branch-back target of a loop.
func (s *Scope) Entry() (Target, bool) {
	return s.entry, s.kind == ScopeLoop
}

// BranchArity returns the number of values a branch to this scope carries.
func (s *Scope) BranchArity() int {
	if s.kind == ScopeLoop {
		return len(s.sig.Params)
	}
	return len(s.sig.Results)
}

// BranchType returns the type of the i-th value carried by a branch.
func (s *Scope) BranchType(i int) wasm.ValType {
	if s.kind == ScopeLoop {
		return s.sig.Params[i]
	}
	return s.sig.Results[i]
}

// convert changes the kind in place, dropping the pending placeholder and
// keeping branches that already target the scope.
func (s *Scope) convert(kind ScopeKind, catch CatchKind) {
	s.kind = kind
	s.catch = catch
	s.pending = pendingPatch{}
}
