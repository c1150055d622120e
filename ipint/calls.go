package ipint

import (
	"github.com/wippyai/wasm-ipint/wasm"
)

// Call Common Data layout.
const (
	callRegionSize = 32 // u16 per GPR at 0, u16 per FPR at callFPRAt
	callFPRAt      = 16
	callTailHeader = 6 // u16 tail size, u16 argc, u16 stack-only count
)

// Call records a direct call or return_call: u32 callee, u32 resume PC,
// then the Call Common Data of the callee signature.
func (g *Generator) Call(funcIndex uint32, callee Signature) error {
	resume := g.pc()
	off, err := g.buf.Allocate(EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put32(off, 0, funcIndex)
	g.buf.Put32(off, 4, resume)
	return g.addCallCommonData(callee)
}

// CallIndirect records call_indirect or return_call_indirect: u32 table,
// u32 type index, u32 reserved, u32 resume PC, then the Call Common Data of
// the callee signature.
func (g *Generator) CallIndirect(table, typeIndex uint32, callee Signature) error {
	resume := g.pc()
	off, err := g.buf.Allocate(2 * EntrySize)
	if err != nil {
		return err
	}
	g.buf.Put32(off, 0, table)
	g.buf.Put32(off, 4, typeIndex)
	g.buf.Put32(off, 12, resume)
	return g.addCallCommonData(callee)
}

// addCallCommonData tells the interpreter where each argument sits on the
// caller's operand stack, counted from the top. Register arguments go into
// the fixed region in register order; the rest are listed in the tail.
func (g *Generator) addCallCommonData(sig Signature) error {
	region, err := g.buf.Allocate(callRegionSize)
	if err != nil {
		return err
	}

	argc := len(sig.Params)
	stackOffset := uint16(argc - 1)
	var gprs, fprs int
	var locations []uint16
	for _, t := range sig.Params {
		switch {
		case isIntegerClass(t) && gprs < g.cc.GPRs:
			g.buf.Put16(region, 2*gprs, stackOffset)
			gprs++
		case isFloatClass(t) && fprs < g.cc.FPRs:
			g.buf.Put16(region, callFPRAt+2*fprs, stackOffset)
			fprs++
		default:
			locations = append(locations, stackOffset)
		}
		stackOffset--
	}

	extra := roundUp8(2*len(locations) + callTailHeader)
	tail, err := g.buf.Allocate(extra)
	if err != nil {
		return err
	}
	g.buf.Put16(tail, 0, uint16(extra))
	g.buf.Put16(tail, 2, uint16(argc))
	g.buf.Put16(tail, 4, uint16(len(locations)))
	for i, loc := range locations {
		g.buf.Put16(tail, callTailHeader+2*i, loc)
	}

	return g.addReturnData(sig.Results)
}

// addReturnData appends the result descriptor: u16 total size followed by
// the binary type encoding of each result, padded to whole entries.
func (g *Generator) addReturnData(results []wasm.ValType) error {
	size := roundUp8(len(results) + 2)
	off, err := g.buf.Allocate(size)
	if err != nil {
		return err
	}
	g.buf.Put16(off, 0, uint16(size))
	for i, t := range results {
		g.buf.Put8(off, 2+i, byte(t))
	}
	return nil
}
