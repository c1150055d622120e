package ipint

import (
	"runtime"

	"github.com/wippyai/wasm-ipint/wasm"
)

// Slot numbering shared by the argument layout and the interpreter frame.
const (
	maxRegisters     = 8
	FPRSlotBase      = 8  // first float register slot
	FrameHeaderSlots = 16 // first caller-stack slot
)

// CallingConvention is the number of argument registers the interpreter's
// call stubs use on the target platform.
type CallingConvention struct {
	GPRs int
	FPRs int
}

// Known platform conventions.
var (
	AMD64 = CallingConvention{GPRs: 6, FPRs: 8}
	ARM64 = CallingConvention{GPRs: 8, FPRs: 8}
)

// HostConvention returns the convention of the running architecture.
func HostConvention() CallingConvention {
	switch runtime.GOARCH {
	case "amd64":
		return AMD64
	case "arm64":
		return ARM64
	}
	return CallingConvention{GPRs: 0, FPRs: maxRegisters}
}

func (cc CallingConvention) clamp() CallingConvention {
	cc.GPRs = min(max(cc.GPRs, 0), maxRegisters)
	cc.FPRs = min(max(cc.FPRs, 0), maxRegisters)
	return cc
}

func isIntegerClass(t wasm.ValType) bool {
	return t == wasm.ValI32 || t == wasm.ValI64
}

func isFloatClass(t wasm.ValType) bool {
	return t == wasm.ValF32 || t == wasm.ValF64
}

// ArgumentLayout maps each function parameter to a register or stack slot.
type ArgumentLayout struct {
	Locations  []uint32
	GPRsUsed   int
	FPRsUsed   int
	NumOnStack int
}

// NewArgumentLayout assigns params in declaration order: integers to the
// next free GPR, floats to the next free FPR, everything else to the next
// stack slot.
func NewArgumentLayout(params []wasm.ValType, cc CallingConvention) ArgumentLayout {
	cc = cc.clamp()
	l := ArgumentLayout{Locations: make([]uint32, len(params))}
	for i, t := range params {
		switch {
		case isIntegerClass(t) && l.GPRsUsed < cc.GPRs:
			l.Locations[i] = uint32(l.GPRsUsed)
			l.GPRsUsed++
		case isFloatClass(t) && l.FPRsUsed < cc.FPRs:
			l.Locations[i] = uint32(FPRSlotBase + l.FPRsUsed)
			l.FPRsUsed++
		default:
			l.Locations[i] = uint32(FrameHeaderSlots + l.NumOnStack)
			l.NumOnStack++
		}
	}
	return l
}

// NonArgLocalOffset is added to the index of a declared local to get its
// slot, placing locals right after the stack-passed arguments.
func (l ArgumentLayout) NonArgLocalOffset() int32 {
	return int32(FrameHeaderSlots + l.NumOnStack - len(l.Locations))
}

// Slot resolves a local index to its frame slot.
func (l ArgumentLayout) Slot(local uint32) uint32 {
	if int(local) < len(l.Locations) {
		return l.Locations[local]
	}
	return uint32(int64(local) + int64(l.NonArgLocalOffset()))
}
