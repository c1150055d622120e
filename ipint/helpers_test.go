package ipint_test

import (
	"testing"

	"github.com/wippyai/wasm-ipint/ipint"
	"github.com/wippyai/wasm-ipint/wasm"
)

// cursor is a hand-driven instruction position. Bodies in these tests start
// with a single byte of local declarations.
type cursor struct {
	start, end uint32
	op         byte
}

func (c *cursor) Offset() uint32      { return c.end }
func (c *cursor) OpcodeStart() uint32 { return c.start }
func (c *cursor) Opcode() byte        { return c.op }

// step moves over the next instruction, n bytes long.
func (c *cursor) step(op byte, n uint32) {
	c.start = c.end
	c.end += n
	c.op = op
}

var amd64 = ipint.Config{CallingConvention: ipint.AMD64}

func newGenerator(cfg ipint.Config, info *ipint.ModuleInfo, sig ipint.Signature) (*ipint.Generator, *cursor) {
	c := &cursor{end: 1}
	g := ipint.NewGenerator(cfg, info, 0, sig, c)
	g.DidFinishLocals()
	return g, c
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func finish(t *testing.T, g *ipint.Generator, c *cursor) *ipint.FunctionMetadata {
	t.Helper()
	c.step(wasm.OpEnd, 1)
	must(t, g.End())
	md, err := g.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	return md
}

func sig(params, results []wasm.ValType) ipint.Signature {
	return ipint.Signature{Params: params, Results: results}
}

func vals(ts ...wasm.ValType) []wasm.ValType { return ts }
