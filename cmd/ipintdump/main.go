package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-ipint/compile"
	"github.com/wippyai/wasm-ipint/errors"
	"github.com/wippyai/wasm-ipint/ipint"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	offsetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to core module wasm file")
		funcIdx     = flag.Int("func", -1, "Function index to dump (default: all defined functions)")
		arch        = flag.String("arch", "host", "Calling convention: host, amd64 or arm64")
		maxSize     = flag.Int("max", 0, "Metadata size limit per function in bytes (0 = unlimited)")
		jobs        = flag.Int("j", 0, "Functions compiled in parallel (0 = GOMAXPROCS)")
		validate    = flag.Bool("validate", false, "Validate the module with wazero first")
		summary     = flag.Bool("summary", false, "Print one line per function instead of entries")
		verbose     = flag.Bool("v", false, "Debug logging to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: ipintdump -wasm <file.wasm> [-func N] [-arch amd64|arm64] [-validate]")
		fmt.Fprintln(os.Stderr, "       ipintdump -wasm <file.wasm> -summary")
		fmt.Fprintln(os.Stderr, "       ipintdump -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	log := zap.NewNop()
	if *verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer log.Sync()
	}

	cc, err := convention(*arch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts := compile.Options{
		Config: ipint.Config{
			Logger:            log,
			CallingConvention: cc,
			MaxMetadataSize:   *maxSize,
		},
		Validate:    *validate,
		Concurrency: *jobs,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	if err := run(os.Stdout, *wasmFile, *funcIdx, *summary, styled, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func convention(arch string) (ipint.CallingConvention, error) {
	switch arch {
	case "host", "":
		return ipint.HostConvention(), nil
	case "amd64":
		return ipint.AMD64, nil
	case "arm64":
		return ipint.ARM64, nil
	}
	return ipint.CallingConvention{}, fmt.Errorf("unknown architecture %q", arch)
}

func load(ctx context.Context, wasmFile string, opts compile.Options) (*compile.Result, error) {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, errors.Load("read file", err)
	}
	return compile.Module(ctx, data, opts)
}

func run(w io.Writer, wasmFile string, funcIdx int, summary, styled bool, opts compile.Options) error {
	ctx := context.Background()

	res, err := load(ctx, wasmFile, opts)
	if err != nil && res == nil {
		return err
	}

	imported := res.Module.NumImportedFuncs()
	fmt.Fprintf(w, "Module: %s\n", wasmFile)
	fmt.Fprintf(w, "Functions: %d defined, %d imported\n", len(res.Functions), imported)
	fmt.Fprintf(w, "Metadata: %d bytes\n\n", res.MetadataSize())

	for i, md := range res.Functions {
		idx := imported + i
		if funcIdx >= 0 && idx != funcIdx {
			continue
		}
		if md == nil {
			fmt.Fprintln(w, style(styled, failStyle, fmt.Sprintf("func[%d]: not compiled", idx)))
			continue
		}
		if summary {
			fmt.Fprintln(w, summarize(md))
			continue
		}
		if err := dump(w, md, styled); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return err
}

func summarize(md *ipint.FunctionMetadata) string {
	return fmt.Sprintf("func[%d] entries=%d bytes=%d bytecode=%d locals=%d args=%d",
		md.FuncIndex, md.Entries(), len(md.Metadata), md.BytecodeLength, md.NumLocals, md.NumArguments)
}

// dump writes md.Dump output, styling the summary line and entry offsets
// when writing to a terminal.
func dump(w io.Writer, md *ipint.FunctionMetadata, styled bool) error {
	var b strings.Builder
	if err := md.Dump(&b); err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			line = style(styled, headerStyle, line)
		case strings.HasPrefix(line, "  ") && len(line) > 7 && line[6] == ':':
			line = "  " + style(styled, offsetStyle, line[2:7]) + line[7:]
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func style(styled bool, s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}
