package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gantry-go/gantry"
	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/reader"
	"github.com/gantry-go/gantry/internal/settings"
)

type compileOptions struct {
	isaName  string
	set      []string
	printIR  bool
	optLevel string
}

func newCompileCommand(root *rootCommand) *cobra.Command {
	opts := &compileOptions{}
	cmd := &cobra.Command{
		Use:   "compile [file]",
		Short: "compile functions in the ir text format to machine code",
		Long: `Compile reads functions in the ir text format from the given file, or from
standard input when the file is "-" or omitted, compiles each one for the
selected target and prints a hex listing with the recorded side tables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			source, err := readSource(args)
			if err != nil {
				return err
			}
			return compile(root, opts, source)
		},
	}
	cmd.Flags().StringVar(&opts.isaName, "isa", "amd64", "target isa (amd64, riscv)")
	cmd.Flags().StringVarP(&opts.optLevel, "opt-level", "O", "none", "optimization level (none, speed, speed_and_size)")
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "set a compiler flag, as name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.printIR, "print", false, "print each function's ir before compiling it")
	return cmd
}

func readSource(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

func buildFlags(opts *compileOptions) (settings.Flags, error) {
	b := settings.NewBuilder()
	if err := b.Set("opt_level", opts.optLevel); err != nil {
		return settings.Flags{}, err
	}
	for _, kv := range opts.set {
		name, value, err := splitFlag(kv)
		if err != nil {
			return settings.Flags{}, err
		}
		if err := b.Set(name, value); err != nil {
			return settings.Flags{}, err
		}
	}
	return b.Finish(), nil
}

func splitFlag(kv string) (string, string, error) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("--set %q is not of the form name=value", kv)
}

func compile(root *rootCommand, opts *compileOptions, source []byte) error {
	flags, err := buildFlags(opts)
	if err != nil {
		return err
	}
	target, err := gantry.LookupISA(opts.isaName, flags)
	if err != nil {
		return err
	}
	fns, err := reader.ParseFunctions(string(source))
	if err != nil {
		return err
	}
	if len(fns) == 0 {
		return fmt.Errorf("no functions in input")
	}

	ctx := gantry.NewContext()
	for _, f := range fns {
		if opts.printIR {
			fmt.Fprint(root.stdout, f.String())
		}
		root.logger.WithFields(logrus.Fields{
			"function": f.Name,
			"isa":      target.Name(),
		}).Debug("compiling")

		ctx.ForFunction(f)
		sec, info, err := ctx.CompileAndEmit(target)
		if err != nil {
			return fmt.Errorf("%%%s: %w", f.Name, err)
		}
		printListing(root.stdout, f.Name, sec, info)
	}
	return nil
}

// printListing renders one compiled function: a header with the size
// breakdown, the bytes sixteen per line, then any non-empty side tables.
func printListing(w io.Writer, name string, sec *binemit.Section, info binemit.CodeInfo) {
	fmt.Fprintf(w, "%%%s: %d bytes", name, info.TotalSize)
	if info.JumpTablesSize > 0 || info.RodataSize > 0 {
		fmt.Fprintf(w, " (code %d, jump tables %d, rodata %d)",
			info.CodeSize, info.JumpTablesSize, info.RodataSize)
	}
	fmt.Fprintln(w)

	code := sec.Bytes()
	for i := 0; i < len(code); i += 16 {
		end := i + 16
		if end > len(code) {
			end = len(code)
		}
		fmt.Fprintf(w, "  %04x:", i)
		for _, b := range code[i:end] {
			fmt.Fprintf(w, " %02x", b)
		}
		fmt.Fprintln(w)
	}

	for _, r := range sec.Relocs() {
		fmt.Fprintf(w, "  reloc %04x: %s %s %+d\n", r.Offset, r.Kind, r.Name, r.Addend)
	}
	for _, t := range sec.Traps() {
		fmt.Fprintf(w, "  trap %04x: %s\n", t.Offset, t.Code)
	}
	for _, cs := range sec.CallSites() {
		fmt.Fprintf(w, "  call %04x: %s\n", cs.RetAddr, cs.Opcode)
	}
}
