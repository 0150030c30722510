package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandContext holds the flags common to every subcommand, the same role
// flapc's CommandContext plays for its build/run/help dispatch.
type CommandContext struct {
	Verbose     bool
	OutputPath  string
	EntrySymbol string
}

// RunCLI dispatches a bare coatlc invocation to the right subcommand,
// mirroring flapc's RunCLI: explicit subcommand first, then extension-based
// fallback for a single bare filename.
func RunCLI(args []string, ctx *CommandContext) error {
	if len(args) == 0 {
		cmdHelp()
		return errors.New("coatlc: no input files")
	}

	switch args[0] {
	case "frontend":
		return cmdFrontend(ctx, args[1:])
	case "codegen":
		return cmdCodegen(ctx, args[1:])
	case "link":
		return cmdLink(ctx, args[1:])
	case "build":
		return cmdBuild(ctx, args[1:])
	case "help", "--help", "-h":
		cmdHelp()
		return nil
	default:
		if strings.HasSuffix(args[0], ".coatl") || strings.HasSuffix(args[0], ".mee") {
			return cmdBuild(ctx, args)
		}
		return fmt.Errorf("coatlc: unknown command %q\n\nRun 'coatlc help' for usage", args[0])
	}
}

func cmdHelp() {
	fmt.Fprintln(os.Stderr, `usage: coatlc <command> [arguments]

commands:
  frontend IN.coatl -o OUT.ir       parse source, emit textual IR
  codegen  IN.ir     -o OUT.s       read IR, emit x86-64 assembly
  link     IN.o      -o OUT         link a relocatable object into an executable
  build    IN.coatl  -o OUT         run frontend, codegen, as(1) and link in sequence`)
}

func outputPathFor(ctx *CommandContext, args []string, input, defaultSuffix string) (string, []string) {
	rest := make([]string, 0, len(args))
	out := ctx.OutputPath
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			out = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + defaultSuffix
	}
	return out, rest
}

func cmdFrontend(ctx *CommandContext, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: coatlc frontend IN.coatl -o OUT.ir")
	}
	input := args[0]
	out, _ := outputPathFor(ctx, args[1:], input, ".ir")

	src, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	mod, err := ParseProgram(string(src))
	if err != nil {
		return reportCompileError(err)
	}
	if ctx.Verbose {
		fmt.Fprintf(os.Stderr, "coatlc: parsed %s, %d function(s)\n", input, len(mod.Functions))
	}
	return os.WriteFile(out, []byte(mod.Render()), 0o644)
}

func cmdCodegen(ctx *CommandContext, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: coatlc codegen IN.ir -o OUT.s")
	}
	input := args[0]
	out, _ := outputPathFor(ctx, args[1:], input, ".s")

	asmText, err := codegenFile(input, ctx.Verbose)
	if err != nil {
		return err
	}
	return os.WriteFile(out, []byte(asmText), 0o644)
}

func codegenFile(input string, verbose bool) (string, error) {
	src, err := os.ReadFile(input)
	if err != nil {
		return "", err
	}
	mod, err := ReadIRModule(string(src))
	if err != nil {
		return "", reportCompileError(err)
	}
	g := NewCodeGen()
	asmText, err := g.Emit(mod)
	if err != nil {
		return "", reportCompileError(err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "coatlc: emitted %d bytes of assembly\n", len(asmText))
	}
	return asmText, nil
}

func cmdLink(ctx *CommandContext, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: coatlc link IN.o -o OUT")
	}
	input := args[0]
	out, _ := outputPathFor(ctx, args[1:], input, "")
	if out == input {
		out = strings.TrimSuffix(input, ".o")
	}
	return linkFile(input, out, ctx.EntrySymbol, ctx.Verbose)
}

func linkFile(input, out, entry string, verbose bool) error {
	if entry == "" {
		entry = DefaultEntrySymbol
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	exe, err := LinkSingleObject(data, entry)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "coatlc: linked %s -> %s (%d bytes), entry %s\n", input, out, len(exe), entry)
	}
	return os.WriteFile(out, exe, 0o755)
}

// cmdBuild runs the whole pipeline: frontend -> codegen -> as(1) -> link,
// shelling out to the system assembler exactly as flapc shells out to
// external tools (pkg-config, git) rather than reimplementing them.
func cmdBuild(ctx *CommandContext, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: coatlc build IN.coatl -o OUT")
	}
	input := args[0]
	out, _ := outputPathFor(ctx, args[1:], input, "")
	if out == input {
		base := filepath.Base(input)
		out = strings.TrimSuffix(base, filepath.Ext(base))
	}

	tmpDir, err := os.MkdirTemp("", "coatlc-build")
	if err != nil {
		return err
	}
	if !KeepTempFiles {
		defer os.RemoveAll(tmpDir)
	} else if ctx.Verbose {
		fmt.Fprintf(os.Stderr, "coatlc: keeping intermediate files in %s\n", tmpDir)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	irPath := filepath.Join(tmpDir, base+".ir")
	asmPath := filepath.Join(tmpDir, base+".s")
	objPath := filepath.Join(tmpDir, base+".o")

	src, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	mod, err := ParseProgram(string(src))
	if err != nil {
		return reportCompileError(err)
	}
	if err := os.WriteFile(irPath, []byte(mod.Render()), 0o644); err != nil {
		return err
	}

	asmText, err := codegenFile(irPath, ctx.Verbose)
	if err != nil {
		return err
	}
	if err := os.WriteFile(asmPath, []byte(asmText), 0o644); err != nil {
		return err
	}

	asCmd := exec.Command("as", "-o", objPath, asmPath)
	asCmd.Stderr = os.Stderr
	if ctx.Verbose {
		fmt.Fprintf(os.Stderr, "coatlc: %s\n", strings.Join(asCmd.Args, " "))
	}
	if err := asCmd.Run(); err != nil {
		return fmt.Errorf("as: %w", err)
	}

	return linkFile(objPath, out, ctx.EntrySymbol, ctx.Verbose)
}

// reportCompileError writes the fixed stderr wire record for a
// *CompileError before returning it up, so callers can still treat it as
// an ordinary error for control flow.
func reportCompileError(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		fmt.Fprintln(os.Stderr, ce.DiagLine())
	}
	return err
}
