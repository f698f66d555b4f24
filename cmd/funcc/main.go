// Command funcc compiles a JSON-encoded ast.SourceFile into 32-bit x86
// assembly text. It takes a single positional input path; tokenization and
// parsing of Fun source text are outside this module's scope (see
// internal/ast), so the driver consumes an already-built AST serialized as
// JSON rather than reading a .fun file directly. Assembly goes to stdout or
// -o; diagnostics go to stderr; -run additionally assembles, links, and
// executes the result via nasm/ld.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/compiler"
	"github.com/benjilks-fork/funcc/internal/ir"
	"github.com/benjilks-fork/funcc/internal/irgen"
	"github.com/benjilks-fork/funcc/internal/x86gen"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-o output] [-v] [-run] <ast.json>\n", os.Args[0])
}

func main() {
	var inputPath, outputPath string
	var verbose, runMode bool

	i := 1
	for i < len(os.Args) {
		switch os.Args[i] {
		case "-o":
			if i+1 >= len(os.Args) {
				usage()
				os.Exit(1)
			}
			outputPath = os.Args[i+1]
			i += 2
		case "-v":
			verbose = true
			i++
		case "-run":
			runMode = true
			i++
		default:
			if inputPath != "" {
				usage()
				os.Exit(1)
			}
			inputPath = os.Args[i]
			i++
		}
	}

	if inputPath == "" {
		usage()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if verbose || os.Getenv("FUNCC_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, inputPath, outputPath, runMode); err != nil {
		fmt.Fprintf(os.Stderr, "funcc: %s\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, inputPath, outputPath string, runMode bool) error {
	logger.Debug("reading source", "path", inputPath)
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var source ast.SourceFile
	if err := json.Unmarshal(raw, &source); err != nil {
		return fmt.Errorf("decode ast: %w", err)
	}
	logger.Debug("parsed source file", "functions", len(source.Functions), "structs", len(source.Structs))

	gen := irgen.New()
	program, err := compiler.CompileProgram(gen, &source)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	logger.Debug("compiled program", "functions", len(program.Functions))

	if runMode {
		return runProgram(logger, program)
	}

	var asm bytes.Buffer
	if err := x86gen.Generate(&asm, program); err != nil {
		return fmt.Errorf("generate assembly: %w", err)
	}

	if outputPath == "" {
		_, err = os.Stdout.Write(asm.Bytes())
		return err
	}
	return os.WriteFile(outputPath, asm.Bytes(), 0644)
}

// runProgram assembles the compiled program with nasm, links it with ld,
// and executes the resulting binary, relaying its stdout/stderr and exit
// code — the same shelling-out shape the teacher's -run mode uses in
// std/compiler/main.go, just against a real assembler/linker pair instead
// of a self-hosted ELF backend.
func runProgram(logger *slog.Logger, program ir.Program) error {
	var asm bytes.Buffer
	if err := x86gen.Generate(&asm, program); err != nil {
		return fmt.Errorf("generate assembly: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "funcc-run-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	asmPath := tmpDir + "/out.asm"
	objPath := tmpDir + "/out.o"
	binPath := tmpDir + "/out"
	if err := os.WriteFile(asmPath, asm.Bytes(), 0644); err != nil {
		return fmt.Errorf("write assembly: %w", err)
	}

	logger.Debug("assembling", "path", asmPath)
	nasm := exec.Command("nasm", "-f", "elf32", asmPath, "-o", objPath)
	nasm.Stderr = os.Stderr
	if err := nasm.Run(); err != nil {
		return fmt.Errorf("nasm: %w", err)
	}

	logger.Debug("linking", "path", objPath)
	ld := exec.Command("ld", "-m", "elf_i386", objPath, "-o", binPath)
	ld.Stderr = os.Stderr
	if err := ld.Run(); err != nil {
		return fmt.Errorf("ld: %w", err)
	}

	logger.Debug("executing", "path", binPath)
	prog := exec.Command(binPath)
	prog.Stdout = os.Stdout
	prog.Stderr = os.Stderr
	prog.Stdin = os.Stdin
	if err := prog.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
