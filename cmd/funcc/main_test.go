package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/token"
)

func tok(s string) token.Token { return token.Token{Text: s} }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func writeSourceFile(t *testing.T, source *ast.SourceFile) string {
	t.Helper()
	raw, err := json.Marshal(source)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "source.json")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func identityMain() *ast.SourceFile {
	intType := ast.Int()
	return &ast.SourceFile{
		Functions: []ast.Function{
			{
				Name:       tok("main"),
				ReturnType: &intType,
				Body: []ast.Statement{
					{Kind: ast.StmtReturn, Expression: ast.Expression{Kind: ast.ExprIntLiteral, IntValue: 0}},
				},
			},
		},
	}
}

func TestRunWritesAssemblyToOutputFile(t *testing.T) {
	source := identityMain()
	inputPath := writeSourceFile(t, source)
	outputPath := filepath.Join(t.TempDir(), "out.asm")

	if err := run(discardLogger(), inputPath, outputPath, false); err != nil {
		t.Fatalf("run: %v", err)
	}

	asm, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading generated assembly: %v", err)
	}
	if !strings.Contains(string(asm), "ret") {
		t.Fatalf("expected generated assembly to contain a ret instruction, got:\n%s", asm)
	}
}

func TestRunFailsOnMissingInputFile(t *testing.T) {
	if err := run(discardLogger(), filepath.Join(t.TempDir(), "does-not-exist.json"), "", false); err == nil {
		t.Fatalf("expected an error reading a nonexistent input file")
	}
}

func TestRunFailsOnMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := run(discardLogger(), path, "", false); err == nil {
		t.Fatalf("expected an error decoding malformed JSON")
	}
}

func TestRunFailsOnCompileError(t *testing.T) {
	source := &ast.SourceFile{
		Functions: []ast.Function{
			{
				Name: tok("main"),
				Body: []ast.Statement{
					{Kind: ast.StmtReturn, Expression: ast.Expression{Kind: ast.ExprIdentifier, Identifier: tok("undefined_name")}},
				},
			},
		},
	}
	inputPath := writeSourceFile(t, source)

	if err := run(discardLogger(), inputPath, "", false); err == nil {
		t.Fatalf("expected a compile error referencing an undefined identifier")
	}
}
