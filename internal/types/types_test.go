package types_test

import (
	"testing"

	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/token"
	"github.com/benjilks-fork/funcc/internal/types"
)

func tok(s string) token.Token {
	return token.Token{Text: s}
}

func TestMangleInjective(t *testing.T) {
	cases := []ast.DataType{
		ast.Null(),
		ast.Int(),
		ast.Char(),
		ast.Bool(),
		ast.Struct("Point"),
		ast.Struct("Box"),
		ast.Ref(ast.Int()),
		ast.Ref(ast.Char()),
		ast.Array(ast.Int(), 3),
		ast.Array(ast.Int(), 4),
		ast.Array(ast.Char(), 3),
		ast.Generic(ast.Int(), "Box"),
		ast.Generic(ast.Char(), "Box"),
		ast.Generic(ast.Int(), "List"),
	}

	seen := map[string]ast.DataType{}
	for _, c := range cases {
		m := types.Mangle(c)
		if prior, ok := seen[m]; ok && !prior.Equal(c) {
			t.Fatalf("Mangle(%+v) and Mangle(%+v) both produced %q", prior, c, m)
		}
		seen[m] = c
	}
}

func TestMangleDeterministic(t *testing.T) {
	t1 := ast.Generic(ast.Ref(ast.Int()), "Box")
	a := types.Mangle(t1)
	b := types.Mangle(t1)
	if a != b {
		t.Fatalf("Mangle is not deterministic: %q != %q", a, b)
	}
}

func TestFunctionSignatureMainCollapse(t *testing.T) {
	returnType := ast.Int()
	sig := types.FunctionSignature("main", nil, &returnType)
	if sig != "main" {
		t.Fatalf("main_int should collapse to \"main\", got %q", sig)
	}
}

func TestFunctionSignatureDistinctForDistinctParams(t *testing.T) {
	intReturn := ast.Int()
	sigInt := types.FunctionSignature("id", []ast.DataType{ast.Int()}, &intReturn)
	sigChar := types.FunctionSignature("id", []ast.DataType{ast.Char()}, &intReturn)
	if sigInt == sigChar {
		t.Fatalf("overloads with different param types must mangle differently, both got %q", sigInt)
	}
}

func TestSizeOfPrimitives(t *testing.T) {
	scope := symtab.NewRoot()
	cases := []struct {
		t    ast.DataType
		want int
	}{
		{ast.Null(), 0},
		{ast.Int(), 4},
		{ast.Char(), 1},
		{ast.Bool(), 1},
		{ast.Ref(ast.Int()), 4},
		{ast.Array(ast.Int(), 3), 12},
		{ast.Array(ast.Char(), 5), 5},
	}
	for _, c := range cases {
		got, err := types.SizeOf(scope, c.t)
		if err != nil {
			t.Fatalf("SizeOf(%+v): %v", c.t, err)
		}
		if got != c.want {
			t.Errorf("SizeOf(%+v) = %d, want %d", c.t, got, c.want)
		}
	}
}

func TestSizeOfStruct(t *testing.T) {
	scope := symtab.NewRoot()
	decl := &ast.StructDecl{
		Name: tok("Point"),
		Fields: []ast.Field{
			{Name: tok("x"), DataType: ast.Int()},
			{Name: tok("y"), DataType: ast.Int()},
		},
	}
	if err := scope.DefineStruct(decl); err != nil {
		t.Fatalf("DefineStruct: %v", err)
	}
	size, err := types.SizeOf(scope, ast.Struct("Point"))
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 8 {
		t.Fatalf("SizeOf(Point{int,int}) = %d, want 8", size)
	}
}

func TestSizeOfGenericSubstitutesTypeVariable(t *testing.T) {
	scope := symtab.NewRoot()
	decl := &ast.StructDecl{
		Name:         tok("Box"),
		TypeVariable: "T",
		Fields: []ast.Field{
			{Name: tok("v"), DataType: ast.Struct("T")},
		},
	}
	if err := scope.DefineStruct(decl); err != nil {
		t.Fatalf("DefineStruct: %v", err)
	}

	size, err := types.SizeOf(scope, ast.Generic(ast.Int(), "Box"))
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 4 {
		t.Fatalf("SizeOf(Box of int) = %d, want 4", size)
	}

	size, err = types.SizeOf(scope, ast.Generic(ast.Char(), "Box"))
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != 1 {
		t.Fatalf("SizeOf(Box of char) = %d, want 1", size)
	}
}

func TestMatchesAnyAlwaysMatches(t *testing.T) {
	ok, inferred := types.Matches(ast.Any(), ast.Int(), "")
	if !ok || inferred != nil {
		t.Fatalf("Any should match with no inference, got ok=%v inferred=%v", ok, inferred)
	}
}

func TestMatchesTypeVariableInfers(t *testing.T) {
	desc := ast.Exact(ast.Struct("T"))
	ok, inferred := types.Matches(desc, ast.Int(), "T")
	if !ok || inferred == nil || !inferred.Equal(ast.Int()) {
		t.Fatalf("expected T to infer as int, got ok=%v inferred=%+v", ok, inferred)
	}
}

func TestMatchesExactStructuralMismatch(t *testing.T) {
	desc := ast.Exact(ast.Int())
	ok, _ := types.Matches(desc, ast.Char(), "")
	if ok {
		t.Fatalf("int parameter should not match a char argument")
	}
}
