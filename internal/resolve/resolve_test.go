package resolve_test

import (
	"testing"

	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/resolve"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/token"
)

func tok(s string) token.Token { return token.Token{Text: s} }

func ident(name string) ast.Expression {
	return ast.Expression{Kind: ast.ExprIdentifier, Identifier: tok(name)}
}

func intLit(v int32) ast.Expression {
	return ast.Expression{Kind: ast.ExprIntLiteral, IntValue: v}
}

func callOf(name string, args ...ast.Expression) *ast.Call {
	callee := ident(name)
	return &ast.Call{Callable: &callee, Arguments: args}
}

// TestOverloadSelectionByArgumentType is scenario S6: two same-named
// functions differing only in parameter type resolve to distinct mangled
// signatures and distinct compiled instantiations depending on the
// argument's type.
func TestOverloadSelectionByArgumentType(t *testing.T) {
	root := symtab.NewRoot()
	nullReturn := ast.Null()

	printInt := &ast.Function{
		Name:       tok("print"),
		Params:     []ast.Param{{Name: tok("v"), TypeDescription: ast.Exact(ast.Int())}},
		ReturnType: &nullReturn,
		Body:       []ast.Statement{{Kind: ast.StmtReturn, Expression: intLit(0)}},
	}
	printRefChar := &ast.Function{
		Name:       tok("print"),
		Params:     []ast.Param{{Name: tok("v"), TypeDescription: ast.Exact(ast.Ref(ast.Char()))}},
		ReturnType: &nullReturn,
		Body:       []ast.Statement{{Kind: ast.StmtReturn, Expression: intLit(0)}},
	}
	if err := root.DefineFunction(printInt); err != nil {
		t.Fatalf("DefineFunction(print int): %v", err)
	}
	if err := root.DefineFunction(printRefChar); err != nil {
		t.Fatalf("DefineFunction(print ref char): %v", err)
	}

	r := resolve.New()

	cfInt, err := r.Resolve(root, callOf("print", intLit(7)))
	if err != nil {
		t.Fatalf("Resolve(print(7)): %v", err)
	}
	cfRef, err := r.Resolve(root, &ast.Call{
		Callable: ptr(ident("print")),
		Arguments: []ast.Expression{
			{Kind: ast.ExprOperation, Operation: &ast.Operation{
				Type: ast.OpRef,
				Lhs:  ptr(ast.Expression{Kind: ast.ExprCharLiteral, CharToken: tok("a")}),
			}},
		},
	})
	if err != nil {
		t.Fatalf("Resolve(print(ref char)): %v", err)
	}

	if cfInt.Signature == cfRef.Signature {
		t.Fatalf("overloads must mangle to distinct signatures, both got %q", cfInt.Signature)
	}
	if cfInt.Decl != printInt {
		t.Fatalf("print(int) should resolve to the int overload")
	}
	if cfRef.Decl != printRefChar {
		t.Fatalf("print(ref char) should resolve to the ref-char overload")
	}
}

// TestResolveIsDeterministic checks invariant 5: resolution depends only on
// argument types, not on call order or repeated invocation.
func TestResolveIsDeterministic(t *testing.T) {
	root := symtab.NewRoot()
	nullReturn := ast.Null()
	fn := &ast.Function{
		Name:       tok("id"),
		Params:     []ast.Param{{Name: tok("x"), TypeDescription: ast.Exact(ast.Int())}},
		ReturnType: &nullReturn,
		Body:       []ast.Statement{{Kind: ast.StmtReturn, Expression: ident("x")}},
	}
	if err := root.DefineFunction(fn); err != nil {
		t.Fatalf("DefineFunction: %v", err)
	}

	r := resolve.New()
	first, err := r.Resolve(root, callOf("id", intLit(1)))
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := r.Resolve(root, callOf("id", intLit(2)))
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if first.Signature != second.Signature {
		t.Fatalf("resolution of the same overload must be stable across calls: %q != %q", first.Signature, second.Signature)
	}
}

// TestResolveFirstMatchWinsInDeclarationOrder resolves spec.md §9's overload
// tie-break Open Question: when more than one declared overload could match
// (here, both take a single Any parameter), the first one registered wins.
func TestResolveFirstMatchWinsInDeclarationOrder(t *testing.T) {
	root := symtab.NewRoot()
	nullReturn := ast.Null()
	first := &ast.Function{
		Name:       tok("take"),
		Params:     []ast.Param{{Name: tok("v"), TypeDescription: ast.Any()}},
		ReturnType: &nullReturn,
		Body:       []ast.Statement{{Kind: ast.StmtReturn, Expression: intLit(1)}},
	}
	second := &ast.Function{
		Name:       tok("take"),
		Params:     []ast.Param{{Name: tok("v"), TypeDescription: ast.Any()}},
		ReturnType: &nullReturn,
		Body:       []ast.Statement{{Kind: ast.StmtReturn, Expression: intLit(2)}},
	}
	if err := root.DefineFunction(first); err != nil {
		t.Fatalf("DefineFunction(first): %v", err)
	}
	if err := root.DefineFunction(second); err != nil {
		t.Fatalf("DefineFunction(second): %v", err)
	}

	r := resolve.New()
	cf, err := r.Resolve(root, callOf("take", intLit(9)))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cf.Decl != first {
		t.Fatalf("expected the first-declared overload to win, got a different one")
	}
}

func TestResolveUnknownFunctionFails(t *testing.T) {
	root := symtab.NewRoot()
	r := resolve.New()
	if _, err := r.Resolve(root, callOf("nope")); err == nil {
		t.Fatalf("expected an error resolving an undeclared function")
	}
}

func ptr(e ast.Expression) *ast.Expression { return &e }
