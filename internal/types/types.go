// Package types implements type derivation, struct layout, and signature
// mangling over internal/ast.DataType. There is no separate "resolved
// type" representation: once internal/symtab's type-alias table has been
// consulted, an ast.DataType already carries everything a concrete type
// needs (ResolveAliases is exactly that consultation step).
package types

import (
	"fmt"

	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/symtab"
)

// CallResolver resolves a call expression down to its mangled callee name
// and return type. internal/resolve implements this; internal/types
// depends only on the interface so that resolve (which in turn depends on
// types for matching, sizing, and mangling) does not import types back.
type CallResolver interface {
	ResolveCall(scope *symtab.Scope, call *ast.Call) (signature string, returnType ast.DataType, err error)
}

// ResolveAliases replaces any Struct(name) that is actually a bound type
// variable with its current binding, recursing through Array/Ref/Generic.
// This is how a generic function body sees its own type variable resolved
// once a call site has inferred a binding for it.
func ResolveAliases(scope *symtab.Scope, t ast.DataType) ast.DataType {
	switch t.Kind {
	case ast.DTStruct:
		if alias, ok := scope.LookupTypeAlias(t.Name); ok {
			return alias
		}
		return t
	case ast.DTArray:
		elem := ResolveAliases(scope, *t.Elem)
		return ast.Array(elem, t.Len)
	case ast.DTRef:
		elem := ResolveAliases(scope, *t.Elem)
		return ast.Ref(elem)
	case ast.DTGeneric:
		elem := ResolveAliases(scope, *t.Elem)
		return ast.Generic(elem, t.Name)
	default:
		return t
	}
}

func deriveAccessType(scope *symtab.Scope, lhsType ast.DataType, fieldName string) (ast.DataType, error) {
	switch lhsType.Kind {
	case ast.DTStruct:
		decl, ok := scope.LookupStruct(lhsType.Name)
		if !ok {
			return ast.DataType{}, cerr.NewCompileErrorNoPosition("could not find struct %q", lhsType.Name)
		}
		for _, f := range decl.Fields {
			if f.Name.Content() == fieldName {
				return f.DataType, nil
			}
		}
		return ast.DataType{}, cerr.NewCompileErrorNoPosition("could not find field %q in struct %q", fieldName, lhsType.Name)

	case ast.DTGeneric:
		decl, ok := scope.LookupStruct(lhsType.Name)
		if !ok {
			return ast.DataType{}, cerr.NewCompileErrorNoPosition("could not find struct %q", lhsType.Name)
		}
		for _, f := range decl.Fields {
			if f.Name.Content() != fieldName {
				continue
			}
			if f.DataType.Kind == ast.DTStruct && f.DataType.Name == decl.TypeVariable {
				return *lhsType.Elem, nil
			}
			return f.DataType, nil
		}
		return ast.DataType{}, cerr.NewCompileErrorNoPosition("could not find field %q in struct %q", fieldName, lhsType.Name)

	case ast.DTRef:
		return deriveAccessType(scope, *lhsType.Elem, fieldName)

	default:
		return ast.DataType{}, cerr.NewCompileErrorNoPosition("cannot access a field of a non-struct type")
	}
}

func deriveOperationType(scope *symtab.Scope, resolver CallResolver, op *ast.Operation) (ast.DataType, error) {
	lhsType, err := DeriveType(scope, resolver, op.Lhs)
	if err != nil {
		return ast.DataType{}, err
	}

	switch op.Type {
	case ast.OpAccess:
		if op.Rhs.Kind != ast.ExprIdentifier {
			return ast.DataType{}, cerr.NewCompileErrorNoPosition("right-hand side of '.' must be a field name")
		}
		return deriveAccessType(scope, lhsType, op.Rhs.Identifier.Content())

	case ast.OpIndexed:
		switch lhsType.Kind {
		case ast.DTArray, ast.DTRef:
			return *lhsType.Elem, nil
		default:
			return ast.DataType{}, cerr.NewCompileErrorNoPosition("cannot index a non-array, non-reference type")
		}

	case ast.OpDeref:
		if lhsType.Kind != ast.DTRef {
			return ast.DataType{}, cerr.NewCompileErrorNoPosition("cannot dereference a non-reference type")
		}
		return *lhsType.Elem, nil

	case ast.OpAdd, ast.OpSubtract, ast.OpMultiply:
		return ast.Int(), nil

	case ast.OpGreaterThan, ast.OpLessThan:
		return ast.Bool(), nil

	case ast.OpRef:
		return ast.Ref(lhsType), nil

	case ast.OpSizeof:
		return ast.Int(), nil

	case ast.OpAssign:
		return ast.Null(), nil

	default:
		return ast.DataType{}, cerr.NewCompileErrorNoPosition("unhandled operation kind")
	}
}

// DeriveType computes the type of expr per spec.md §4.1, resolving any
// type-variable alias in scope on the way out. resolver handles the one
// case (a call) that needs overload resolution, which this package does
// not itself depend on.
func DeriveType(scope *symtab.Scope, resolver CallResolver, expr *ast.Expression) (ast.DataType, error) {
	result, err := deriveTypeInner(scope, resolver, expr)
	if err != nil {
		return ast.DataType{}, err
	}
	return ResolveAliases(scope, result), nil
}

func deriveTypeInner(scope *symtab.Scope, resolver CallResolver, expr *ast.Expression) (ast.DataType, error) {
	switch expr.Kind {
	case ast.ExprIntLiteral:
		return ast.Int(), nil
	case ast.ExprBoolLiteral:
		return ast.Bool(), nil
	case ast.ExprStringLiteral:
		return ast.Ref(ast.Char()), nil
	case ast.ExprCharLiteral:
		return ast.Char(), nil

	case ast.ExprOperation:
		return deriveOperationType(scope, resolver, expr.Operation)

	case ast.ExprCall:
		_, returnType, err := resolver.ResolveCall(scope, expr.Call)
		return returnType, err

	case ast.ExprExternCall:
		if expr.ExternCall.ReturnType == nil {
			return ast.DataType{}, cerr.NewCompileError(expr.ExternCall.Name.Position(),
				"extern call %q has no return type annotation", expr.ExternCall.Name.Content())
		}
		return *expr.ExternCall.ReturnType, nil

	case ast.ExprIdentifier:
		binding, ok := scope.LookupValue(expr.Identifier.Content())
		if !ok {
			return ast.DataType{}, cerr.NewCompileError(expr.Identifier.Position(), "could not find %q", expr.Identifier.Content())
		}
		return binding.Type, nil

	case ast.ExprInitializerList:
		return expr.InitializerList.DataType, nil

	case ast.ExprArrayLiteral:
		if len(expr.ArrayLiteral) == 0 {
			return ast.DataType{}, cerr.NewCompileErrorNoPosition("array literal must have at least one element")
		}
		itemType, err := DeriveType(scope, resolver, &expr.ArrayLiteral[0])
		if err != nil {
			return ast.DataType{}, err
		}
		return ast.Array(itemType, len(expr.ArrayLiteral)), nil

	default:
		return ast.DataType{}, cerr.NewCompileErrorNoPosition("unhandled expression kind")
	}
}

func sizeOfStruct(scope *symtab.Scope, name string) (int, error) {
	decl, ok := scope.LookupStruct(name)
	if !ok {
		return 0, cerr.NewCompileErrorNoPosition("could not find struct %q", name)
	}
	total := 0
	for _, f := range decl.Fields {
		size, err := SizeOf(scope, f.DataType)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func sizeOfGeneric(scope *symtab.Scope, name string, arg ast.DataType) (int, error) {
	decl, ok := scope.LookupStruct(name)
	if !ok {
		return 0, cerr.NewCompileErrorNoPosition("could not find struct %q", name)
	}
	total := 0
	for _, f := range decl.Fields {
		fieldType := f.DataType
		if fieldType.Kind == ast.DTStruct && fieldType.Name == decl.TypeVariable {
			fieldType = arg
		}
		size, err := SizeOf(scope, fieldType)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// SizeOf computes a type's byte size by left-to-right field accumulation
// with no padding.
func SizeOf(scope *symtab.Scope, t ast.DataType) (int, error) {
	switch t.Kind {
	case ast.DTNull:
		return 0, nil
	case ast.DTInt:
		return 4, nil
	case ast.DTChar, ast.DTBool:
		return 1, nil
	case ast.DTRef:
		return 4, nil
	case ast.DTStruct:
		if alias, ok := scope.LookupTypeAlias(t.Name); ok {
			return SizeOf(scope, alias)
		}
		return sizeOfStruct(scope, t.Name)
	case ast.DTArray:
		elemSize, err := SizeOf(scope, *t.Elem)
		if err != nil {
			return 0, err
		}
		return elemSize * t.Len, nil
	case ast.DTGeneric:
		return sizeOfGeneric(scope, t.Name, *t.Elem)
	default:
		return 0, cerr.NewCompileErrorNoPosition("unhandled data type kind")
	}
}

// Mangle encodes a single type for use inside a mangled signature.
func Mangle(t ast.DataType) string {
	switch t.Kind {
	case ast.DTNull:
		return "null"
	case ast.DTInt:
		return "int"
	case ast.DTChar:
		return "char"
	case ast.DTBool:
		return "bool"
	case ast.DTStruct:
		return t.Name
	case ast.DTArray:
		return fmt.Sprintf("%s%d", Mangle(*t.Elem), t.Len)
	case ast.DTRef:
		return "ref" + Mangle(*t.Elem)
	case ast.DTGeneric:
		return fmt.Sprintf("%sof%s", Mangle(*t.Elem), t.Name)
	default:
		return "?"
	}
}

// FunctionSignature computes the mangled linkage name of one instantiation:
// name, then each parameter type's encoding, then the return type's
// encoding (if any). A parameterless "main" is the program entry point and
// always collapses to plain "main", whatever its return type.
func FunctionSignature(name string, paramTypes []ast.DataType, returnType *ast.DataType) string {
	if name == "main" && len(paramTypes) == 0 {
		return "main"
	}
	sig := name + "_"
	for _, p := range paramTypes {
		sig += Mangle(p)
	}
	if returnType != nil {
		sig += Mangle(*returnType)
	}
	return sig
}

// DoesTypeExist reports whether every struct name reachable from t is
// actually declared in scope.
func DoesTypeExist(scope *symtab.Scope, t ast.DataType) bool {
	switch t.Kind {
	case ast.DTStruct:
		_, ok := scope.LookupStruct(t.Name)
		return ok
	case ast.DTArray, ast.DTRef:
		return DoesTypeExist(scope, *t.Elem)
	case ast.DTGeneric:
		if !DoesTypeExist(scope, *t.Elem) {
			return false
		}
		_, ok := scope.LookupStruct(t.Name)
		return ok
	default:
		return true
	}
}

// TypeVariableName extracts the bare identifier a syntactic type-variable
// reference was parsed as — always a DTStruct with no further structure,
// since the parser cannot tell a type variable apart from a struct name
// at parse time.
func TypeVariableName(t ast.DataType) (string, bool) {
	if t.Kind != ast.DTStruct {
		return "", false
	}
	return t.Name, true
}

// Matches implements TypeDescription matching per spec.md §4.2: Any
// always matches; Exact matches structurally, except that wherever the
// declared type names the callee's type variable, any concrete argument
// type matches and is inferred as that variable's binding.
func Matches(desc ast.TypeDescription, argType ast.DataType, typeVarName string) (ok bool, inferred *ast.DataType) {
	if desc.Kind == ast.DescAny {
		return true, nil
	}
	return matchesExact(desc.Type, argType, typeVarName)
}

func matchesExact(declared, argType ast.DataType, typeVarName string) (bool, *ast.DataType) {
	if typeVarName != "" && declared.Kind == ast.DTStruct && declared.Name == typeVarName {
		bound := argType
		return true, &bound
	}

	if declared.Kind != argType.Kind {
		return false, nil
	}

	switch declared.Kind {
	case ast.DTArray:
		if declared.Len != argType.Len {
			return false, nil
		}
		return matchesExact(*declared.Elem, *argType.Elem, typeVarName)
	case ast.DTRef:
		return matchesExact(*declared.Elem, *argType.Elem, typeVarName)
	case ast.DTGeneric:
		if declared.Name != argType.Name {
			return false, nil
		}
		return matchesExact(*declared.Elem, *argType.Elem, typeVarName)
	case ast.DTStruct:
		return declared.Name == argType.Name, nil
	default:
		return true, nil
	}
}
