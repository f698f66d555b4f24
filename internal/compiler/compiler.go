// Package compiler lowers one already-resolved ast.SourceFile into a
// complete ir.Program: it is the glue between internal/resolve (overload
// resolution and monomorphization), internal/irgen (IR emission),
// internal/symtab (scoping) and internal/types (type derivation and
// sizing). Compilation starts from a zero-argument main and drains the
// monomorphization queue until no instantiation remains unreached —
// unlike earlier, non-generic revisions of this compiler that walked
// every declared function up front, a function that is never called
// (directly or transitively) from main is never compiled at all.
package compiler

import (
	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/irgen"
	"github.com/benjilks-fork/funcc/internal/resolve"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/types"
)

// Compiler lowers expressions, statements, and whole function bodies
// through a shared irgen.Generator and a stateless overload resolver.
type Compiler struct {
	Gen      *irgen.Generator
	Resolver *resolve.Resolver
}

// New returns a Compiler that emits into gen.
func New(gen *irgen.Generator) *Compiler {
	return &Compiler{Gen: gen, Resolver: resolve.New()}
}

// layoutField is one resolved, offset-assigned field of a struct or
// generic instantiation.
type layoutField struct {
	Name   string
	Offset int
	Type   ast.DataType
}

// structLayout resolves every field of t (a Struct or Generic type) to
// its byte offset and concrete type, substituting the bound type
// argument for any field declared as the struct's own type variable.
func structLayout(scope *symtab.Scope, t ast.DataType) ([]layoutField, error) {
	var declName string
	var typeArg *ast.DataType
	switch t.Kind {
	case ast.DTStruct:
		declName = t.Name
	case ast.DTGeneric:
		declName = t.Name
		typeArg = t.Elem
	default:
		return nil, cerr.NewCompileErrorNoPosition("cannot lay out a non-struct type")
	}

	decl, ok := scope.LookupStruct(declName)
	if !ok {
		return nil, cerr.NewCompileErrorNoPosition("could not find struct %q", declName)
	}

	fields := make([]layoutField, 0, len(decl.Fields))
	offset := 0
	for _, f := range decl.Fields {
		fieldType := f.DataType
		if typeArg != nil && fieldType.Kind == ast.DTStruct && fieldType.Name == decl.TypeVariable {
			fieldType = *typeArg
		}
		size, err := types.SizeOf(scope, fieldType)
		if err != nil {
			return nil, err
		}
		fields = append(fields, layoutField{Name: f.Name.Content(), Offset: offset, Type: fieldType})
		offset += size
	}
	return fields, nil
}

func fieldIn(fields []layoutField, name string) (layoutField, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return layoutField{}, false
}
