package compiler

import (
	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/ir"
	"github.com/benjilks-fork/funcc/internal/irgen"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/types"
)

// CompileFunction compiles the body of one already-resolved
// instantiation, binding its parameters (and, for a big return, the
// hidden return-area pointer) in a fresh child scope before lowering its
// statements. A function with no body (a declaration only) is skipped.
func (c *Compiler) CompileFunction(scope *symtab.Scope, cf *symtab.CompiledFunction) error {
	if cf.Decl.Body == nil {
		return nil
	}

	local := scope.NewChild()
	if cf.Decl.TypeVariable != "" && cf.TypeArg != nil {
		local.DefineTypeAlias(cf.Decl.TypeVariable, *cf.TypeArg)
	}

	returnSize, err := types.SizeOf(local, cf.ReturnType)
	if err != nil {
		return err
	}
	isBigReturn := returnSize > 4

	// The hidden return-area pointer, when present, is always the last
	// thing the caller pushes (see irgen.Generator.Call), so it lands
	// closest to the return address — offset 0, the callee's first
	// parameter — and is declared here with its own 4-byte pointer size,
	// not the size of the struct it points to.
	paramSizes := make([]int, 0, len(cf.ParamTypes)+1)
	if isBigReturn {
		paramSizes = append(paramSizes, 4)
	}
	for _, t := range cf.ParamTypes {
		size, err := types.SizeOf(local, t)
		if err != nil {
			return err
		}
		paramSizes = append(paramSizes, size)
	}

	params := c.Gen.StartFunction(cf.Signature, paramSizes)
	var returnTo *irgen.Value
	if isBigReturn {
		returnTo = params[0]
		params = params[1:]
	}

	for i, param := range cf.Decl.Params {
		if err := local.DefineValue(param.Name.Content(), params[i], cf.ParamTypes[i]); err != nil {
			return err
		}
	}

	// A function declared with no return-type annotation skips the
	// assignability check a `return` statement would otherwise run
	// against it; see compileReturn.
	var returnType *ast.DataType
	if cf.Decl.ReturnType != nil {
		rt := cf.ReturnType
		returnType = &rt
	}
	ctx := blockContext{returnType: returnType, returnTo: returnTo}

	didReturn := false
	for i := range cf.Decl.Body {
		if cf.Decl.Body[i].Kind == ast.StmtReturn {
			didReturn = true
		}
		if err := c.compileStatement(local, &cf.Decl.Body[i], ctx); err != nil {
			return err
		}
	}

	if !didReturn {
		zero := c.Gen.EmitInt(0)
		c.Gen.Return(zero, 4)
	}
	return nil
}

// seedMain enqueues the program's zero-argument main overload as the
// monomorphization queue's sole starting point; everything else reached
// transitively from its body follows through Resolver.Resolve as
// compilation proceeds.
func seedMain(scope *symtab.Scope) error {
	overloads, ok := scope.LookupFunctions("main")
	if !ok {
		return cerr.NewCompileErrorNoPosition("no main function declared")
	}

	for _, fn := range overloads {
		if len(fn.Params) != 0 {
			continue
		}

		var returnType ast.DataType
		if fn.ReturnType != nil {
			returnType = types.ResolveAliases(scope, *fn.ReturnType)
		} else {
			returnType = ast.Null()
		}

		signature := types.FunctionSignature("main", nil, &returnType)
		scope.Enqueue(&symtab.CompiledFunction{
			Name:       "main",
			Signature:  signature,
			Decl:       fn,
			ParamTypes: nil,
			ReturnType: returnType,
		})
		return nil
	}

	return cerr.NewCompileErrorNoPosition("main must take no arguments")
}

// CompileProgram registers every struct, function overload, and extern
// declared in source into a fresh root scope, seeds the monomorphization
// queue with main, and drains it until every reachable instantiation has
// been compiled, returning the finished program.
func CompileProgram(gen *irgen.Generator, source *ast.SourceFile) (ir.Program, error) {
	root := symtab.NewRoot()

	for i := range source.Structs {
		if err := root.DefineStruct(&source.Structs[i]); err != nil {
			return ir.Program{}, err
		}
	}
	for i := range source.Functions {
		if err := root.DefineFunction(&source.Functions[i]); err != nil {
			return ir.Program{}, err
		}
	}
	for _, name := range source.Externs {
		root.DefineExtern(name.Content())
		gen.AddExtern(name.Content())
	}

	if err := seedMain(root); err != nil {
		return ir.Program{}, err
	}

	c := New(gen)
	for {
		cf, ok := root.Dequeue()
		if !ok {
			break
		}
		if err := c.CompileFunction(root, cf); err != nil {
			return ir.Program{}, err
		}
	}

	return gen.Finish(), nil
}
