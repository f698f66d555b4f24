// Package resolve implements overload resolution and type-variable
// inference: matching a call site to one of several same-named function
// declarations, inferring a generic callee's type variable from its
// arguments, and recording the resulting instantiation in the scope's
// monomorphization queue.
package resolve

import (
	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/types"
)

// Resolver resolves call expressions against a scope's function overload
// sets. It is stateless; every method takes the scope it operates over.
type Resolver struct{}

// New returns a ready-to-use Resolver.
func New() *Resolver { return &Resolver{} }

// ResolveCall implements types.CallResolver so that internal/types can
// derive the type of a call expression without importing this package.
func (r *Resolver) ResolveCall(scope *symtab.Scope, call *ast.Call) (string, ast.DataType, error) {
	cf, err := r.Resolve(scope, call)
	if err != nil {
		return "", ast.DataType{}, err
	}
	return cf.Signature, cf.ReturnType, nil
}

// Resolve matches call against its callee's overload set, infers the
// type-variable binding (if the callee is generic), and enqueues the
// concrete instantiation for the driver to compile.
func (r *Resolver) Resolve(scope *symtab.Scope, call *ast.Call) (*symtab.CompiledFunction, error) {
	if call.Callable.Kind != ast.ExprIdentifier {
		return nil, cerr.NewCompileErrorNoPosition("callee must be a plain function name")
	}
	name := call.Callable.Identifier.Content()

	argTypes := make([]ast.DataType, len(call.Arguments))
	for i := range call.Arguments {
		t, err := types.DeriveType(scope, r, &call.Arguments[i])
		if err != nil {
			return nil, err
		}
		argTypes[i] = t
	}

	overloads, ok := scope.LookupFunctions(name)
	if !ok {
		return nil, cerr.NewCompileError(call.Callable.Identifier.Position(), "could not find function %q", name)
	}

	for _, fn := range overloads {
		if len(fn.Params) != len(call.Arguments) {
			continue
		}

		var binding *ast.DataType
		if call.TypeArgument != nil {
			b := *call.TypeArgument
			binding = &b
		}

		matched := true
		for i, param := range fn.Params {
			ok, inferred := types.Matches(param.TypeDescription, argTypes[i], fn.TypeVariable)
			if !ok {
				matched = false
				break
			}
			if inferred == nil {
				continue
			}
			if binding != nil && !binding.Equal(*inferred) {
				matched = false
				break
			}
			binding = inferred
		}
		if !matched {
			continue
		}

		return r.instantiate(scope, fn, name, argTypes, binding)
	}

	return nil, cerr.NewCompileError(call.Callable.Identifier.Position(), "could not find function %q matching these argument types", name)
}

func (r *Resolver) instantiate(scope *symtab.Scope, fn *ast.Function, name string, argTypes []ast.DataType, binding *ast.DataType) (*symtab.CompiledFunction, error) {
	local := scope.NewChild()
	if fn.TypeVariable != "" && binding != nil {
		local.DefineTypeAlias(fn.TypeVariable, *binding)
	}

	var returnType ast.DataType
	if fn.ReturnType != nil {
		returnType = types.ResolveAliases(local, *fn.ReturnType)
	} else {
		returnType = ast.Null()
	}

	signature := types.FunctionSignature(name, argTypes, &returnType)
	cf := &symtab.CompiledFunction{
		Name:       name,
		Signature:  signature,
		Decl:       fn,
		ParamTypes: argTypes,
		ReturnType: returnType,
		TypeArg:    binding,
	}
	scope.Enqueue(cf)
	return cf, nil
}
