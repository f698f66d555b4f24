// Package symtab implements the lexically nested scope the rest of the
// compiler resolves names through: values, struct declarations, function
// overload sets, type aliases (how a generic callee's type variable is
// threaded through its body), and the extern set. It also owns the
// monomorphization queue: the shared record of every concrete function
// instantiation the driver still needs to compile.
package symtab

import (
	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/irgen"
)

// ValueBinding pairs a bound name's IR handle with its derived type.
type ValueBinding struct {
	Handle *irgen.Value
	Type   ast.DataType
}

// CompiledFunction is one concrete, post-resolution instantiation of a
// (possibly overloaded, possibly generic) source-level function: the
// resolved parameter types, the resolved return type, the type-variable
// binding if the description was generic, and the mangled Signature that
// both names it in the emitted assembly and serves as its dedup key.
type CompiledFunction struct {
	Name       string
	Signature  string
	Decl       *ast.Function
	ParamTypes []ast.DataType
	ReturnType ast.DataType
	TypeArg    *ast.DataType // nil unless Decl is generic
}

// queue is the shared monomorphization work list: every scope in one
// compilation's scope tree points at the same queue, so a CompiledFunction
// recorded from deep inside a callee's body is visible to the driver no
// matter which scope discovered it.
type queue struct {
	seen    map[string]*CompiledFunction
	pending []*CompiledFunction
}

// Scope is one lexical level of nested bindings. The zero value is not
// usable; construct one with NewRoot.
type Scope struct {
	parent *Scope
	q      *queue

	values      map[string]ValueBinding
	structs     map[string]*ast.StructDecl
	typeAliases map[string]ast.DataType
	functions   map[string][]*ast.Function
	externs     map[string]bool
}

// NewRoot returns an empty top-level scope with a fresh monomorphization
// queue.
func NewRoot() *Scope {
	return &Scope{q: &queue{seen: map[string]*CompiledFunction{}}}
}

// NewChild opens a nested scope; lookups fall through to s, writes land
// only in the child. Used at function-body, block, and if/loop/while
// boundaries.
func (s *Scope) NewChild() *Scope {
	return &Scope{parent: s, q: s.q}
}

// DefineValue binds name in this scope. It is an error to redefine a name
// already bound directly in this scope (shadowing an outer scope's
// binding is fine).
func (s *Scope) DefineValue(name string, handle *irgen.Value, typ ast.DataType) error {
	if s.values == nil {
		s.values = map[string]ValueBinding{}
	}
	if _, exists := s.values[name]; exists {
		return cerr.NewCompileErrorNoPosition("redefinition of %q in the same scope", name)
	}
	s.values[name] = ValueBinding{Handle: handle, Type: typ}
	return nil
}

// LookupValue walks the parent chain, innermost first.
func (s *Scope) LookupValue(name string) (ValueBinding, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.values[name]; ok {
			return v, true
		}
	}
	return ValueBinding{}, false
}

// DefineStruct registers a (possibly generic) struct declaration.
func (s *Scope) DefineStruct(decl *ast.StructDecl) error {
	if s.structs == nil {
		s.structs = map[string]*ast.StructDecl{}
	}
	if _, exists := s.structs[decl.Name.Content()]; exists {
		return cerr.NewCompileError(decl.Name.Position(), "redefinition of struct %q", decl.Name.Content())
	}
	s.structs[decl.Name.Content()] = decl
	return nil
}

// LookupStruct walks the parent chain for a struct declaration by name.
func (s *Scope) LookupStruct(name string) (*ast.StructDecl, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.structs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// DefineTypeAlias binds a type-variable name to a concrete type for the
// extent of this scope — how a generic function's body sees its own type
// variable resolved once a call site has inferred a binding.
func (s *Scope) DefineTypeAlias(name string, t ast.DataType) {
	if s.typeAliases == nil {
		s.typeAliases = map[string]ast.DataType{}
	}
	s.typeAliases[name] = t
}

// LookupTypeAlias walks the parent chain for a type-variable binding.
func (s *Scope) LookupTypeAlias(name string) (ast.DataType, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.typeAliases[name]; ok {
			return v, true
		}
	}
	return ast.DataType{}, false
}

// hasTypeVariableReference reports whether t anywhere names typeVar as a
// bare Struct(name) reference — the shape a type variable takes in
// syntax before it is known to be a variable rather than a struct name.
func hasTypeVariableReference(t ast.DataType, typeVar string) bool {
	switch t.Kind {
	case ast.DTStruct:
		return t.Name == typeVar
	case ast.DTRef, ast.DTArray:
		return t.Elem != nil && hasTypeVariableReference(*t.Elem, typeVar)
	case ast.DTGeneric:
		return t.Elem != nil && hasTypeVariableReference(*t.Elem, typeVar)
	default:
		return false
	}
}

// DefineFunction appends fn to its name's overload set. A description
// mixing an Any parameter with a parameter that references the function's
// own declared type variable is rejected: types.Matches has no
// way to tell "accepts anything" apart from "accepts anything and also
// binds the type variable", so the combination is ambiguous by
// construction and is refused at registration time rather than silently
// picked one way or the other.
func (s *Scope) DefineFunction(fn *ast.Function) error {
	seen := map[string]bool{}
	for _, p := range fn.Params {
		name := p.Name.Content()
		if seen[name] {
			return cerr.NewCompileError(p.Name.Position(),
				"duplicate parameter name %q in function %q", name, fn.Name.Content())
		}
		seen[name] = true
	}

	if fn.TypeVariable != "" {
		hasAny := false
		hasTypeVarRef := false
		for _, p := range fn.Params {
			switch p.TypeDescription.Kind {
			case ast.DescAny:
				hasAny = true
			case ast.DescExact:
				if hasTypeVariableReference(p.TypeDescription.Type, fn.TypeVariable) {
					hasTypeVarRef = true
				}
			}
		}
		if hasAny && hasTypeVarRef {
			return cerr.NewCompileError(fn.Name.Position(),
				"function %q mixes an 'any' parameter with a parameter referencing its type variable %q",
				fn.Name.Content(), fn.TypeVariable)
		}
	}
	if s.functions == nil {
		s.functions = map[string][]*ast.Function{}
	}
	s.functions[fn.Name.Content()] = append(s.functions[fn.Name.Content()], fn)
	return nil
}

// LookupFunctions returns the full overload set for name, walking the
// parent chain. The first scope that defines any overload of name wins —
// overload sets are not merged across scopes.
func (s *Scope) LookupFunctions(name string) ([]*ast.Function, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if fns, ok := sc.functions[name]; ok {
			return fns, true
		}
	}
	return nil, false
}

// DefineExtern records name as a linker-resolved symbol.
func (s *Scope) DefineExtern(name string) {
	if s.externs == nil {
		s.externs = map[string]bool{}
	}
	s.externs[name] = true
}

// IsExtern reports whether name was declared extern anywhere in the
// parent chain.
func (s *Scope) IsExtern(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.externs[name] {
			return true
		}
	}
	return false
}

// Enqueue records cf in the shared monomorphization set, deduplicating on
// its mangled Signature. It returns true the first time a given signature
// is seen — the driver only needs to compile the body on that occasion.
func (s *Scope) Enqueue(cf *CompiledFunction) bool {
	if _, seen := s.q.seen[cf.Signature]; seen {
		return false
	}
	s.q.seen[cf.Signature] = cf
	s.q.pending = append(s.q.pending, cf)
	return true
}

// Dequeue pops the next not-yet-compiled instantiation, in the order
// Enqueue first saw it.
func (s *Scope) Dequeue() (*CompiledFunction, bool) {
	if len(s.q.pending) == 0 {
		return nil, false
	}
	cf := s.q.pending[0]
	s.q.pending = s.q.pending[1:]
	return cf, true
}
