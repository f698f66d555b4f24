package compiler

import (
	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/ir"
	"github.com/benjilks-fork/funcc/internal/irgen"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/token"
	"github.com/benjilks-fork/funcc/internal/types"
)

func (c *Compiler) compileIdentifier(scope *symtab.Scope, name token.Token) (*irgen.Value, error) {
	binding, ok := scope.LookupValue(name.Content())
	if !ok {
		return nil, cerr.NewCompileError(name.Position(), "could not find %q", name.Content())
	}
	return binding.Handle, nil
}

func (c *Compiler) compileInitializerList(scope *symtab.Scope, list *ast.InitializerList) (*irgen.Value, error) {
	layout, err := structLayout(scope, list.DataType)
	if err != nil {
		return nil, err
	}
	totalSize, err := types.SizeOf(scope, list.DataType)
	if err != nil {
		return nil, err
	}

	fields := make([]irgen.FieldInit, 0, len(list.Fields))
	for _, init := range list.Fields {
		field, ok := fieldIn(layout, init.Name.Content())
		if !ok {
			return nil, cerr.NewCompileError(init.Name.Position(), "no field %q on this struct", init.Name.Content())
		}
		size, err := types.SizeOf(scope, field.Type)
		if err != nil {
			return nil, err
		}
		value, err := c.compileExpression(scope, &init.Value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, irgen.FieldInit{Offset: field.Offset, Value: value, Size: size})
	}

	return c.Gen.NewAggregate(totalSize, fields), nil
}

func (c *Compiler) compileArrayLiteral(scope *symtab.Scope, items []ast.Expression) (*irgen.Value, error) {
	if len(items) == 0 {
		return nil, cerr.NewCompileErrorNoPosition("array literal must have at least one element")
	}
	itemType, err := types.DeriveType(scope, c.Resolver, &items[0])
	if err != nil {
		return nil, err
	}
	itemSize, err := types.SizeOf(scope, itemType)
	if err != nil {
		return nil, err
	}

	fields := make([]irgen.FieldInit, len(items))
	for i := range items {
		value, err := c.compileExpression(scope, &items[i])
		if err != nil {
			return nil, err
		}
		fields[i] = irgen.FieldInit{Offset: i * itemSize, Value: value, Size: itemSize}
	}

	return c.Gen.NewAggregate(itemSize*len(items), fields), nil
}

// compileBinary evaluates both operands then combines them with one of
// the generator's arithmetic or comparison builtins, releasing each
// operand's handle once the result has been computed — matching the
// reference implementation's reliance on its operands going out of scope
// at the end of the compile_add/compile_subtract/etc. call.
func (c *Compiler) compileBinary(scope *symtab.Scope, kind ir.OpKind, isComparison bool, lhs, rhs *ast.Expression) (*irgen.Value, error) {
	l, err := c.compileExpression(scope, lhs)
	if err != nil {
		return nil, err
	}
	r, err := c.compileExpression(scope, rhs)
	if err != nil {
		return nil, err
	}

	var dst *irgen.Value
	if isComparison {
		dst = c.Gen.Comparison(kind, l, r)
	} else {
		dst = c.Gen.Arithmetic(kind, l, r)
	}
	l.Release()
	r.Release()
	return dst, nil
}

func (c *Compiler) compileAccess(scope *symtab.Scope, lhs, rhs *ast.Expression) (*irgen.Value, error) {
	if rhs.Kind != ast.ExprIdentifier {
		return nil, cerr.NewCompileErrorNoPosition("right-hand side of '.' must be a field name")
	}

	lhsType, err := types.DeriveType(scope, c.Resolver, lhs)
	if err != nil {
		return nil, err
	}
	lhsValue, err := c.compileExpression(scope, lhs)
	if err != nil {
		return nil, err
	}

	structType := lhsType
	isRef := false
	if lhsType.Kind == ast.DTRef {
		structType = *lhsType.Elem
		isRef = true
	}

	layout, err := structLayout(scope, structType)
	if err != nil {
		return nil, err
	}
	field, ok := fieldIn(layout, rhs.Identifier.Content())
	if !ok {
		return nil, cerr.NewCompileError(rhs.Identifier.Position(), "no field %q on this struct", rhs.Identifier.Content())
	}
	fieldSize, err := types.SizeOf(scope, field.Type)
	if err != nil {
		return nil, err
	}
	return c.Gen.Access(lhsValue, isRef, field.Offset, fieldSize), nil
}

func (c *Compiler) compileIndexed(scope *symtab.Scope, lhs, rhs *ast.Expression) (*irgen.Value, error) {
	lhsType, err := types.DeriveType(scope, c.Resolver, lhs)
	if err != nil {
		return nil, err
	}
	lhsValue, err := c.compileExpression(scope, lhs)
	if err != nil {
		return nil, err
	}
	rhsValue, err := c.compileExpression(scope, rhs)
	if err != nil {
		return nil, err
	}

	var elemType ast.DataType
	isRef := false
	switch lhsType.Kind {
	case ast.DTArray:
		elemType = *lhsType.Elem
	case ast.DTRef:
		elemType = *lhsType.Elem
		isRef = true
	default:
		return nil, cerr.NewCompileErrorNoPosition("cannot index a non-array, non-reference type")
	}

	elemSize, err := types.SizeOf(scope, elemType)
	if err != nil {
		return nil, err
	}
	return c.Gen.Index(lhsValue, isRef, rhsValue, elemSize), nil
}

func (c *Compiler) compileRef(scope *symtab.Scope, lhs *ast.Expression) (*irgen.Value, error) {
	value, err := c.compileExpression(scope, lhs)
	if err != nil {
		return nil, err
	}
	ref := c.Gen.RefOf(value)
	value.Release()
	return ref, nil
}

func (c *Compiler) compileDeref(scope *symtab.Scope, lhs *ast.Expression) (*irgen.Value, error) {
	lhsType, err := types.DeriveType(scope, c.Resolver, lhs)
	if err != nil {
		return nil, err
	}
	if lhsType.Kind != ast.DTRef {
		return nil, cerr.NewCompileErrorNoPosition("cannot dereference a non-reference type")
	}
	value, err := c.compileExpression(scope, lhs)
	if err != nil {
		return nil, err
	}
	size, err := types.SizeOf(scope, *lhsType.Elem)
	if err != nil {
		return nil, err
	}
	return c.Gen.Deref(value, size), nil
}

func (c *Compiler) compileSizeof(scope *symtab.Scope, lhs *ast.Expression) (*irgen.Value, error) {
	t, err := types.DeriveType(scope, c.Resolver, lhs)
	if err != nil {
		return nil, err
	}
	size, err := types.SizeOf(scope, t)
	if err != nil {
		return nil, err
	}
	return c.Gen.EmitInt(int32(size)), nil
}

func (c *Compiler) compileAssign(scope *symtab.Scope, lhs, rhs *ast.Expression) (*irgen.Value, error) {
	toType, err := types.DeriveType(scope, c.Resolver, lhs)
	if err != nil {
		return nil, err
	}
	valueType, err := types.DeriveType(scope, c.Resolver, rhs)
	if err != nil {
		return nil, err
	}
	if !toType.Equal(valueType) {
		return nil, cerr.NewCompileError(rhs.Token(), "cannot assign a value of type %q to a variable of type %q",
			types.Mangle(valueType), types.Mangle(toType))
	}

	to, err := c.compileExpression(scope, lhs)
	if err != nil {
		return nil, err
	}
	value, err := c.compileExpression(scope, rhs)
	if err != nil {
		return nil, err
	}
	size, err := types.SizeOf(scope, toType)
	if err != nil {
		return nil, err
	}

	c.Gen.Move(to, value, size)
	to.Release()
	value.Release()
	return c.Gen.EmitNull(), nil
}

func (c *Compiler) compileOperation(scope *symtab.Scope, op *ast.Operation) (*irgen.Value, error) {
	switch op.Type {
	case ast.OpAdd:
		return c.compileBinary(scope, ir.OpAdd, false, op.Lhs, op.Rhs)
	case ast.OpSubtract:
		return c.compileBinary(scope, ir.OpSubtract, false, op.Lhs, op.Rhs)
	case ast.OpMultiply:
		return c.compileBinary(scope, ir.OpMultiply, false, op.Lhs, op.Rhs)
	case ast.OpGreaterThan:
		return c.compileBinary(scope, ir.OpGreaterThan, true, op.Lhs, op.Rhs)
	case ast.OpLessThan:
		return c.compileBinary(scope, ir.OpLessThan, true, op.Lhs, op.Rhs)
	case ast.OpAccess:
		return c.compileAccess(scope, op.Lhs, op.Rhs)
	case ast.OpIndexed:
		return c.compileIndexed(scope, op.Lhs, op.Rhs)
	case ast.OpRef:
		return c.compileRef(scope, op.Lhs)
	case ast.OpDeref:
		return c.compileDeref(scope, op.Lhs)
	case ast.OpSizeof:
		return c.compileSizeof(scope, op.Lhs)
	case ast.OpAssign:
		return c.compileAssign(scope, op.Lhs, op.Rhs)
	default:
		return nil, cerr.NewCompileErrorNoPosition("unhandled operation kind")
	}
}

// compileArguments evaluates call arguments left to right. The reference
// implementation threads argument evaluation through a lazily-invoked
// callback owned by the generator's call-emission routine; this port's
// irgen.Call instead takes an already-materialized slice, so arguments
// are evaluated eagerly in source order before the call is emitted.
func (c *Compiler) compileArguments(scope *symtab.Scope, args []ast.Expression) ([]*irgen.Value, []int, error) {
	values := make([]*irgen.Value, len(args))
	sizes := make([]int, len(args))
	for i := range args {
		argType, err := types.DeriveType(scope, c.Resolver, &args[i])
		if err != nil {
			return nil, nil, err
		}
		value, err := c.compileExpression(scope, &args[i])
		if err != nil {
			return nil, nil, err
		}
		size, err := types.SizeOf(scope, argType)
		if err != nil {
			return nil, nil, err
		}
		values[i] = value
		sizes[i] = size
	}
	return values, sizes, nil
}

func (c *Compiler) compileCall(scope *symtab.Scope, call *ast.Call) (*irgen.Value, error) {
	cf, err := c.Resolver.Resolve(scope, call)
	if err != nil {
		return nil, err
	}

	argValues, argSizes, err := c.compileArguments(scope, call.Arguments)
	if err != nil {
		return nil, err
	}
	retSize, err := types.SizeOf(scope, cf.ReturnType)
	if err != nil {
		return nil, err
	}
	return c.Gen.Call(cf.Signature, argValues, argSizes, retSize), nil
}

func (c *Compiler) compileExternCall(scope *symtab.Scope, call *ast.ExternCall) (*irgen.Value, error) {
	name := call.Name.Content()
	if !scope.IsExtern(name) {
		return nil, cerr.NewCompileError(call.Name.Position(), "could not find external function %q", name)
	}

	retSize := 0
	if call.ReturnType != nil {
		size, err := types.SizeOf(scope, *call.ReturnType)
		if err != nil {
			return nil, err
		}
		retSize = size
	}

	argValues, argSizes, err := c.compileArguments(scope, call.Arguments)
	if err != nil {
		return nil, err
	}
	return c.Gen.Call(name, argValues, argSizes, retSize), nil
}

// compileExpression lowers expr into zero or more IR instructions and
// returns a handle for its result. Callers own the returned handle and
// must Release it once they are done using it; Release is a no-op for
// anything backed by a parameter or local-frame slot, so releasing a
// bare identifier read is always safe.
func (c *Compiler) compileExpression(scope *symtab.Scope, expr *ast.Expression) (*irgen.Value, error) {
	switch expr.Kind {
	case ast.ExprIntLiteral:
		return c.Gen.EmitInt(expr.IntValue), nil
	case ast.ExprBoolLiteral:
		return c.Gen.EmitBool(expr.BoolValue), nil
	case ast.ExprStringLiteral:
		return c.Gen.EmitString(expr.StringToken.Content()), nil
	case ast.ExprCharLiteral:
		content := expr.CharToken.Content()
		if len(content) == 0 {
			return nil, cerr.NewCompileError(expr.CharToken.Position(), "empty character literal")
		}
		return c.Gen.EmitChar(int8(content[0])), nil
	case ast.ExprIdentifier:
		return c.compileIdentifier(scope, expr.Identifier)
	case ast.ExprInitializerList:
		return c.compileInitializerList(scope, expr.InitializerList)
	case ast.ExprArrayLiteral:
		return c.compileArrayLiteral(scope, expr.ArrayLiteral)
	case ast.ExprOperation:
		return c.compileOperation(scope, expr.Operation)
	case ast.ExprCall:
		return c.compileCall(scope, expr.Call)
	case ast.ExprExternCall:
		return c.compileExternCall(scope, expr.ExternCall)
	default:
		return nil, cerr.NewCompileErrorNoPosition("unhandled expression kind")
	}
}
